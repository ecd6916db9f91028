package app

import (
	"sort"
	"strings"

	"cryptoLevSim/internal/domain"
)

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func sortSymbols(list []domain.Symbol) {
	sort.Slice(list, func(i, j int) bool { return list[i].Symbol < list[j].Symbol })
}
