package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_UniqueAndSorted(t *testing.T) {
	seen := make(map[string]struct{})
	prev := ""
	for i := 0; i < 1000; i++ {
		v := New()
		_, dup := seen[v]
		assert.False(t, dup, "duplicate id %s", v)
		seen[v] = struct{}{}
		assert.Greater(t, v, prev)
		prev = v
	}
}

func TestWithPrefix(t *testing.T) {
	v := WithPrefix("pos")
	assert.True(t, strings.HasPrefix(v, "pos_"))
	assert.Len(t, v, len("pos_")+26)
}
