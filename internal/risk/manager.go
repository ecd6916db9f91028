package risk

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"cryptoLevSim/internal/domain"
	"cryptoLevSim/internal/ports"
)

// RiskConfig holds configuration for order admission.
type RiskConfig struct {
	AdmissionLimit int // max open positions + pending orders
}

// RiskManager validates order terms and owns the admission slots shared by the
// ledger and the pending order manager. A slot is held from the moment a position
// or pending order exists until it leaves the system; activation moves a pending
// order's slot to its position without releasing it.
type RiskManager struct {
	config RiskConfig

	mu    sync.Mutex
	inUse int
}

// NewRiskManager creates a new risk manager instance
func NewRiskManager(config RiskConfig) *RiskManager {
	if config.AdmissionLimit <= 0 {
		config.AdmissionLimit = 5
	}
	return &RiskManager{config: config}
}

// ValidateOrder checks the terms of a requested position or pending order.
func (r *RiskManager) ValidateOrder(side domain.Side, leverage int, investment, price decimal.Decimal) error {
	if !side.Valid() {
		return fmt.Errorf("%w: %w: %q", ports.ErrInvalidInput, ports.ErrInvalidSide, side)
	}
	if !investment.IsPositive() {
		return fmt.Errorf("%w: investment must be positive, got %s", ports.ErrInvalidInput, investment.String())
	}
	maxLev := MaxLeverage(investment)
	if leverage < 1 || leverage > maxLev {
		return fmt.Errorf("%w: %w: %d not in [1, %d] for investment %s",
			ports.ErrInvalidInput, ports.ErrInvalidLeverage, leverage, maxLev, investment.String())
	}
	if err := ValidatePrice(price); err != nil {
		return fmt.Errorf("%w: %w", ports.ErrInvalidInput, err)
	}
	return nil
}

// Reserve takes one admission slot or fails with ErrCapacityExceeded.
func (r *RiskManager) Reserve() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inUse >= r.config.AdmissionLimit {
		return fmt.Errorf("%w: %d/%d in use", ports.ErrCapacityExceeded, r.inUse, r.config.AdmissionLimit)
	}
	r.inUse++
	return nil
}

// Release returns one admission slot.
func (r *RiskManager) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inUse > 0 {
		r.inUse--
	}
}

// CanActivate reports whether a pending order may turn into a position.
// Activation is slot-neutral, so this only fails when restored state already exceeds the limit.
func (r *RiskManager) CanActivate() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inUse <= r.config.AdmissionLimit
}

// Restore sets the slot count after state is loaded from persistence.
func (r *RiskManager) Restore(inUse int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inUse = inUse
}

// InUse returns the number of slots currently taken.
func (r *RiskManager) InUse() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inUse
}

// Limit returns the configured admission limit.
func (r *RiskManager) Limit() int {
	return r.config.AdmissionLimit
}
