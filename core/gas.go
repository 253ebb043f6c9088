package core

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// CostUnitMeter charges cost units against a transaction's fee budget. It is
// built on a token bucket so the same meter type can also throttle sustained
// host-call rates within a single WASM invocation, not just count down a
// fixed allowance; the engine only ever drains it, it never waits on it.
type CostUnitMeter struct {
	limiter  *rate.Limiter
	limit    int64
	consumed int64
}

// NewCostUnitMeter returns a meter with limit total cost units available,
// matching config.Kernel.DefaultCostUnits or a manifest's declared fee limit.
func NewCostUnitMeter(limit int64) *CostUnitMeter {
	return &CostUnitMeter{
		limiter: rate.NewLimiter(rate.Limit(limit), int(limit)),
		limit:   limit,
	}
}

// Charge deducts units from the remaining budget. It returns
// SystemModuleError{OutOfCostUnits} without mutating state further once the
// budget is exhausted, so the caller can trigger RevertNonForceChanges while
// preserving the force-written fee-payment substates.
func (m *CostUnitMeter) Charge(units int64, reason string) error {
	if m.consumed+units > m.limit {
		return &SystemModuleError{Module: "costing", Op: reason, Err: fmt.Errorf("out of cost units: have %d, need %d", m.limit-m.consumed, units)}
	}
	m.consumed += units
	if !m.limiter.AllowN(time.Now(), int(units)) {
		return &SystemModuleError{Module: "costing", Op: reason, Err: fmt.Errorf("cost unit rate exceeded for %s", reason)}
	}
	return nil
}

// Remaining reports the unspent cost-unit budget.
func (m *CostUnitMeter) Remaining() int64 { return m.limit - m.consumed }

// Consumed reports the cost units spent so far, used to populate a
// transaction receipt's fee summary.
func (m *CostUnitMeter) Consumed() int64 { return m.consumed }
