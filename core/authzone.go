package core

import "fmt"

// AccessRule is a minimal boolean predicate over the proofs currently
// visible in an AuthZone: either an unconditional allow/deny, or a
// requirement that some proof certifying the named resource (with at least
// the given amount, for fungibles) be present.
type AccessRule struct {
	AllowAll bool
	DenyAll  bool
	Resource NodeId
	MinAmount Decimal
}

// AllowAllRule permits any caller.
func AllowAllRule() AccessRule { return AccessRule{AllowAll: true} }

// RequireResourceRule permits callers presenting a proof of at least
// minAmount of resource.
func RequireResourceRule(resource NodeId, minAmount Decimal) AccessRule {
	return AccessRule{Resource: resource, MinAmount: minAmount}
}

// AuthZone is the transaction-scoped proof stack every call frame can push
// to and check against, grounded on the original role-cache-over-state
// pattern generalized from "granted roles" to "pushed proofs".
type AuthZone struct {
	stack []*Proof
}

// NewAuthZone returns an empty auth zone.
func NewAuthZone() *AuthZone { return &AuthZone{} }

// Push adds a proof to the zone, making it visible to subsequent
// AssertAccessRule checks until explicitly popped or dropped.
func (z *AuthZone) Push(p *Proof) { z.stack = append(z.stack, p) }

// Pop removes and returns the most recently pushed proof.
func (z *AuthZone) Pop() (*Proof, error) {
	if len(z.stack) == 0 {
		return nil, &KernelError{Op: "PopFromAuthZone", Err: fmt.Errorf("auth zone is empty")}
	}
	p := z.stack[len(z.stack)-1]
	z.stack = z.stack[:len(z.stack)-1]
	return p, nil
}

// DrainAll drops and clears every proof currently in the zone, used at
// end-of-manifest / frame-return to guarantee no proof outlives its scope.
func (z *AuthZone) DrainAll() {
	for _, p := range z.stack {
		p.Drop()
	}
	z.stack = nil
}

// AssertAccessRule reports whether rule is satisfied by the proofs
// currently visible in the zone.
func (z *AuthZone) AssertAccessRule(rule AccessRule) error {
	if rule.AllowAll {
		return nil
	}
	if rule.DenyAll {
		return &ApplicationError{Op: "AssertAccessRule", Err: fmt.Errorf("access denied")}
	}
	for _, p := range z.stack {
		if p.IsDropped() || p.Resource != rule.Resource {
			continue
		}
		if p.Amount().Cmp(rule.MinAmount) >= 0 {
			return nil
		}
	}
	return &ApplicationError{Op: "AssertAccessRule", Err: fmt.Errorf("no proof in auth zone satisfies the access rule")}
}
