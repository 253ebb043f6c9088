package core

// evidence records one container this proof drew locked amount/ids from.
// Evidence is kept in an ordered slice rather than a map: proof composition
// order is observable (spec.md §9 open question), and a Vec-backed list is
// how the original resolves it — see DESIGN.md's Open Question decisions.
type evidence struct {
	container NodeId // the vault or bucket the lock was taken against
	amount    Decimal
	ids       []NonFungibleId
}

// Proof certifies that the holder has legitimately locked some amount (or
// set of non-fungible ids) of a resource in one or more containers, without
// granting ownership of the underlying resource itself.
type Proof struct {
	Resource NodeId
	id       NodeId // transient NodeId, assigned by the executor so the
	                // kernel can name this proof in a CallFrameUpdate
	evidence []evidence
	dropped  bool
}

// NewFungibleProof builds a proof backed by a single container's locked
// amount.
func NewFungibleProof(resource NodeId, container NodeId, amount Decimal) *Proof {
	return &Proof{Resource: resource, evidence: []evidence{{container: container, amount: amount}}}
}

// NewNonFungibleProof builds a proof backed by a single container's locked
// non-fungible ids.
func NewNonFungibleProof(resource NodeId, container NodeId, ids []NonFungibleId) *Proof {
	return &Proof{Resource: resource, evidence: []evidence{{container: container, ids: ids}}}
}

// Amount returns the total fungible amount this proof certifies, summing
// evidence in insertion order (order does not affect the sum, only
// Compose's evidence ordering, but summation walks the slice directly for
// determinism parity with the rest of the engine).
func (p *Proof) Amount() Decimal {
	total := DecimalFromInt64(0)
	for _, e := range p.evidence {
		total = total.Add(e.amount)
	}
	return total
}

// NonFungibleIds returns every non-fungible id this proof certifies, in the
// order its evidence was recorded.
func (p *Proof) NonFungibleIds() []NonFungibleId {
	var out []NonFungibleId
	for _, e := range p.evidence {
		out = append(out, e.ids...)
	}
	return out
}

// Compose merges other's evidence into p, appended after p's own existing
// evidence (caller-supplied order), consuming other. Both proofs must
// certify the same resource.
func (p *Proof) Compose(other *Proof) error {
	if p.Resource != other.Resource {
		return &ApplicationError{Op: "Compose", Err: errResourceMismatch}
	}
	p.evidence = append(p.evidence, other.evidence...)
	other.dropped = true
	other.evidence = nil
	return nil
}

// Clone returns a new Proof over the same evidence. Containers carry no
// lock counters in this engine, so cloning changes nothing outside the
// returned Proof.
func (p *Proof) Clone() *Proof {
	cp := make([]evidence, len(p.evidence))
	copy(cp, p.evidence)
	return &Proof{Resource: p.Resource, evidence: cp}
}

// Drop marks the proof dropped and clears its evidence. A dropped proof
// must not be used again; no container lock state is changed.
func (p *Proof) Drop() {
	p.dropped = true
	p.evidence = nil
}

// IsDropped reports whether Drop has already been called.
func (p *Proof) IsDropped() bool { return p.dropped }
