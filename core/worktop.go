package core

import "fmt"

// Worktop is the transaction-scoped resource aggregator every manifest
// implicitly owns: buckets returned by blueprint calls land here until an
// instruction explicitly takes them out. A manifest that ends with a
// non-empty worktop is rejected (spec.md §4.7 end-of-manifest invariant).
type Worktop struct {
	buckets map[NodeId]*Bucket // keyed by resource address
}

// NewWorktop returns an empty worktop.
func NewWorktop() *Worktop {
	return &Worktop{buckets: map[NodeId]*Bucket{}}
}

// Put merges bucket's contents into the worktop's aggregate for its
// resource, consuming the bucket.
func (w *Worktop) Put(bucket *Bucket) {
	if existing, ok := w.buckets[bucket.Resource]; ok {
		existing.Put(bucket)
		return
	}
	w.buckets[bucket.Resource] = bucket
}

// Take removes amount of resource from the worktop into a fresh bucket.
func (w *Worktop) Take(resource NodeId, amount Decimal) (*Bucket, error) {
	existing, ok := w.buckets[resource]
	if !ok || amount.Cmp(existing.Amount) > 0 {
		return nil, &ApplicationError{Op: "TakeFromWorktop", Err: errInsufficientBalance}
	}
	return existing.Take(amount)
}

// TakeAll removes every unit of resource currently on the worktop.
func (w *Worktop) TakeAll(resource NodeId) (*Bucket, error) {
	existing, ok := w.buckets[resource]
	if !ok {
		return newFungibleBucket(resource, DecimalFromInt64(0)), nil
	}
	delete(w.buckets, resource)
	return existing, nil
}

// AssertContains checks that at least amount of resource is present,
// without removing it, for the AssertWorktopContains instruction.
func (w *Worktop) AssertContains(resource NodeId, amount Decimal) error {
	existing, ok := w.buckets[resource]
	if !ok || amount.Cmp(existing.Amount) > 0 {
		return &ApplicationError{Op: "AssertWorktopContains", Err: fmt.Errorf("worktop does not contain %s of resource %s", amount.String(), resource.Short())}
	}
	return nil
}

// AssertEmpty enforces the end-of-manifest invariant that nothing was left
// stranded on the worktop.
func (w *Worktop) AssertEmpty() error {
	for resource, bucket := range w.buckets {
		if !bucket.IsEmpty() {
			return &KernelError{Op: "AssertWorktopEmpty", Err: fmt.Errorf("worktop still holds resource %s", resource.Short())}
		}
	}
	return nil
}
