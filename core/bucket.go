package core

// Bucket is a transient, transaction-scoped resource container: the only
// way fungible amounts or non-fungible ids move between vaults, proofs and
// the worktop. Buckets are never persisted — they live only as long as the
// transaction that created them, and the executor's end-of-manifest checks
// (Worktop.AssertEmpty and the non-empty tracked-bucket check in Execute)
// are what stop one from silently leaking.
type Bucket struct {
	id       NodeId
	Resource NodeId
	Amount   Decimal // zero for non-fungible buckets
	NonFungibleIds []NonFungibleId
	consumed bool
}

func newFungibleBucket(resource NodeId, amount Decimal) *Bucket {
	return &Bucket{Resource: resource, Amount: amount}
}

func newNonFungibleBucket(resource NodeId, ids []NonFungibleId) *Bucket {
	return &Bucket{Resource: resource, Amount: DecimalFromInt64(0), NonFungibleIds: ids}
}

// IsEmpty reports whether the bucket holds no resources, the condition the
// worktop and manifest executor check for at end-of-manifest.
func (b *Bucket) IsEmpty() bool {
	return b.Amount.IsZero() && len(b.NonFungibleIds) == 0
}

// Take splits amount off the bucket into a new bucket of the same
// resource, leaving the remainder in place.
func (b *Bucket) Take(amount Decimal) (*Bucket, error) {
	if b.consumed {
		return nil, &ApplicationError{Op: "Take", Err: errBucketConsumed}
	}
	if amount.Cmp(b.Amount) > 0 {
		return nil, &ApplicationError{Op: "Take", Err: errInsufficientBalance}
	}
	b.Amount = b.Amount.Sub(amount)
	return newFungibleBucket(b.Resource, amount), nil
}

// Put merges another bucket of the same resource into this one, consuming
// the other.
func (b *Bucket) Put(other *Bucket) error {
	if other.Resource != b.Resource {
		return &ApplicationError{Op: "Put", Err: errResourceMismatch}
	}
	b.Amount = b.Amount.Add(other.Amount)
	b.NonFungibleIds = append(b.NonFungibleIds, other.NonFungibleIds...)
	other.consumed = true
	other.Amount = DecimalFromInt64(0)
	other.NonFungibleIds = nil
	return nil
}

var (
	errBucketConsumed      = appErrorString("bucket already consumed")
	errInsufficientBalance = appErrorString("insufficient balance")
	errResourceMismatch    = appErrorString("resource mismatch")
)

type appErrorString string

func (e appErrorString) Error() string { return string(e) }
