package core

import "fmt"

type bucketState struct {
	declared bool
	consumed bool
}

type proofState struct {
	declared bool
	dropped  bool
}

// validateManifestIds is the static id-validator pass of spec.md §4.7: it
// walks the instruction list once before any execution and rejects manifests
// that reuse a consumed bucket, reference a dropped proof, or pass a direct
// Vault/KeyValueStore reference as a call argument.
func validateManifestIds(m Manifest) error {
	buckets := map[BucketRef]*bucketState{}
	proofs := map[ProofRef]*proofState{}

	declareBucket := func(ref BucketRef) {
		if ref == "" {
			return
		}
		buckets[ref] = &bucketState{declared: true}
	}
	consumeBucket := func(ref BucketRef) error {
		st, ok := buckets[ref]
		if !ok || !st.declared {
			return fmt.Errorf("bucket %q used before being produced", ref)
		}
		if st.consumed {
			return fmt.Errorf("bucket %q used more than once", ref)
		}
		st.consumed = true
		return nil
	}
	declareProof := func(ref ProofRef) {
		if ref == "" {
			return
		}
		proofs[ref] = &proofState{declared: true}
	}
	useProof := func(ref ProofRef) error {
		st, ok := proofs[ref]
		if !ok || !st.declared {
			return fmt.Errorf("proof %q used before being produced", ref)
		}
		if st.dropped {
			return fmt.Errorf("proof %q used after being dropped", ref)
		}
		return nil
	}

	for i, ins := range m.Instructions {
		switch ins.Kind {
		case InsTakeFromWorktop, InsTakeAllFromWorktop:
			declareBucket(ins.NewBucket)
		case InsReturnToWorktop, InsBurnResource, InsDeposit:
			if err := consumeBucket(ins.Bucket); err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
		case InsCreateProofFromAuthZone:
			declareProof(ins.NewProof)
		case InsPopFromAuthZone:
			declareProof(ins.NewProof)
		case InsCreateProofFromBucket:
			declareProof(ins.NewProof)
		case InsCloneProof:
			if err := useProof(ins.Proof); err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
			declareProof(ins.NewProof)
		case InsDropProof:
			if err := useProof(ins.Proof); err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
			proofs[ins.Proof].dropped = true
		case InsCallFunction, InsCallMethod:
			if err := validateArgsNoDirectRefs(ins.Args); err != nil {
				return fmt.Errorf("instruction %d: %w", i, err)
			}
			if ins.Bucket != "" {
				if err := consumeBucket(ins.Bucket); err != nil {
					return fmt.Errorf("instruction %d: %w", i, err)
				}
			}
			if ins.Proof != "" {
				if err := useProof(ins.Proof); err != nil {
					return fmt.Errorf("instruction %d: %w", i, err)
				}
			}
		case InsMintFungible, InsMintNonFungible, InsRecall, InsLockFee, InsPublishPackage:
			// no bucket/proof bookkeeping
		}
	}
	return nil
}

// validateArgsNoDirectRefs rejects any argument value embedding a direct
// NodeId reference to a Vault or KeyValueStore, per spec.md §4.7: those may
// only be accessed through the owning component's methods, never handed to
// an arbitrary callee.
func validateArgsNoDirectRefs(args []Value) error {
	for _, v := range args {
		if err := walkValueForForbiddenRefs(v); err != nil {
			return err
		}
	}
	return nil
}

func walkValueForForbiddenRefs(v Value) error {
	switch v.Kind {
	case KindCustom:
		if v.Custom.TypeCode == CustomNodeId && len(v.Custom.Payload) == NodeIdLength {
			var id NodeId
			copy(id[:], v.Custom.Payload)
			et := id.EntityType()
			if et == EntityInternalVault || et == EntityInternalKeyValueStore {
				return fmt.Errorf("call argument embeds a direct reference to %s", id.Short())
			}
		}
	case KindTuple:
		for _, e := range v.Tuple {
			if err := walkValueForForbiddenRefs(e); err != nil {
				return err
			}
		}
	case KindArray:
		for _, e := range v.Array {
			if err := walkValueForForbiddenRefs(e); err != nil {
				return err
			}
		}
	case KindEnum:
		for _, f := range v.Enum.Fields {
			if err := walkValueForForbiddenRefs(f); err != nil {
				return err
			}
		}
	case KindMap:
		for _, e := range v.Map {
			if err := walkValueForForbiddenRefs(e.Key); err != nil {
				return err
			}
			if err := walkValueForForbiddenRefs(e.Val); err != nil {
				return err
			}
		}
	}
	return nil
}

// Executor drives a Manifest's instructions against a Worktop, AuthZone and
// Kernel, accumulating events/logs/balance changes into a Receipt. Grounded
// on the original opcode dispatcher's fetch-decode-execute loop, generalized
// from a flat numeric opcode table to the closed manifest instruction set.
type Executor struct {
	kernel   *Kernel
	track    *Track
	worktop  *Worktop
	authZone *AuthZone
	meter    *CostUnitMeter

	buckets map[BucketRef]*Bucket
	proofs  map[ProofRef]*Proof

	events []Event
	logs   []LogEntry

	balanceChanges     []BalanceChange
	directVaultUpdates []BalanceChange
	newResources       []NodeId
	newComponents      []NodeId
	newPackages        []NodeId

	hashTree *HashTree
}

// NewExecutor builds an Executor for one transaction over the given Track,
// sharing its Kernel and cost-unit meter.
func NewExecutor(k *Kernel, tr *Track, meter *CostUnitMeter) *Executor {
	return &Executor{
		kernel: k, track: tr, meter: meter,
		worktop: NewWorktop(), authZone: NewAuthZone(),
		buckets: map[BucketRef]*Bucket{}, proofs: map[ProofRef]*Proof{},
		hashTree: NewHashTree(),
	}
}

// trackBucket assigns b a transient NodeId owned by the kernel's current
// frame and records it under ref, so a later CallFunction/CallMethod can
// name it in a CallFrameUpdate like any other owned node.
func (ex *Executor) trackBucket(ref BucketRef, b *Bucket) {
	b.id = ex.kernel.AllocateTransient(EntityTransientBucket)
	ex.buckets[ref] = b
}

// trackProof is trackBucket's counterpart for proofs.
func (ex *Executor) trackProof(ref ProofRef, p *Proof) {
	p.id = ex.kernel.AllocateTransient(EntityTransientProof)
	ex.proofs[ref] = p
}

const costPerInstruction = 100

// Execute runs m's instructions in order and returns a Receipt. A failure at
// any instruction aborts the whole transaction: non-force Track writes are
// reverted, but the consumed-cost-units figure in the receipt still reflects
// whatever was charged before the failure (fees settle regardless).
func (ex *Executor) Execute(m Manifest) *Receipt {
	if err := validateManifestIds(m); err != nil {
		return ex.abort(fmt.Errorf("id validation: %w", err))
	}

	for i, ins := range m.Instructions {
		if err := ex.meter.Charge(costPerInstruction, fmt.Sprintf("instruction[%d]", i)); err != nil {
			return ex.abort(err)
		}
		if err := ex.step(ins); err != nil {
			return ex.abort(fmt.Errorf("instruction %d: %w", i, err))
		}
	}

	if err := ex.worktop.AssertEmpty(); err != nil {
		return ex.abort(fmt.Errorf("end of manifest: %w", err))
	}
	ex.authZone.DrainAll()
	for _, p := range ex.proofs {
		if !p.IsDropped() {
			return ex.abort(fmt.Errorf("end of manifest: proof not dropped"))
		}
	}
	for _, b := range ex.buckets {
		if !b.IsEmpty() {
			return ex.abort(fmt.Errorf("end of manifest: bucket not dropped"))
		}
	}

	updates := ex.track.Finalize()
	if err := ex.track.db.Commit(updates); err != nil {
		return ex.abort(fmt.Errorf("commit: %w", err))
	}
	if _, err := ex.hashTree.Update(ex.track.db, updates); err != nil {
		return ex.abort(fmt.Errorf("hash tree update: %w", err))
	}

	return &Receipt{
		Outcome:      OutcomeCommit,
		StateUpdates: updates,
		Summary: StateUpdateSummary{
			NewPackages: ex.newPackages, NewComponents: ex.newComponents, NewResources: ex.newResources,
			BalanceChanges: ex.balanceChanges, DirectVaultUpdates: ex.directVaultUpdates,
		},
		Events:            ex.events,
		Logs:              ex.logs,
		ConsumedCostUnits: ex.meter.Consumed(),
		NewStateRoot:      ex.hashTree.NodeRoot(),
	}
}

// abort reverts every non-force-written change, then commits whatever
// force-writes remain (fee-vault deductions from lock_fee survive an abort
// per spec.md §7) to the underlying database and hash tree.
func (ex *Executor) abort(err error) *Receipt {
	ex.track.RevertNonForceChanges()
	log.WithField("reason", err.Error()).Warn("manifest: aborted")

	updates := ex.track.Finalize()
	receipt := &Receipt{
		Outcome:           OutcomeAbort,
		Reason:            err.Error(),
		ConsumedCostUnits: ex.meter.Consumed(),
	}
	if len(updates) == 0 {
		return receipt
	}
	if commitErr := ex.track.db.Commit(updates); commitErr != nil {
		log.WithField("reason", commitErr.Error()).Error("manifest: fee commit failed on abort")
		return receipt
	}
	if _, hashErr := ex.hashTree.Update(ex.track.db, updates); hashErr != nil {
		log.WithField("reason", hashErr.Error()).Error("manifest: fee hash tree update failed on abort")
		return receipt
	}
	receipt.NewStateRoot = ex.hashTree.NodeRoot()
	return receipt
}

// callInto pushes a kernel call frame for actor, moving the bucket named
// by bucketRef (if any) out of the caller's ownership and lending the
// proof named by proofRef (if any) as a borrowed reference, so the
// kernel's move/borrow enforcement actually mediates the invocation
// (spec.md §1 item 1, §4.6) rather than being bypassed with an empty
// update. The blueprint body itself runs inside the host syscall surface,
// out of scope here; since nothing here models that body explicitly
// returning its arguments, a moved bucket is treated as consumed by the
// callee and dropped before the frame pops.
func (ex *Executor) callInto(actor Actor, bucketRef BucketRef, proofRef ProofRef) error {
	update := CallFrameUpdate{}
	var movedBucket *Bucket
	if bucketRef != "" {
		b, ok := ex.buckets[bucketRef]
		if !ok {
			return fmt.Errorf("unknown bucket %q", bucketRef)
		}
		update.NodesToMove = append(update.NodesToMove, b.id)
		movedBucket = b
	}
	if proofRef != "" {
		p, ok := ex.proofs[proofRef]
		if !ok {
			return fmt.Errorf("unknown proof %q", proofRef)
		}
		update.NodeRefsToCopy = append(update.NodeRefsToCopy, p.id)
	}

	if _, err := ex.kernel.PushFrame(actor, update); err != nil {
		return err
	}
	if movedBucket != nil {
		if err := ex.kernel.DropNode(movedBucket.id); err != nil {
			return err
		}
		delete(ex.buckets, bucketRef)
	}
	return ex.kernel.PopFrame(CallFrameUpdate{})
}

func (ex *Executor) step(ins Instruction) error {
	switch ins.Kind {
	case InsTakeFromWorktop:
		b, err := ex.worktop.Take(ins.Resource, ins.Amount)
		if err != nil {
			return err
		}
		ex.trackBucket(ins.NewBucket, b)
		return nil

	case InsTakeAllFromWorktop:
		b, err := ex.worktop.TakeAll(ins.Resource)
		if err != nil {
			return err
		}
		ex.trackBucket(ins.NewBucket, b)
		return nil

	case InsReturnToWorktop:
		b, ok := ex.buckets[ins.Bucket]
		if !ok {
			return fmt.Errorf("unknown bucket %q", ins.Bucket)
		}
		ex.worktop.Put(b)
		delete(ex.buckets, ins.Bucket)
		return nil

	case InsAssertWorktopContains:
		return ex.worktop.AssertContains(ins.Resource, ins.Amount)

	case InsPushToAuthZone:
		p, ok := ex.proofs[ins.Proof]
		if !ok {
			return fmt.Errorf("unknown proof %q", ins.Proof)
		}
		ex.authZone.Push(p)
		delete(ex.proofs, ins.Proof)
		return nil

	case InsCreateProofFromAuthZone:
		var composed *Proof
		for _, p := range ex.authZone.stack {
			if p.IsDropped() || p.Resource != ins.Resource {
				continue
			}
			if composed == nil {
				composed = p.Clone()
				continue
			}
			clone := p.Clone()
			if err := composed.Compose(clone); err != nil {
				return err
			}
		}
		if composed == nil {
			return fmt.Errorf("no proof for resource %s in auth zone", ins.Resource.Short())
		}
		ex.trackProof(ins.NewProof, composed)
		return nil

	case InsPopFromAuthZone:
		p, err := ex.authZone.Pop()
		if err != nil {
			return err
		}
		ex.trackProof(ins.NewProof, p)
		return nil

	case InsClearAuthZone:
		ex.authZone.DrainAll()
		return nil

	case InsCreateProofFromBucket:
		b, ok := ex.buckets[ins.Bucket]
		if !ok {
			return fmt.Errorf("unknown bucket %q", ins.Bucket)
		}
		var p *Proof
		if len(b.NonFungibleIds) > 0 {
			p = NewNonFungibleProof(b.Resource, b.id, b.NonFungibleIds)
		} else {
			p = NewFungibleProof(b.Resource, b.id, b.Amount)
		}
		ex.trackProof(ins.NewProof, p)
		return nil

	case InsCloneProof:
		p, ok := ex.proofs[ins.Proof]
		if !ok {
			return fmt.Errorf("unknown proof %q", ins.Proof)
		}
		ex.trackProof(ins.NewProof, p.Clone())
		return nil

	case InsDropProof:
		p, ok := ex.proofs[ins.Proof]
		if !ok {
			return fmt.Errorf("unknown proof %q", ins.Proof)
		}
		p.Drop()
		return nil

	case InsBurnResource:
		b, ok := ex.buckets[ins.Bucket]
		if !ok {
			return fmt.Errorf("unknown bucket %q", ins.Bucket)
		}
		// Burning only needs the resource's address and total-supply
		// substate, both already staged; the manager is addressed, not
		// re-created.
		fungibleRM := &FungibleResourceManager{Address: b.Resource, Divisibility: maxDivisibility}
		if err := fungibleRM.Burn(ex.track, ex.authZone, b); err != nil {
			return err
		}
		delete(ex.buckets, ins.Bucket)
		ex.events = append(ex.events, Event{Emitter: b.Resource, Name: "BurnEvent", Payload: Encode(b.Amount.ToValue())})
		return nil

	case InsMintFungible:
		rm := &FungibleResourceManager{Address: ins.Resource, Divisibility: maxDivisibility}
		b, err := rm.Mint(ex.track, ex.authZone, ins.Amount)
		if err != nil {
			return err
		}
		ex.worktop.Put(b)
		ex.events = append(ex.events, Event{Emitter: ins.Resource, Name: "MintEvent", Payload: Encode(ins.Amount.ToValue())})
		return nil

	case InsMintNonFungible:
		rm := &NonFungibleResourceManager{Address: ins.Resource}
		for _, id := range ins.Ids {
			b, err := rm.MintNonFungible(ex.track, ex.authZone, id, nil)
			if err != nil {
				return err
			}
			ex.worktop.Put(b)
		}
		return nil

	case InsRecall:
		v, err := LoadVault(ex.track, ins.Vault)
		if err != nil {
			return err
		}
		b, err := v.Recall(ex.track, ex.authZone, ins.Amount, false)
		if err != nil {
			return err
		}
		ex.directVaultUpdates = append(ex.directVaultUpdates, BalanceChange{Holder: ins.Vault, Resource: b.Resource, Delta: DecimalFromInt64(0).Sub(ins.Amount)})
		ex.worktop.Put(b)
		ex.events = append(ex.events, Event{Emitter: ins.Vault, Name: "RecallEvent", Payload: Encode(ins.Amount.ToValue())})
		return nil

	case InsDeposit:
		b, ok := ex.buckets[ins.Bucket]
		if !ok {
			return fmt.Errorf("unknown bucket %q", ins.Bucket)
		}
		v, err := LoadVault(ex.track, ins.Vault)
		if err != nil {
			return err
		}
		amount := b.Amount
		if len(b.NonFungibleIds) > 0 {
			if err := v.DepositNonFungibles(ex.track, b); err != nil {
				return err
			}
		} else {
			if err := v.Deposit(ex.track, b); err != nil {
				return err
			}
		}
		delete(ex.buckets, ins.Bucket)
		ex.balanceChanges = append(ex.balanceChanges, BalanceChange{Holder: ins.Vault, Resource: v.Resource, Delta: amount})
		ex.events = append(ex.events, Event{Emitter: ins.Vault, Name: "DepositEvent", Payload: Encode(amount.ToValue())})
		return nil

	case InsLockFee:
		handle, raw, exists, err := ex.track.OpenSubstate(ins.Vault, PartitionVaultMeta, SortKey(sortKeyBalance), LockMutable|LockForceWrite)
		if err != nil {
			return err
		}
		defer ex.track.CloseSubstate(handle)
		var current Decimal
		if exists && raw != nil {
			val, _, err := Decode(raw)
			if err != nil {
				return &SystemError{Op: "LockFee", Err: err}
			}
			current = NewDecimal(bigFromBytes(val.Custom.Payload))
		} else {
			current = DecimalFromInt64(0)
		}
		if ins.Amount.Cmp(current) > 0 {
			return &ApplicationError{Op: "LockFee", Err: fmt.Errorf("insufficient balance to lock fee")}
		}
		next := current.Sub(ins.Amount)
		if err := ex.track.WriteSubstate(handle, Encode(next.ToValue())); err != nil {
			return err
		}
		ex.balanceChanges = append(ex.balanceChanges, BalanceChange{Holder: ins.Vault, Resource: DefaultXrdResource, Delta: DecimalFromInt64(0).Sub(ins.Amount)})
		return nil

	case InsCallFunction:
		return ex.callInto(Actor{Package: ins.Package, Blueprint: ins.Blueprint, Method: ins.Function}, ins.Bucket, ins.Proof)

	case InsCallMethod:
		return ex.callInto(Actor{Package: ins.Component, Blueprint: "", Method: ins.Method}, ins.Bucket, ins.Proof)

	case InsPublishPackage:
		id := ex.kernel.NewObject("package", map[SortKey][]byte{"code": ins.PackageCode})
		if err := ex.kernel.Globalize(id); err != nil {
			return err
		}
		ex.newPackages = append(ex.newPackages, id)
		return nil

	default:
		return fmt.Errorf("unsupported instruction kind %d", ins.Kind)
	}
}

// DefaultXrdResource is the well-known fee resource address used by LockFee
// balance-change summaries when no explicit resource is threaded through the
// instruction (mirroring the single-native-token fee convention).
var DefaultXrdResource = NewGlobalNodeId(EntityGlobalFungibleResource, AddressZero, "xrd", []byte("native"))
