package core

// InstructionKind tags the variant of a manifest Instruction, mirroring the
// abbreviated instruction set of spec.md §4.7.
type InstructionKind int

const (
	InsTakeFromWorktop InstructionKind = iota
	InsTakeAllFromWorktop
	InsReturnToWorktop
	InsAssertWorktopContains
	InsPushToAuthZone
	InsPopFromAuthZone
	InsClearAuthZone
	InsCreateProofFromAuthZone
	InsCloneProof
	InsDropProof
	InsCreateProofFromBucket
	InsCallFunction
	InsCallMethod
	InsBurnResource
	InsMintFungible
	InsMintNonFungible
	InsRecall
	InsLockFee
	InsPublishPackage
	InsDeposit
)

// BucketRef and ProofRef are the manifest-local symbolic ids the id
// validator assigns, resolved to real NodeIds only once a bucket/proof is
// actually produced during execution.
type BucketRef string
type ProofRef string

// Instruction is one step of a manifest's instruction list. Exactly one of
// the payload fields is meaningful, selected by Kind; this mirrors the
// teacher's own single-struct-multi-field opcode records rather than an
// interface-per-opcode hierarchy, since the instruction count is small and
// closed (spec.md §4.7 explicitly rules out user-defined instructions).
type Instruction struct {
	Kind InstructionKind

	Resource NodeId
	Amount   Decimal
	Ids      []NonFungibleId

	Bucket BucketRef
	Proof  ProofRef
	NewBucket BucketRef
	NewProof  ProofRef

	Package   NodeId
	Blueprint string
	Function  string
	Component NodeId
	Method    string
	Args      []Value

	Vault NodeId

	MetadataKey   string
	MetadataValue Value

	PackageCode []byte
}

// TakeFromWorktop builds an InsTakeFromWorktop instruction binding the
// result to newBucket.
func TakeFromWorktop(resource NodeId, amount Decimal, newBucket BucketRef) Instruction {
	return Instruction{Kind: InsTakeFromWorktop, Resource: resource, Amount: amount, NewBucket: newBucket}
}

// TakeAllFromWorktop builds an InsTakeAllFromWorktop instruction.
func TakeAllFromWorktop(resource NodeId, newBucket BucketRef) Instruction {
	return Instruction{Kind: InsTakeAllFromWorktop, Resource: resource, NewBucket: newBucket}
}

// ReturnToWorktopInstr builds an InsReturnToWorktop instruction.
func ReturnToWorktopInstr(bucket BucketRef) Instruction {
	return Instruction{Kind: InsReturnToWorktop, Bucket: bucket}
}

// AssertWorktopContainsInstr builds an InsAssertWorktopContains instruction.
func AssertWorktopContainsInstr(resource NodeId, amount Decimal) Instruction {
	return Instruction{Kind: InsAssertWorktopContains, Resource: resource, Amount: amount}
}

// CallMethodInstr builds an InsCallMethod instruction.
func CallMethodInstr(component NodeId, method string, args []Value) Instruction {
	return Instruction{Kind: InsCallMethod, Component: component, Method: method, Args: args}
}

// CallFunctionInstr builds an InsCallFunction instruction.
func CallFunctionInstr(pkg NodeId, blueprint, function string, args []Value) Instruction {
	return Instruction{Kind: InsCallFunction, Package: pkg, Blueprint: blueprint, Function: function, Args: args}
}

// LockFeeInstr builds an InsLockFee instruction: withdraws amount from
// vault's resource as a force-written fee payment that survives abort.
func LockFeeInstr(vault NodeId, amount Decimal) Instruction {
	return Instruction{Kind: InsLockFee, Vault: vault, Amount: amount}
}

// RecallInstr builds an InsRecall instruction.
func RecallInstr(vault NodeId, amount Decimal) Instruction {
	return Instruction{Kind: InsRecall, Vault: vault, Amount: amount}
}

// DepositInstr builds an InsDeposit instruction: deposit(vault, bucket) in
// spec.md §8's manifest shorthand, the one builtin that moves a worktop
// bucket straight into a named vault without a full CallMethod dispatch.
func DepositInstr(vault NodeId, bucket BucketRef) Instruction {
	return Instruction{Kind: InsDeposit, Vault: vault, Bucket: bucket}
}

// Manifest is the ordered instruction list of one transaction.
type Manifest struct {
	Instructions []Instruction
}
