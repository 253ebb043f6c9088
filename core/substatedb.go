package core

import "sort"

// PartitionNum identifies a partition within a node's address space.
type PartitionNum uint32

// SortKey is the opaque, comparable-by-bytes key within a partition. Field
// partitions enumerate a small finite set of SortKeys; key-value partitions
// use caller-supplied bytes; sorted-index partitions embed an ordering
// prefix in the key itself.
type SortKey []byte

// SubstateKey fully addresses one substate.
type SubstateKey struct {
	Node      NodeId
	Partition PartitionNum
	Sort      string // string(SortKey), for map-keyability
}

func newSubstateKey(node NodeId, partition PartitionNum, sort SortKey) SubstateKey {
	return SubstateKey{Node: node, Partition: partition, Sort: string(sort)}
}

// PartitionEntry is one (SortKey, bytes) pair returned by a partition scan.
type PartitionEntry struct {
	Sort  SortKey
	Value []byte
}

// PartitionChange is the per-partition update a transaction wants applied:
// either a Delta (apply individual sets/deletes over whatever is already
// there) or a Reset (replace every entry seen so far with exactly this
// set — used when a partition is dropped and recreated in the same
// transaction).
type PartitionChange struct {
	Reset   bool
	Sets    map[string][]byte // SortKey string -> value
	Deletes map[string]struct{}
}

func newPartitionChange() *PartitionChange {
	return &PartitionChange{Sets: map[string][]byte{}, Deletes: map[string]struct{}{}}
}

// DatabaseUpdates is the batch-commit payload: NodeId -> PartitionNum ->
// PartitionChange. The substate DB makes no assumption about compression,
// sharding, or replication of these updates.
type DatabaseUpdates map[NodeId]map[PartitionNum]*PartitionChange

// NewDatabaseUpdates returns an empty update batch ready for accumulation.
func NewDatabaseUpdates() DatabaseUpdates {
	return DatabaseUpdates{}
}

// Set stages a single key write in the batch.
func (u DatabaseUpdates) Set(node NodeId, partition PartitionNum, key SortKey, value []byte) {
	u.partition(node, partition).Sets[string(key)] = value
	delete(u.partition(node, partition).Deletes, string(key))
}

// Delete stages a single key deletion in the batch.
func (u DatabaseUpdates) Delete(node NodeId, partition PartitionNum, key SortKey) {
	u.partition(node, partition).Deletes[string(key)] = struct{}{}
	delete(u.partition(node, partition).Sets, string(key))
}

// ResetPartition marks a partition to be wholly replaced by the entries
// subsequently Set on it in this same batch.
func (u DatabaseUpdates) ResetPartition(node NodeId, partition PartitionNum) {
	u.partition(node, partition).Reset = true
}

func (u DatabaseUpdates) partition(node NodeId, partition PartitionNum) *PartitionChange {
	byPartition, ok := u[node]
	if !ok {
		byPartition = map[PartitionNum]*PartitionChange{}
		u[node] = byPartition
	}
	change, ok := byPartition[partition]
	if !ok {
		change = newPartitionChange()
		byPartition[partition] = change
	}
	return change
}

// SubstateDatabase is the bottom tier of the engine: a
// (NodeId, PartitionNum, SortKey) -> bytes mapping with point-get,
// ascending-SortKey partition scan, and atomic batch commit. The engine
// makes no assumption about the backing implementation beyond this
// contract; core/substatedb_mem.go and core/substatedb_disk.go are two
// concrete implementations used by tests and the demo CLI respectively.
type SubstateDatabase interface {
	Get(node NodeId, partition PartitionNum, key SortKey) ([]byte, bool, error)
	ListEntries(node NodeId, partition PartitionNum) ([]PartitionEntry, error)
	Commit(updates DatabaseUpdates) error
}

// sortEntries returns entries ordered by ascending SortKey bytes, the
// iteration order every partition scan must produce for determinism.
func sortEntries(entries []PartitionEntry) []PartitionEntry {
	sort.Slice(entries, func(i, j int) bool {
		return string(entries[i].Sort) < string(entries[j].Sort)
	})
	return entries
}
