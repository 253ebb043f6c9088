package core

import (
	"sync"
)

// MemSubstateDB is an in-memory SubstateDatabase, grounded on the original
// ledger's mutex-guarded map discipline: a single sync.RWMutex protects a
// nested map, with reads taking the read lock and commits taking the write
// lock, exactly as the WAL-backed ledger guarded its State map.
type MemSubstateDB struct {
	mu   sync.RWMutex
	data map[NodeId]map[PartitionNum]map[string][]byte
}

// NewMemSubstateDB returns an empty in-memory substate database.
func NewMemSubstateDB() *MemSubstateDB {
	return &MemSubstateDB{data: map[NodeId]map[PartitionNum]map[string][]byte{}}
}

func (db *MemSubstateDB) Get(node NodeId, partition PartitionNum, key SortKey) ([]byte, bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	byPartition, ok := db.data[node]
	if !ok {
		return nil, false, nil
	}
	entries, ok := byPartition[partition]
	if !ok {
		return nil, false, nil
	}
	v, ok := entries[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (db *MemSubstateDB) ListEntries(node NodeId, partition PartitionNum) ([]PartitionEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	byPartition, ok := db.data[node]
	if !ok {
		return nil, nil
	}
	entries, ok := byPartition[partition]
	if !ok {
		return nil, nil
	}
	out := make([]PartitionEntry, 0, len(entries))
	for k, v := range entries {
		cp := make([]byte, len(v))
		copy(cp, v)
		out = append(out, PartitionEntry{Sort: SortKey(k), Value: cp})
	}
	return sortEntries(out), nil
}

func (db *MemSubstateDB) Commit(updates DatabaseUpdates) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for node, byPartition := range updates {
		if db.data[node] == nil {
			db.data[node] = map[PartitionNum]map[string][]byte{}
		}
		for partition, change := range byPartition {
			if change.Reset || db.data[node][partition] == nil {
				db.data[node][partition] = map[string][]byte{}
			}
			entries := db.data[node][partition]
			for k := range change.Deletes {
				delete(entries, k)
			}
			for k, v := range change.Sets {
				cp := make([]byte, len(v))
				copy(cp, v)
				entries[k] = cp
			}
			log.WithFields(map[string]interface{}{
				"node":      node.Short(),
				"partition": partition,
				"sets":      len(change.Sets),
				"deletes":   len(change.Deletes),
			}).Debug("substatedb: partition committed")
		}
	}
	return nil
}

var _ SubstateDatabase = (*MemSubstateDB)(nil)
