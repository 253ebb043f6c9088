package core

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"sync"
)

// Three-tier Jellyfish Merkle Tree: a substate-tier JMT per (NodeId,
// PartitionNum), a partition-tier JMT per NodeId summarizing its
// partitions, and a single node-tier JMT summarizing every node. Each tier
// is a radix-16 sparse Merkle trie over the SHA-256 of its leaf keys, the
// standard way a JMT turns arbitrary-length keys into a fixed-depth,
// authenticated structure.

// radixZero is the all-zero sentinel used for an absent child subtree so
// that parent-hash computation never needs a variable-arity combine step.
var radixZero = [32]byte{}

// buildRadixRoot computes the root hash of a sparse 16-ary Merkle trie over
// leaves keyed by their SHA-256 nibble path. leaves maps the raw key bytes
// to an already-hashed leaf value (hash(substate_bytes), or similar).
func buildRadixRoot(leaves map[string][32]byte) [32]byte {
	if len(leaves) == 0 {
		return radixZero
	}
	type pathLeaf struct {
		path  [64]byte // one nibble (0-15) per byte, for readability
		value [32]byte
	}
	pls := make([]pathLeaf, 0, len(leaves))
	for k, v := range leaves {
		pls = append(pls, pathLeaf{path: nibblePath([]byte(k)), value: v})
	}
	sort.Slice(pls, func(i, j int) bool { return string(pls[i].path[:]) < string(pls[j].path[:]) })

	var recur func(depth int, items []pathLeaf) [32]byte
	recur = func(depth int, items []pathLeaf) [32]byte {
		if len(items) == 1 {
			h := sha256.New()
			h.Write(items[0].path[depth:])
			h.Write(items[0].value[:])
			var out [32]byte
			copy(out[:], h.Sum(nil))
			return out
		}
		var buckets [16][]pathLeaf
		for _, it := range items {
			n := it.path[depth]
			buckets[n] = append(buckets[n], it)
		}
		h := sha256.New()
		for i := 0; i < 16; i++ {
			if len(buckets[i]) == 0 {
				h.Write(radixZero[:])
				continue
			}
			child := recur(depth+1, buckets[i])
			h.Write(child[:])
		}
		var out [32]byte
		copy(out[:], h.Sum(nil))
		return out
	}
	return recur(0, pls)
}

// nibblePath expands the SHA-256 digest of key into 64 single-nibble bytes
// (values 0-15), giving every leaf a fixed-depth path through the trie
// regardless of the original key's length.
func nibblePath(key []byte) [64]byte {
	digest := sha256.Sum256(key)
	var path [64]byte
	for i, b := range digest {
		path[2*i] = b >> 4
		path[2*i+1] = b & 0x0F
	}
	return path
}

func hashSubstate(value []byte) [32]byte { return sha256.Sum256(value) }

func encodeVersionedRoot(version uint64, root [32]byte) []byte {
	buf := make([]byte, 8+32)
	binary.BigEndian.PutUint64(buf[:8], version)
	copy(buf[8:], root[:])
	return buf
}

func hashVersionedRoot(version uint64, root [32]byte) [32]byte {
	return sha256.Sum256(encodeVersionedRoot(version, root))
}

// StaleTreePart identifies a tier root that was superseded by a commit and
// is now safe to prune once no reader still depends on it.
type StaleTreePart struct {
	Node      NodeId
	Partition PartitionNum
	IsNode    bool // true: a node-tier entry went stale; Partition is unset
	Version   uint64
}

// HashTree maintains the nested substate/partition/node tier roots across
// commits and reports StaleTreePart entries for the pruner.
type HashTree struct {
	mu sync.Mutex

	substateRoot    map[NodeId]map[PartitionNum][32]byte
	substateVersion map[NodeId]map[PartitionNum]uint64
	partitionsOf    map[NodeId]map[PartitionNum]bool

	partitionTierRoot    map[NodeId][32]byte
	partitionTierVersion map[NodeId]uint64

	nodeTierRoot [32]byte
}

// NewHashTree returns an empty three-tier hash tree.
func NewHashTree() *HashTree {
	return &HashTree{
		substateRoot:         map[NodeId]map[PartitionNum][32]byte{},
		substateVersion:      map[NodeId]map[PartitionNum]uint64{},
		partitionsOf:         map[NodeId]map[PartitionNum]bool{},
		partitionTierRoot:    map[NodeId][32]byte{},
		partitionTierVersion: map[NodeId]uint64{},
	}
}

// NodeRoot returns the current top-level state root.
func (t *HashTree) NodeRoot() [32]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nodeTierRoot
}

// Update applies a DatabaseUpdates batch's worth of committed substates to
// the hash tree, reading the now-authoritative partition contents from db,
// and returns the list of tier roots that became stale as a result.
//
// Steps (spec.md §4.3):
//  1. group incoming updates by (NodeId, PartitionNum) — the caller already
//     did this via DatabaseUpdates' shape;
//  2. recompute each touched partition's substate-tier root;
//  3. recompute each touched node's partition-tier root;
//  4. recompute the single node-tier root.
func (t *HashTree) Update(db SubstateDatabase, updates DatabaseUpdates) ([]StaleTreePart, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var stale []StaleTreePart
	touchedNodes := map[NodeId]bool{}

	for node, byPartition := range updates {
		touchedNodes[node] = true
		if t.partitionsOf[node] == nil {
			t.partitionsOf[node] = map[PartitionNum]bool{}
		}
		if t.substateRoot[node] == nil {
			t.substateRoot[node] = map[PartitionNum][32]byte{}
			t.substateVersion[node] = map[PartitionNum]uint64{}
		}
		for partition := range byPartition {
			t.partitionsOf[node][partition] = true

			entries, err := db.ListEntries(node, partition)
			if err != nil {
				return nil, wrap(err, "hashtree: list entries")
			}
			leaves := make(map[string][32]byte, len(entries))
			for _, e := range entries {
				leaves[string(e.Sort)] = hashSubstate(e.Value)
			}
			newRoot := buildRadixRoot(leaves)

			if oldVer, ok := t.substateVersion[node][partition]; ok {
				stale = append(stale, StaleTreePart{Node: node, Partition: partition, Version: oldVer})
			}
			t.substateVersion[node][partition]++
			t.substateRoot[node][partition] = newRoot
		}
	}

	for node := range touchedNodes {
		leaves := make(map[string][32]byte, len(t.partitionsOf[node]))
		for partition := range t.partitionsOf[node] {
			var key [4]byte
			binary.BigEndian.PutUint32(key[:], uint32(partition))
			leaves[string(key[:])] = hashVersionedRoot(t.substateVersion[node][partition], t.substateRoot[node][partition])
		}
		newRoot := buildRadixRoot(leaves)
		if oldVer, ok := t.partitionTierVersion[node]; ok {
			stale = append(stale, StaleTreePart{Node: node, IsNode: true, Version: oldVer})
		}
		t.partitionTierVersion[node]++
		t.partitionTierRoot[node] = newRoot
	}

	nodeLeaves := make(map[string][32]byte, len(t.partitionTierRoot))
	for node, root := range t.partitionTierRoot {
		nodeLeaves[string(node[:])] = hashVersionedRoot(t.partitionTierVersion[node], root)
	}
	t.nodeTierRoot = buildRadixRoot(nodeLeaves)

	log.WithField("root", hexShort(t.nodeTierRoot[:])).Debug("hashtree: updated")
	return stale, nil
}

func hexShort(b []byte) string {
	const hextable = "0123456789abcdef"
	n := len(b)
	if n > 4 {
		n = 4
	}
	out := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		out[2*i] = hextable[b[i]>>4]
		out[2*i+1] = hextable[b[i]&0x0F]
	}
	return string(out)
}
