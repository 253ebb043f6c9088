package core

import (
	"container/list"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"go.uber.org/zap"
)

// diskEntry tracks one on-disk partition-scan cache file for LRU eviction,
// mirroring the original IPFS gateway wrapper's diskLRU bookkeeping.
type diskEntry struct {
	key  string
	path string
	size int64
}

// diskLRU is size-bounded LRU bookkeeping over node+partition keys, touched
// whenever DiskSubstateDB reads or writes a partition file. It stores no
// data of its own and is never consulted on reads; eviction only drops the
// entry, removes any file at its path under the cache directory and logs
// it, so the authoritative partition files are never affected.
type diskLRU struct {
	mu      sync.Mutex
	dir     string
	maxSize int64
	size    int64
	order   *list.List
	index   map[string]*list.Element
	zlog    *zap.Logger
}

func newDiskLRU(dir string, maxSize int64, zlog *zap.Logger) (*diskLRU, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &diskLRU{
		dir:     dir,
		maxSize: maxSize,
		order:   list.New(),
		index:   map[string]*list.Element{},
		zlog:    zlog,
	}, nil
}

func (c *diskLRU) touch(key string, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.order.MoveToFront(el)
		return
	}
	entry := &diskEntry{key: key, path: filepath.Join(c.dir, key), size: size}
	c.index[key] = c.order.PushFront(entry)
	c.size += size

	for c.size > c.maxSize && c.order.Len() > 0 {
		back := c.order.Back()
		ev := back.Value.(*diskEntry)
		c.order.Remove(back)
		delete(c.index, ev.key)
		c.size -= ev.size
		os.Remove(ev.path)
		c.zlog.Debug("substatedb_disk: evicted cache entry", zap.String("key", ev.key))
	}
}

// DiskSubstateDB is an on-disk SubstateDatabase: every partition is stored
// as one file under base/<node-hex>/<partition>.snap. Each committed
// partition's CID is computed and logged but not used for addressing. The
// diskLRU bookkeeping is grounded on the original storage.go IPFS/Arweave
// gateway wrapper.
type DiskSubstateDB struct {
	base  string
	cache *diskLRU
	zlog  *zap.Logger
	mu    sync.RWMutex
}

// NewDiskSubstateDB opens (creating if absent) a disk-backed substate
// database rooted at dir, with its diskLRU bookkeeping bounded by cacheBytes.
func NewDiskSubstateDB(dir string, cacheBytes int64) (*DiskSubstateDB, error) {
	zlog, err := zap.NewProduction()
	if err != nil {
		zlog = zap.NewNop()
	}
	cache, err := newDiskLRU(filepath.Join(dir, "cache"), cacheBytes, zlog)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskSubstateDB{base: dir, cache: cache, zlog: zlog}, nil
}

func (db *DiskSubstateDB) partitionFile(node NodeId, partition PartitionNum) string {
	return filepath.Join(db.base, hex.EncodeToString(node[:]), partitionFileName(partition))
}

func partitionFileName(p PartitionNum) string {
	return hex.EncodeToString([]byte{byte(p >> 24), byte(p >> 16), byte(p >> 8), byte(p)}) + ".snap"
}

func (db *DiskSubstateDB) Get(node NodeId, partition PartitionNum, key SortKey) ([]byte, bool, error) {
	entries, err := db.ListEntries(node, partition)
	if err != nil {
		return nil, false, err
	}
	for _, e := range entries {
		if string(e.Sort) == string(key) {
			return e.Value, true, nil
		}
	}
	return nil, false, nil
}

func (db *DiskSubstateDB) ListEntries(node NodeId, partition PartitionNum) ([]PartitionEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	path := db.partitionFile(node, partition)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err, "read partition snapshot")
	}
	entries, err := decodePartitionSnapshot(raw)
	if err != nil {
		return nil, wrap(err, "decode partition snapshot")
	}
	info, statErr := os.Stat(path)
	if statErr == nil {
		db.cache.touch(hex.EncodeToString(node[:])+partitionFileName(partition), info.Size())
	}
	return sortEntries(entries), nil
}

func (db *DiskSubstateDB) Commit(updates DatabaseUpdates) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for node, byPartition := range updates {
		for partition, change := range byPartition {
			entries, err := db.rawEntries(node, partition)
			if err != nil {
				return err
			}
			if change.Reset {
				entries = map[string][]byte{}
			}
			for k := range change.Deletes {
				delete(entries, k)
			}
			for k, v := range change.Sets {
				entries[k] = v
			}
			if err := db.writePartition(node, partition, entries); err != nil {
				return err
			}
			// DeriveCID addresses the encoded partition content the same
			// way the original storage.go addressed pinned blobs; it is
			// not persisted here, only logged, since the node+partition
			// pair is already the canonical address within this store.
			c := deriveCID(Encode(encodePartitionValue(entries)))
			db.zlog.Debug("substatedb_disk: committed partition",
				zap.String("node", node.Short()),
				zap.Uint32("partition", uint32(partition)),
				zap.String("cid", c.String()))
		}
	}
	return nil
}

func (db *DiskSubstateDB) rawEntries(node NodeId, partition PartitionNum) (map[string][]byte, error) {
	path := db.partitionFile(node, partition)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string][]byte{}, nil
	}
	if err != nil {
		return nil, wrap(err, "read partition snapshot")
	}
	entries, err := decodePartitionSnapshot(raw)
	if err != nil {
		return nil, err
	}
	out := map[string][]byte{}
	for _, e := range entries {
		out[string(e.Sort)] = e.Value
	}
	return out, nil
}

func (db *DiskSubstateDB) writePartition(node NodeId, partition PartitionNum, entries map[string][]byte) error {
	path := db.partitionFile(node, partition)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return wrap(err, "mkdir partition dir")
	}
	encoded := Encode(encodePartitionValue(entries))
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return wrap(err, "write partition snapshot")
	}
	db.cache.touch(hex.EncodeToString(node[:])+partitionFileName(partition), int64(len(encoded)))
	return nil
}

func encodePartitionValue(entries map[string][]byte) Value {
	m := make([]MapEntry, 0, len(entries))
	for k, v := range entries {
		m = append(m, MapEntry{Key: Bytes([]byte(k)), Val: Bytes(v)})
	}
	return Value{Kind: KindMap, Map: m}
}

func decodePartitionSnapshot(raw []byte) ([]PartitionEntry, error) {
	v, _, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	out := make([]PartitionEntry, 0, len(v.Map))
	for _, e := range v.Map {
		out = append(out, PartitionEntry{Sort: SortKey(e.Key.Bytes), Value: e.Val.Bytes})
	}
	return out, nil
}

// deriveCID content-addresses encoded partition bytes the way the original
// IPFS/Arweave gateway wrapper addressed pinned blobs.
func deriveCID(data []byte) cid.Cid {
	sum, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef
	}
	return cid.NewCidV1(cid.Raw, sum)
}

var _ SubstateDatabase = (*DiskSubstateDB)(nil)
