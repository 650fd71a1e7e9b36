package state

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/RoaringBitmap/roaring"
	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"

	"github.com/erigontech/silkrpc-sub000/remotekv"
)

// CodeCache is a process-wide, byte-budgeted cache of contract bytecode
// keyed by code hash, shared across every request's Reader the way
// go-ethereum's trie/state layer shares one fastcache.Cache for node data
// rather than re-fetching it per block: code is immutable for a given
// hash, so there is nothing request-scoped to invalidate.
type CodeCache struct {
	cache *fastcache.Cache
}

// NewCodeCache allocates a code cache with a budget of maxBytes.
func NewCodeCache(maxBytes int) *CodeCache {
	return &CodeCache{cache: fastcache.New(maxBytes)}
}

func (c *CodeCache) get(hash common.Hash) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	return c.cache.HasGet(nil, hash[:])
}

func (c *CodeCache) set(hash common.Hash, code []byte) {
	if c == nil {
		return
	}
	c.cache.Set(hash[:], code)
}

const (
	tableAccountHistory        = "AccountHistory"
	tableStorageHistory        = "StorageHistory"
	tablePlainAccountChangeSet = "PlainAccountChangeSet"
	tablePlainStorageChangeSet = "PlainStorageChangeSet"
	tablePlainState            = "PlainState"
	tableCode                  = "Code"
)

// Reader is the Historical State Reader, pinned at one block number for
// the lifetime of one request's Tx stream.
type Reader struct {
	tx          *remotekv.Tx
	blockNumber uint64

	cursors map[string]uint32

	accountCache *lru.Cache[common.Address, *Account]
	codeCache    *lru.Cache[common.Hash, []byte]
	sharedCode   *CodeCache
}

// NewReader builds a reader pinned at blockNumber, caching per-address
// lookups to amortize history scans per spec.md §4.6's invariant. codeCache
// may be nil, in which case code is only cached for this reader's lifetime
// instead of process-wide.
func NewReader(tx *remotekv.Tx, blockNumber uint64, codeCache *CodeCache) (*Reader, error) {
	accountCache, err := lru.New[common.Address, *Account](1024)
	if err != nil {
		return nil, err
	}
	localCodeCache, err := lru.New[common.Hash, []byte](256)
	if err != nil {
		return nil, err
	}
	return &Reader{
		tx:           tx,
		blockNumber:  blockNumber,
		cursors:      make(map[string]uint32),
		accountCache: accountCache,
		codeCache:    localCodeCache,
		sharedCode:   codeCache,
	}, nil
}

func (r *Reader) cursor(table string) (uint32, error) {
	if id, ok := r.cursors[table]; ok {
		return id, nil
	}
	id, err := r.tx.OpenCursor(table)
	if err != nil {
		return 0, fmt.Errorf("state: open cursor %s: %w", table, err)
	}
	r.cursors[table] = id
	return id, nil
}

// ReadAccount implements the lookup algorithm of spec.md §4.6 step 1-2.
func (r *Reader) ReadAccount(addr common.Address) (*Account, bool, error) {
	if acc, ok := r.accountCache.Get(addr); ok {
		return acc, acc != nil, nil
	}

	acc, found, err := r.readAccountUncached(addr)
	if err != nil {
		return nil, false, err
	}
	if !found {
		r.accountCache.Add(addr, nil)
		return nil, false, nil
	}
	r.accountCache.Add(addr, acc)
	return acc, true, nil
}

func (r *Reader) readAccountUncached(addr common.Address) (*Account, bool, error) {
	changeBlock, found, err := r.findChangeBlock(tableAccountHistory, addr[:])
	if err != nil {
		return nil, false, err
	}
	if found {
		cur, err := r.cursor(tablePlainAccountChangeSet)
		if err != nil {
			return nil, false, err
		}
		_, v, err := r.tx.SeekBothExact(cur, beBlock(changeBlock), addr[:])
		if err != nil {
			return nil, false, fmt.Errorf("state: read change set for %s at %d: %w", addr, changeBlock, err)
		}
		if len(v) > 0 {
			acc, err := DecodeAccount(v)
			if err != nil {
				return nil, false, err
			}
			return acc, true, nil
		}
	}

	cur, err := r.cursor(tablePlainState)
	if err != nil {
		return nil, false, err
	}
	_, v, err := r.tx.SeekExact(cur, addr[:])
	if err != nil {
		return nil, false, fmt.Errorf("state: read plain state for %s: %w", addr, err)
	}
	if len(v) == 0 {
		return nil, false, nil
	}
	acc, err := DecodeAccount(v)
	if err != nil {
		return nil, false, err
	}
	return acc, true, nil
}

// ReadStorage is the storage-keyed symmetric lookup of spec.md §4.6.
func (r *Reader) ReadStorage(addr common.Address, slot common.Hash, incarnation uint64) (common.Hash, error) {
	key := append(append([]byte{}, addr[:]...), slot[:]...)
	changeBlock, found, err := r.findChangeBlock(tableStorageHistory, key)
	if err != nil {
		return common.Hash{}, err
	}
	if found {
		cur, err := r.cursor(tablePlainStorageChangeSet)
		if err != nil {
			return common.Hash{}, err
		}
		_, v, err := r.tx.SeekBothExact(cur, beBlock(changeBlock), key)
		if err != nil {
			return common.Hash{}, fmt.Errorf("state: read storage change set for %s/%s at %d: %w", addr, slot, changeBlock, err)
		}
		if len(v) > 0 {
			return common.BytesToHash(v), nil
		}
	}

	cur, err := r.cursor(tablePlainState)
	if err != nil {
		return common.Hash{}, err
	}
	plainKey := append(append(append([]byte{}, addr[:]...), beIncarnation(incarnation)...), slot[:]...)
	_, v, err := r.tx.SeekExact(cur, plainKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("state: read plain storage for %s/%s: %w", addr, slot, err)
	}
	if len(v) == 0 {
		return common.Hash{}, nil
	}
	return common.BytesToHash(v), nil
}

// ReadCode resolves code by hash, cached per reader.
func (r *Reader) ReadCode(codeHash common.Hash) ([]byte, error) {
	if codeHash == (common.Hash{}) {
		return nil, nil
	}
	if code, ok := r.codeCache.Get(codeHash); ok {
		return code, nil
	}
	if code, ok := r.sharedCode.get(codeHash); ok {
		r.codeCache.Add(codeHash, code)
		return code, nil
	}
	cur, err := r.cursor(tableCode)
	if err != nil {
		return nil, err
	}
	_, v, err := r.tx.SeekExact(cur, codeHash[:])
	if err != nil {
		return nil, fmt.Errorf("state: read code %s: %w", codeHash, err)
	}
	code := append([]byte(nil), v...)
	r.codeCache.Add(codeHash, code)
	r.sharedCode.set(codeHash, code)
	return code, nil
}

// findChangeBlock implements step 1 of spec.md §4.6's lookup algorithm:
// seek the history table with key = prefix||beN, decode the history
// index, and return the smallest change block >= N+1.
func (r *Reader) findChangeBlock(table string, prefix []byte) (uint64, bool, error) {
	cur, err := r.cursor(table)
	if err != nil {
		return 0, false, err
	}
	searchKey := append(append([]byte{}, prefix...), beBlock(r.blockNumber)...)
	k, v, err := r.tx.Seek(cur, searchKey)
	if err != nil {
		return 0, false, fmt.Errorf("state: seek %s: %w", table, err)
	}
	if len(k) < len(prefix) || !bytes.Equal(k[:len(prefix)], prefix) {
		return 0, false, nil
	}
	idx, err := decodeHistoryIndex(v)
	if err != nil {
		return 0, false, err
	}
	it := idx.Iterator()
	target := r.blockNumber + 1
	for it.HasNext() {
		b := uint64(it.Next())
		if b >= target {
			return b, true, nil
		}
	}
	return 0, false, nil
}

// decodeHistoryIndex parses the roaring-bitmap-encoded run-length
// structure listing the change-set block numbers recorded for one
// address/slot, per spec.md §4.6's "roaring-like run-length structure".
func decodeHistoryIndex(data []byte) (*roaring.Bitmap, error) {
	bm := roaring.New()
	if len(data) == 0 {
		return bm, nil
	}
	if err := bm.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("state: decode history index: %w", err)
	}
	return bm, nil
}

func beBlock(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

func beIncarnation(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

// Exist reports whether addr has an account record visible at this
// reader's pinned block.
func (r *Reader) Exist(addr common.Address) (bool, error) {
	_, found, err := r.ReadAccount(addr)
	return found, err
}

// Balance0 is the zero uint256, returned for non-existent accounts.
func Balance0() *uint256.Int { return new(uint256.Int) }
