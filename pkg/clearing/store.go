package clearing

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// ErrVersionConflict is returned by Txn.Commit when a record read during
// the transaction was modified by a concurrent commit. Callers retry the
// whole operation against fresh state.
var ErrVersionConflict = errors.New("ledger version conflict")

// Store provides Pebble-based persistence for margin accounts, positions,
// orders, funding states, and vault balances. Every record carries a
// version stamp; mutations go through a Txn that stages writes in one
// batch and commits atomically only if nothing it read has moved.
type Store struct {
	db *pebble.DB

	// Serializes the verify-then-commit step of Txn.Commit so version
	// checks and the batch write are not interleaved across transactions.
	commitMu sync.Mutex
}

// NewStore opens a Pebble database at the given path.
func NewStore(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(128 << 20),
		MemTableSize:             64 << 20,
		MaxConcurrentCompactions: func() int { return 3 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// VaultBalance is a named collateral bucket: the trader collateral vault,
// the pool vaults, and per-keeper rebate balances all share this shape.
type VaultBalance struct {
	Name    string
	Balance uint64
	Version uint64 `json:"version"`
}

// versionOnly decodes just the version stamp of a stored record.
type versionOnly struct {
	Version uint64 `json:"version"`
}

// currentVersion reads the version of the record at key, or 0 if the key
// does not exist.
func (s *Store) currentVersion(key []byte) (uint64, error) {
	data, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	defer closer.Close()

	var v versionOnly
	if err := json.Unmarshal(data, &v); err != nil {
		return 0, fmt.Errorf("failed to decode version of %s: %w", key, err)
	}
	return v.Version, nil
}

// get loads and decodes the record at key into out. Returns (false, nil)
// if the key does not exist.
func (s *Store) get(key []byte, out any) (bool, error) {
	data, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	defer closer.Close()

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Txn is a single clearing operation's view of the ledger. Reads record
// the version of every touched key (0 for absent records); writes are
// staged in an indexed batch with incremented version stamps, so reads
// within the transaction observe its own staged writes. Commit
// re-validates all read versions under the store's commit lock and
// applies the batch atomically, so two racing operations on the same
// records cannot both land.
type Txn struct {
	store *Store
	batch *pebble.Batch
	reads map[string]uint64
}

// Begin starts a transaction. The batch is indexed: a record written
// earlier in the transaction reads back with its staged value, which the
// pool relies on when it re-reads a vault it has already credited.
func (s *Store) Begin() *Txn {
	return &Txn{
		store: s,
		batch: s.db.NewIndexedBatch(),
		reads: make(map[string]uint64),
	}
}

// trackRead records the version observed for a key, first observation wins.
func (t *Txn) trackRead(key []byte, version uint64) {
	k := string(key)
	if _, ok := t.reads[k]; !ok {
		t.reads[k] = version
	}
}

// get loads and decodes the record at key through the indexed batch, so
// staged writes shadow the committed state. Returns (false, nil) if the
// key exists in neither.
func (t *Txn) get(key []byte, out any) (bool, error) {
	data, closer, err := t.batch.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	defer closer.Close()

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (t *Txn) load(key []byte, out any, version func() uint64) (bool, error) {
	found, err := t.get(key, out)
	if err != nil {
		return false, err
	}
	if found {
		t.trackRead(key, version())
	} else {
		t.trackRead(key, 0)
	}
	return found, nil
}

// Account loads a margin account, or nil if none exists.
func (t *Txn) Account(addr common.Address) (*MarginAccount, error) {
	var acct MarginAccount
	found, err := t.load(accountKey(addr), &acct, func() uint64 { return acct.Version })
	if err != nil || !found {
		return nil, err
	}
	return &acct, nil
}

// PutAccount stages an account write with a bumped version.
func (t *Txn) PutAccount(acct *MarginAccount) error {
	acct.Version++
	return t.stage(accountKey(acct.Owner), acct)
}

// Position loads an owner's position in a market, or nil if none exists.
func (t *Txn) Position(addr common.Address, marketID uint64) (*Position, error) {
	var pos Position
	found, err := t.load(positionKey(addr, marketID), &pos, func() uint64 { return pos.Version })
	if err != nil || !found {
		return nil, err
	}
	pos.normalize()
	return &pos, nil
}

// PutPosition stages a position write with a bumped version.
func (t *Txn) PutPosition(pos *Position) error {
	pos.Version++
	return t.stage(positionKey(pos.Owner, pos.MarketID), pos)
}

// Order loads an order, or nil if none exists.
func (t *Txn) Order(addr common.Address, orderID uint64) (*Order, error) {
	var ord Order
	found, err := t.load(orderKey(addr, orderID), &ord, func() uint64 { return ord.Version })
	if err != nil || !found {
		return nil, err
	}
	return &ord, nil
}

// PutOrder stages an order write with a bumped version.
func (t *Txn) PutOrder(ord *Order) error {
	ord.Version++
	return t.stage(orderKey(ord.Owner, ord.ID), ord)
}

// Funding loads a market's funding state, or nil if none exists.
func (t *Txn) Funding(marketID uint64) (*FundingState, error) {
	var fs FundingState
	found, err := t.load(fundingKey(marketID), &fs, func() uint64 { return fs.Version })
	if err != nil || !found {
		return nil, err
	}
	fs.normalize()
	return &fs, nil
}

// PutFunding stages a funding-state write with a bumped version.
func (t *Txn) PutFunding(fs *FundingState) error {
	fs.Version++
	return t.stage(fundingKey(fs.MarketID), fs)
}

// Vault loads a named vault balance, creating a zero-balance record if the
// vault has never been written.
func (t *Txn) Vault(name string) (*VaultBalance, error) {
	var vb VaultBalance
	found, err := t.load(vaultKey(name), &vb, func() uint64 { return vb.Version })
	if err != nil {
		return nil, err
	}
	if !found {
		return &VaultBalance{Name: name}, nil
	}
	return &vb, nil
}

// PutVault stages a vault-balance write with a bumped version.
func (t *Txn) PutVault(vb *VaultBalance) error {
	vb.Version++
	return t.stage(vaultKey(vb.Name), vb)
}

func (t *Txn) stage(key []byte, rec any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return t.batch.Set(key, data, nil)
}

// Commit validates every version read by the transaction against the
// current ledger and applies the staged batch atomically. Either all
// staged writes land or none do.
func (t *Txn) Commit() error {
	defer t.batch.Close()

	t.store.commitMu.Lock()
	defer t.store.commitMu.Unlock()

	for key, seen := range t.reads {
		current, err := t.store.currentVersion([]byte(key))
		if err != nil {
			return err
		}
		if current != seen {
			return fmt.Errorf("%w: %s moved from v%d to v%d", ErrVersionConflict, key, seen, current)
		}
	}
	if err := t.batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Discard drops the transaction without committing.
func (t *Txn) Discard() {
	_ = t.batch.Close()
}

// Read-only accessors for queries outside a transaction.

// GetAccount loads a margin account without joining a transaction.
func (s *Store) GetAccount(addr common.Address) (*MarginAccount, error) {
	var acct MarginAccount
	found, err := s.get(accountKey(addr), &acct)
	if err != nil || !found {
		return nil, err
	}
	return &acct, nil
}

// GetPosition loads a position without joining a transaction.
func (s *Store) GetPosition(addr common.Address, marketID uint64) (*Position, error) {
	var pos Position
	found, err := s.get(positionKey(addr, marketID), &pos)
	if err != nil || !found {
		return nil, err
	}
	pos.normalize()
	return &pos, nil
}

// GetPositions loads all of an owner's positions.
func (s *Store) GetPositions(addr common.Address) ([]*Position, error) {
	prefix := positionPrefix(addr)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open position iterator: %w", err)
	}
	defer iter.Close()

	var positions []*Position
	for iter.First(); iter.Valid(); iter.Next() {
		var pos Position
		if err := json.Unmarshal(iter.Value(), &pos); err != nil {
			continue // skip invalid entries
		}
		pos.normalize()
		positions = append(positions, &pos)
	}
	return positions, nil
}

// GetOrder loads an order without joining a transaction.
func (s *Store) GetOrder(addr common.Address, orderID uint64) (*Order, error) {
	var ord Order
	found, err := s.get(orderKey(addr, orderID), &ord)
	if err != nil || !found {
		return nil, err
	}
	return &ord, nil
}

// GetOpenOrders loads all of an owner's non-terminal orders.
func (s *Store) GetOpenOrders(addr common.Address) ([]*Order, error) {
	prefix := orderPrefix(addr)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open order iterator: %w", err)
	}
	defer iter.Close()

	var orders []*Order
	for iter.First(); iter.Valid(); iter.Next() {
		var ord Order
		if err := json.Unmarshal(iter.Value(), &ord); err != nil {
			continue // skip invalid entries
		}
		if !ord.Status.IsTerminal() {
			orders = append(orders, &ord)
		}
	}
	return orders, nil
}

// GetFunding loads a market's funding state without joining a transaction.
func (s *Store) GetFunding(marketID uint64) (*FundingState, error) {
	var fs FundingState
	found, err := s.get(fundingKey(marketID), &fs)
	if err != nil || !found {
		return nil, err
	}
	fs.normalize()
	return &fs, nil
}

// GetVault loads a vault balance, zero if never written.
func (s *Store) GetVault(name string) (*VaultBalance, error) {
	var vb VaultBalance
	found, err := s.get(vaultKey(name), &vb)
	if err != nil {
		return nil, err
	}
	if !found {
		return &VaultBalance{Name: name}, nil
	}
	return &vb, nil
}
