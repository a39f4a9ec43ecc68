// Package params implements the swap's only persistent state: a typed
// key/sub-transaction-id/value store backed by bbolt.
package params

import (
	"encoding/binary"
	"errors"

	bolt "github.com/coreos/bbolt"

	"github.com/beam-mw/btcswap/dispatch"
)

// Key identifies a persisted parameter. The swap package owns the
// concrete enumeration (TxParameterId); Store only needs the numeric
// identity and, optionally, a sub-transaction scope.
type Key uint16

// SubTx scopes a Key to one of the swap's logical sub-transactions, or
// to the global/transient scope (NoSubTx).
type SubTx uint16

// NoSubTx marks a globally-scoped parameter (no per-subtx namespacing).
const NoSubTx SubTx = 0

var errNotFound = errors.New("params: value not present")

// ErrNotFound is returned by Get when no value is stored for the given
// key/subtx pair.
var ErrNotFound = errNotFound

var bucketName = []byte("swapParameters")

// Store is a single-writer, bbolt-backed key/value facade. It is safe
// for concurrent reads from multiple goroutines but Set calls must all
// originate from the same goroutine that owns the swap driver.
type Store struct {
	db *bolt.DB
	d  *dispatch.Dispatcher
}

// Open opens (creating if absent) a bbolt database at path and returns a
// Store bound to the given Dispatcher for UpdateAsync re-entry.
func Open(path string, d *dispatch.Dispatcher) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, d: d}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(key Key, subTx SubTx) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint16(b[0:2], uint16(key))
	binary.BigEndian.PutUint16(b[2:4], uint16(subTx))
	return b
}

// GetBytes loads the raw value stored for (key, subTx), or ErrNotFound.
func (s *Store) GetBytes(key Key, subTx SubTx) ([]byte, error) {
	var val []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		v := b.Get(recordKey(key, subTx))
		if v == nil {
			return errNotFound
		}
		val = make([]byte, len(v))
		copy(val, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return val, nil
}

// SetBytes persists val for (key, subTx). persistImmediately controls
// whether the write is fsync'd as part of this call (true) or may be
// deferred to the next call that does sync (false). bbolt always commits
// durably per-transaction, so in this implementation the flag has no
// effect: both modes commit synchronously before SetBytes returns.
func (s *Store) SetBytes(key Key, subTx SubTx, val []byte, persistImmediately bool) error {
	write := func() error {
		return s.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketName)
			return b.Put(recordKey(key, subTx), val)
		})
	}
	if persistImmediately {
		return write()
	}
	// bbolt has no partial-durability mode, so deferred writes still
	// commit synchronously here.
	return write()
}

// UpdateAsync schedules fn to run on the Store's Dispatcher, letting a
// parameter-store mutation re-enter the owning driver safely.
func (s *Store) UpdateAsync(fn func()) {
	s.d.Post(fn)
}

// Update runs fn synchronously; the synchronous counterpart to
// UpdateAsync for call sites that are already on the Dispatcher's
// goroutine.
func (s *Store) Update(fn func()) {
	fn()
}
