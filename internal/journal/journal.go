// Package journal persists found-block records so a solved block is never
// lost to a crash between discovery and submission.
package journal

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/djkazic/solominer/pkg/util"
)

var solutionsBucket = []byte("solutions")

// Record is one found block. Encoded with CBOR; the store key is the block
// hash in internal byte order.
type Record struct {
	Hash         [32]byte `cbor:"1,keyasint"`
	Header       []byte   `cbor:"2,keyasint"`
	Nonce        uint32   `cbor:"3,keyasint"`
	ExtraNonce   uint64   `cbor:"4,keyasint"`
	Height       int64    `cbor:"5,keyasint"`
	CoinbaseTx   []byte   `cbor:"6,keyasint"`
	FoundAt      int64    `cbor:"7,keyasint"` // unix seconds
	Submitted    bool     `cbor:"8,keyasint"`
	RejectReason string   `cbor:"9,keyasint,omitempty"`
}

// Store is a bbolt-backed journal of found blocks.
type Store struct {
	db     *bolt.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the journal at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(solutionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Add writes a record. Re-adding the same block hash overwrites the previous
// record, which is what submission-outcome updates want.
func (s *Store) Add(rec *Record) error {
	data, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(solutionsBucket).Put(rec.Hash[:], data)
	})
	if err != nil {
		return fmt.Errorf("store record: %w", err)
	}

	s.logger.Debug("journaled solution",
		zap.String("hash", util.HashToHex(rec.Hash)),
		zap.Int64("height", rec.Height),
	)
	return nil
}

// Get fetches a record by block hash.
func (s *Store) Get(hash [32]byte) (*Record, bool) {
	var rec *Record
	s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(solutionsBucket).Get(hash[:])
		if data == nil {
			return nil
		}
		var r Record
		if err := cbor.Unmarshal(data, &r); err != nil {
			s.logger.Warn("corrupt journal record",
				zap.String("hash", util.HashToHex(hash)),
				zap.Error(err),
			)
			return nil
		}
		rec = &r
		return nil
	})
	return rec, rec != nil
}

// List returns all records, unordered.
func (s *Store) List() ([]*Record, error) {
	var out []*Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(solutionsBucket).ForEach(func(_, v []byte) error {
			var r Record
			if err := cbor.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			out = append(out, &r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of journaled solutions.
func (s *Store) Count() int {
	var n int
	s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(solutionsBucket).Stats().KeyN
		return nil
	})
	return n
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
