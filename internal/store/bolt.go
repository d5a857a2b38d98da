// Package store persists statements and their transactions in BoltDB.
package store

import (
	"encoding/binary"
	"errors"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/insightdelivered/statement-reconciler/internal/models"
)

const (
	statementsBucket   = "statements"
	transactionsBucket = "transactions"

	// DefaultBatchSize is how many transactions are written per database
	// transaction.
	DefaultBatchSize = 500
)

// Store is the persistence collaborator of the processor and the API.
type Store interface {
	CreateStatement(s *models.Statement) error
	GetStatement(id uint64) (*models.Statement, error)
	UpdateStatement(s *models.Statement) error
	ListStatements() ([]*models.Statement, error)

	// CreateTransactions appends txns to a statement, assigning IDs in place.
	CreateTransactions(statementID uint64, txns []models.Transaction) error
	// UpdateTransactions overwrites previously created transactions.
	UpdateTransactions(statementID uint64, txns []models.Transaction) error
	// DeleteTransactions removes every transaction of a statement.
	DeleteTransactions(statementID uint64) error
	// Transactions returns a statement's transactions in creation order.
	Transactions(statementID uint64) ([]models.Transaction, error)

	Close() error
}

// BoltDB implements Store. Statement keys come from the bucket sequence;
// each statement's transactions live in their own nested bucket.
type BoltDB struct {
	db    *bbolt.DB
	now   func() time.Time
	batch int
}

// Option configures a BoltDB.
type Option func(*BoltDB)

// WithBatchSize sets how many transactions share a write. Values below one
// are ignored.
func WithBatchSize(n int) Option {
	return func(b *BoltDB) {
		if n > 0 {
			b.batch = n
		}
	}
}

// NewBoltDB opens or creates the database at path.
func NewBoltDB(path string, opts ...Option) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(statementsBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(transactionsBucket)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	b := &BoltDB{db: db, now: time.Now, batch: DefaultBatchSize}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

func (b *BoltDB) CreateStatement(s *models.Statement) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(statementsBucket))
		id, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		now := b.now().UTC()
		s.ID = id
		s.CreatedAt, s.UpdatedAt = now, now
		if s.Status == "" {
			s.Status = models.StatementPending
		}
		return putJSON(bucket, itob(id), s)
	})
}

func (b *BoltDB) GetStatement(id uint64) (*models.Statement, error) {
	var s *models.Statement
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(statementsBucket)).Get(itob(id))
		if data == nil {
			return fmt.Errorf("statement %d: %w", id, models.ErrNotFound)
		}
		return json.Unmarshal(data, &s)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (b *BoltDB) UpdateStatement(s *models.Statement) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(statementsBucket))
		if bucket.Get(itob(s.ID)) == nil {
			return fmt.Errorf("statement %d: %w", s.ID, models.ErrNotFound)
		}
		s.UpdatedAt = b.now().UTC()
		return putJSON(bucket, itob(s.ID), s)
	})
}

// ListStatements returns all statements, oldest first.
func (b *BoltDB) ListStatements() ([]*models.Statement, error) {
	statements := make([]*models.Statement, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(statementsBucket)).ForEach(func(k, v []byte) error {
			var s models.Statement
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("unmarshaling statement: %w", err)
			}
			statements = append(statements, &s)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return statements, nil
}

func (b *BoltDB) CreateTransactions(statementID uint64, txns []models.Transaction) error {
	for start := 0; start < len(txns); start += b.batch {
		batch := txns[start:min(start+b.batch, len(txns))]
		err := b.db.Update(func(tx *bbolt.Tx) error {
			bucket, err := b.transactions(tx, statementID, true)
			if err != nil {
				return err
			}
			for i := range batch {
				id, err := bucket.NextSequence()
				if err != nil {
					return err
				}
				batch[i].ID, batch[i].StatementID = id, statementID
				if err := putJSON(bucket, itob(id), &batch[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("saving transactions %d-%d: %w", start, start+len(batch), err)
		}
	}
	return nil
}

func (b *BoltDB) UpdateTransactions(statementID uint64, txns []models.Transaction) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := b.transactions(tx, statementID, false)
		if err != nil {
			return err
		}
		for i := range txns {
			key := itob(txns[i].ID)
			if bucket.Get(key) == nil {
				return fmt.Errorf("transaction %d: %w", txns[i].ID, models.ErrNotFound)
			}
			txns[i].StatementID = statementID
			if err := putJSON(bucket, key, &txns[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltDB) DeleteTransactions(statementID uint64) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		err := tx.Bucket([]byte(transactionsBucket)).DeleteBucket(itob(statementID))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

func (b *BoltDB) Transactions(statementID uint64) ([]models.Transaction, error) {
	txns := make([]models.Transaction, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(statementsBucket)).Get(itob(statementID)) == nil {
			return fmt.Errorf("statement %d: %w", statementID, models.ErrNotFound)
		}
		bucket := tx.Bucket([]byte(transactionsBucket)).Bucket(itob(statementID))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var t models.Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("unmarshaling transaction: %w", err)
			}
			txns = append(txns, t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (b *BoltDB) Close() error {
	return b.db.Close()
}

// transactions returns the nested bucket of a statement that must exist.
func (b *BoltDB) transactions(tx *bbolt.Tx, statementID uint64, create bool) (*bbolt.Bucket, error) {
	if tx.Bucket([]byte(statementsBucket)).Get(itob(statementID)) == nil {
		return nil, fmt.Errorf("statement %d: %w", statementID, models.ErrNotFound)
	}
	parent := tx.Bucket([]byte(transactionsBucket))
	if create {
		return parent.CreateBucketIfNotExists(itob(statementID))
	}
	bucket := parent.Bucket(itob(statementID))
	if bucket == nil {
		return nil, fmt.Errorf("transactions of statement %d: %w", statementID, models.ErrNotFound)
	}
	return bucket, nil
}

func putJSON(bucket *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %T: %w", v, err)
	}
	return bucket.Put(key, data)
}

// itob encodes ids big-endian so keys iterate in numeric order.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
