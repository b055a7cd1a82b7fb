package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "products"

// Store defines the persistence operations for imported catalog feeds
type Store interface {
	// Import replaces the stored catalog with records
	Import(records []ProductRecord) error

	// Load returns all stored records ordered by registration number
	Load() ([]ProductRecord, error)

	// Close closes the underlying database
	Close() error
}

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) a catalog database at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Import replaces the stored catalog in a single transaction
func (b *BoltStore) Import(records []ProductRecord) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil && err != bbolt.ErrBucketNotFound {
			return fmt.Errorf("clearing catalog: %w", err)
		}
		bucket, err := tx.CreateBucket([]byte(bucketName))
		if err != nil {
			return fmt.Errorf("recreating catalog: %w", err)
		}
		for _, r := range records {
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("marshaling record %s: %w", r.RegistrationNumber, err)
			}
			key := strings.ToUpper(strings.TrimSpace(r.RegistrationNumber))
			if err := bucket.Put([]byte(key), data); err != nil {
				return fmt.Errorf("storing record %s: %w", r.RegistrationNumber, err)
			}
		}
		return nil
	})
}

// Load returns all stored records
func (b *BoltStore) Load() ([]ProductRecord, error) {
	records := make([]ProductRecord, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var r ProductRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshaling record %s: %w", k, err)
			}
			records = append(records, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}
