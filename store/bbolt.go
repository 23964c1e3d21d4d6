package store

import (
	"context"
	"encoding/json"

	"github.com/elementsproject/holdinvoice/holdstate"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

type BboltStore struct {
	db     *bbolt.DB
	bucket []byte
}

// NewBboltStore keeps the states in a local bbolt bucket named after the
// namespace.
func NewBboltStore(db *bbolt.DB, namespace string) (*BboltStore, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	tx, err := db.Begin(true)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	_, err = tx.CreateBucketIfNotExists([]byte(namespace))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &BboltStore{db: db, bucket: []byte(namespace)}, nil
}

func (s *BboltStore) Create(ctx context.Context, paymentHash string, state holdstate.State) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return errors.New("bucket nil")
		}
		if b.Get([]byte(paymentHash)) != nil {
			return ErrAlreadyExists
		}
		return put(b, &Entry{PaymentHash: paymentHash, State: state})
	})
}

func (s *BboltStore) Replace(ctx context.Context, paymentHash string, state holdstate.State, generation uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return errors.New("bucket nil")
		}
		current, err := get(b, paymentHash)
		if err != nil {
			return err
		}
		if current.Generation != generation {
			return ErrGenerationMismatch
		}
		return put(b, &Entry{
			PaymentHash: paymentHash,
			State:       state,
			Generation:  generation + 1,
		})
	})
}

func (s *BboltStore) Get(ctx context.Context, paymentHash string) (*Entry, error) {
	var entry *Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return errors.New("bucket nil")
		}
		var err error
		entry, err = get(b, paymentHash)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *BboltStore) List(ctx context.Context) ([]*Entry, error) {
	var entries []*Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return errors.New("bucket nil")
		}
		return b.ForEach(func(k, v []byte) error {
			entry := &Entry{}
			if err := json.Unmarshal(v, entry); err != nil {
				return errors.Wrapf(err, "decode state of %s", k)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func get(b *bbolt.Bucket, paymentHash string) (*Entry, error) {
	data := b.Get([]byte(paymentHash))
	if data == nil {
		return nil, ErrDoesNotExist
	}
	entry := &Entry{}
	if err := json.Unmarshal(data, entry); err != nil {
		return nil, errors.Wrapf(err, "decode state of %s", paymentHash)
	}
	return entry, nil
}

func put(b *bbolt.Bucket, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return b.Put([]byte(entry.PaymentHash), data)
}
