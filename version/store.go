package version

import (
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var (
	metaBucket = []byte("holdinvoice-meta")
	layoutKey  = []byte("layout-version")

	ErrDoesNotExist = errors.New("layout version does not exist")
)

// layoutStore keeps the layout version of the hold states in the plugin's
// bbolt file, next to the states of the bbolt backend.
type layoutStore struct {
	db *bbolt.DB
}

func newLayoutStore(db *bbolt.DB) (*layoutStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "create meta bucket")
	}
	return &layoutStore{db: db}, nil
}

func (s *layoutStore) get() (string, error) {
	var v string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(metaBucket)
		if b == nil {
			return errors.New("meta bucket missing")
		}
		data := b.Get(layoutKey)
		if data == nil {
			return ErrDoesNotExist
		}
		v = string(data)
		return nil
	})
	return v, err
}

func (s *layoutStore) set(v string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(metaBucket)
		if b == nil {
			return errors.New("meta bucket missing")
		}
		return b.Put(layoutKey, []byte(v))
	})
}
