package version

import (
	"fmt"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

const (
	// version is the layout version of the persisted hold states.
	version = "v1"

	// MinClnVersion is the first core-lightning release with the
	// datastore generation checks and htlc_accepted fields we rely on.
	MinClnVersion = "v23.08"
)

type HeldInvoicesGetter interface {
	HasHeldInvoices() (bool, error)
}

type VersionService struct {
	layout *layoutStore
}

func NewVersionService(boltdb *bbolt.DB) (*VersionService, error) {
	layout, err := newLayoutStore(boltdb)
	if err != nil {
		return nil, err
	}
	return &VersionService{layout: layout}, nil
}

// SafeUpgrade records the current layout version, only if no invoice is
// held under a different one.
func (vs *VersionService) SafeUpgrade(held HeldInvoicesGetter) error {
	currentVersion, err := vs.layout.get()
	if err != nil && !errors.Is(err, ErrDoesNotExist) {
		return err
	}

	if err == nil && currentVersion == version {
		return nil
	}

	hasHeld, err := held.HasHeldInvoices()
	if err != nil {
		return err
	}

	// A fresh database has no version yet but may well be used by a
	// datastore backend that already holds invoices.
	if hasHeld && currentVersion != "" {
		return HeldInvoicesError{currentVersion}
	}

	return vs.layout.set(version)
}

// GetCurrentVersion returns the hardcoded layout version.
func GetCurrentVersion() string {
	return version
}

type HeldInvoicesError struct {
	version string
}

func (h HeldInvoicesError) Error() string {
	return fmt.Sprintf("Can't upgrade because invoices are held. Settle or cancel them with holdinvoice %s first", h.version)
}
