// Package hold implements hold invoices: the controller that creates and
// decides them and the monitor that admits htlcs against their state.
package hold

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/elementsproject/holdinvoice/holdstate"
	"github.com/elementsproject/holdinvoice/log"
	"github.com/elementsproject/holdinvoice/node"
	"github.com/elementsproject/holdinvoice/store"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/pkg/errors"
)

var (
	ErrInvalidPreimage = errors.New("preimage must be 64 hex characters")
	ErrStateConflict   = errors.New("hold invoice already has a different final state")
)

// maxReplaceAttempts bounds the read-replace loop on generation mismatches.
const maxReplaceAttempts = 3

// Node is the part of the lightning node the hold invoices need.
type Node interface {
	CreateInvoice(ctx context.Context, req node.InvoiceRequest) (*node.Invoice, error)
	InvoiceExpiry(ctx context.Context, paymentHash string) (time.Time, error)
	BlockHeight(ctx context.Context) (uint32, error)
}

type CreateRequest struct {
	AmountMsat  lnwire.MilliSatoshi
	Label       string
	Description string
	// Expiry of 0 selects DefaultExpiry.
	Expiry time.Duration
	// Preimage in hex. A random preimage is used if empty.
	Preimage string
}

// Controller creates hold invoices and records the release and reject
// decisions.
type Controller struct {
	store    store.Store
	node     Node
	notifier *Notifier
}

func NewController(s store.Store, n Node, notifier *Notifier) *Controller {
	return &Controller{store: s, node: n, notifier: notifier}
}

// Create creates the invoice on the node and marks it as held.
func (c *Controller) Create(ctx context.Context, req CreateRequest, p Params) (*node.Invoice, error) {
	preimage, err := getPreimage(req.Preimage)
	if err != nil {
		return nil, err
	}
	paymentHash := preimage.Hash().String()

	inv, err := c.node.CreateInvoice(ctx, node.InvoiceRequest{
		AmountMsat:  req.AmountMsat,
		Label:       req.Label,
		Description: req.Description,
		Expiry:      clampExpiry(req.Expiry),
		Preimage:    preimage,
		Cltv:        p.InvoiceCltv(),
	})
	if err != nil {
		return nil, err
	}
	if inv.PaymentHash != paymentHash {
		return nil, errors.Errorf("node returned payment hash %s, expected %s", inv.PaymentHash, paymentHash)
	}

	err = c.store.Create(ctx, paymentHash, holdstate.Held)
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil, errors.Wrapf(err, "duplicate invoice %s", paymentHash)
	}
	if err != nil {
		// The invoice stays on the node without a hold state, its htlcs
		// are not held.
		log.Warnf("[Hold] invoice %s (label %s) has no hold state: %v", paymentHash, req.Label, err)
		return nil, errors.Wrapf(err, "record hold state of %s", paymentHash)
	}
	log.Infof("[Hold] holding invoice %s (label %s, %v)", paymentHash, req.Label, req.AmountMsat)
	return inv, nil
}

// Release marks a held invoice as released so that its htlcs are accepted.
func (c *Controller) Release(ctx context.Context, paymentHash string) error {
	return c.decide(ctx, paymentHash, holdstate.Released)
}

// Reject marks a held invoice as rejected so that its htlcs are failed.
func (c *Controller) Reject(ctx context.Context, paymentHash string) error {
	return c.decide(ctx, paymentHash, holdstate.Rejected)
}

func (c *Controller) decide(ctx context.Context, paymentHash string, target holdstate.State) error {
	for attempt := 1; ; attempt++ {
		entry, err := c.store.Get(ctx, paymentHash)
		if err != nil {
			return err
		}
		if entry.State == target {
			return nil
		}
		if entry.State.IsFinal() {
			return errors.Wrapf(ErrStateConflict, "%s is %s", paymentHash, entry.State)
		}

		err = c.store.Replace(ctx, paymentHash, target, entry.Generation)
		if errors.Is(err, store.ErrGenerationMismatch) && attempt < maxReplaceAttempts {
			continue
		}
		if err != nil {
			return err
		}
		break
	}
	log.Infof("[Hold] invoice %s %s", paymentHash, target)
	c.notifier.Notify(paymentHash)
	return nil
}

// Query returns the state of a hold invoice or store.ErrDoesNotExist.
func (c *Controller) Query(ctx context.Context, paymentHash string) (holdstate.State, error) {
	entry, err := c.store.Get(ctx, paymentHash)
	if err != nil {
		return 0, err
	}
	return entry.State, nil
}

func (c *Controller) List(ctx context.Context) ([]*store.Entry, error) {
	return c.store.List(ctx)
}

func (c *Controller) HasHeldInvoices() (bool, error) {
	entries, err := c.store.List(context.Background())
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.State == holdstate.Held {
			return true, nil
		}
	}
	return false, nil
}

func getPreimage(preimageHex string) (lntypes.Preimage, error) {
	var preimage lntypes.Preimage
	if preimageHex == "" {
		if _, err := rand.Read(preimage[:]); err != nil {
			return preimage, errors.Wrap(err, "generate preimage")
		}
		return preimage, nil
	}
	if len(preimageHex) != 2*lntypes.PreimageSize {
		return preimage, ErrInvalidPreimage
	}
	p, err := lntypes.MakePreimageFromStr(preimageHex)
	if err != nil {
		return preimage, errors.Wrap(ErrInvalidPreimage, err.Error())
	}
	return p, nil
}
