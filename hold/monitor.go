package hold

import (
	"context"
	"fmt"
	"time"

	"github.com/elementsproject/holdinvoice/holdstate"
	"github.com/elementsproject/holdinvoice/log"
	"github.com/elementsproject/holdinvoice/store"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/pkg/errors"
)

// HTLC is an incoming htlc that pays to one of our invoices.
type HTLC struct {
	PaymentHash string
	CltvExpiry  uint32
}

// Decision tells the node whether to continue with an htlc or to fail it.
type Decision struct {
	Accept bool
	Reason string
}

func accept(reason string) Decision {
	return Decision{Accept: true, Reason: reason}
}

func reject(reason string) Decision {
	return Decision{Accept: false, Reason: reason}
}

// fault is the decision for an htlc whose state could not be determined.
func (p Params) fault(reason string) Decision {
	if p.FailurePolicy == FailClosed {
		return reject(reason)
	}
	return accept(reason)
}

// Monitor holds incoming htlcs of hold invoices until the invoice is
// released, rejected or the htlc can not be held any longer.
type Monitor struct {
	store    store.Store
	node     Node
	notifier *Notifier
	clock    clock.Clock
}

func NewMonitor(s store.Store, n Node, notifier *Notifier, clk clock.Clock) *Monitor {
	return &Monitor{store: s, node: n, notifier: notifier, clock: clk}
}

// Check blocks until a decision on the htlc is made. It returns an error
// only if ctx is done first, together with the decision of the failure
// policy.
func (m *Monitor) Check(ctx context.Context, htlc HTLC, p Params) (Decision, error) {
	wake, cancel := m.notifier.Subscribe(htlc.PaymentHash)
	defer func() { cancel() }()

	entry, err := m.store.Get(ctx, htlc.PaymentHash)
	switch {
	case errors.Is(err, store.ErrDoesNotExist):
		return accept("not a hold invoice"), nil
	case errors.Is(err, store.ErrAmbiguous):
		log.Warnf("[Monitor] %s: %v", htlc.PaymentHash, err)
		return p.fault("ambiguous hold state"), nil
	case err != nil:
		log.Warnf("[Monitor] %s: read state: %v", htlc.PaymentHash, err)
		return p.fault("hold state unavailable"), nil
	}

	var expiry *time.Time
	for {
		if d, ok := m.poll(ctx, htlc, p, entry, &expiry); ok {
			log.Debugf("[Monitor] %s: accept=%t, %s", htlc.PaymentHash, d.Accept, d.Reason)
			return d, nil
		}

		select {
		case <-m.clock.TickAfter(p.PollInterval):
		case <-wake:
		case <-ctx.Done():
			return p.fault("shutting down"), ctx.Err()
		}

		cancel()
		wake, cancel = m.notifier.Subscribe(htlc.PaymentHash)
		entry, err = m.store.Get(ctx, htlc.PaymentHash)
		if err != nil {
			log.Warnf("[Monitor] %s: read state: %v", htlc.PaymentHash, err)
			return p.fault("hold state unavailable"), nil
		}
	}
}

// poll runs the deadline checks and then maps the state to a decision. It
// returns false while the invoice is held.
func (m *Monitor) poll(ctx context.Context, htlc HTLC, p Params, entry *store.Entry, expiry **time.Time) (Decision, bool) {
	if *expiry == nil {
		t, err := m.node.InvoiceExpiry(ctx, htlc.PaymentHash)
		if err != nil {
			log.Warnf("[Monitor] %s: invoice expiry: %v", htlc.PaymentHash, err)
			return p.fault("invoice expiry unavailable"), true
		}
		*expiry = &t
	}
	if !m.clock.Now().Before(**expiry) {
		return reject("invoice expired"), true
	}

	height, err := m.node.BlockHeight(ctx)
	if err != nil {
		log.Warnf("[Monitor] %s: block height: %v", htlc.PaymentHash, err)
		return p.fault("block height unavailable"), true
	}
	deadline := int64(htlc.CltvExpiry) - int64(p.CltvDelta)
	if deadline <= int64(height)+CltvHoldSafetyMargin {
		return reject(fmt.Sprintf("htlc too close to expiry: cltv %d at height %d", htlc.CltvExpiry, height)), true
	}

	switch entry.State {
	case holdstate.Held:
		return Decision{}, false
	case holdstate.Released:
		return accept("released"), true
	case holdstate.Rejected:
		return reject("rejected"), true
	default:
		return p.fault(fmt.Sprintf("unexpected state %v", entry.State)), true
	}
}
