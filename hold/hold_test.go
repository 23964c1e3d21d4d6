package hold

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/elementsproject/holdinvoice/holdstate"
	"github.com/elementsproject/holdinvoice/node"
	"github.com/elementsproject/holdinvoice/store"
)

const testPreimage = "0101010101010101010101010101010101010101010101010101010101010101"

func testPaymentHash() string {
	b, _ := hex.DecodeString(testPreimage)
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

type fakeNode struct {
	sync.Mutex
	invoices    []node.InvoiceRequest
	createErr   error
	expiry      time.Time
	expiryErr   error
	expiryCalls int
	height      uint32
	heightErr   error
}

func (f *fakeNode) CreateInvoice(ctx context.Context, req node.InvoiceRequest) (*node.Invoice, error) {
	f.Lock()
	defer f.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.invoices = append(f.invoices, req)
	return &node.Invoice{
		PaymentHash: req.Preimage.Hash().String(),
		Preimage:    req.Preimage.String(),
		AmountMsat:  req.AmountMsat,
		Label:       req.Label,
		Description: req.Description,
		Cltv:        req.Cltv,
	}, nil
}

func (f *fakeNode) InvoiceExpiry(ctx context.Context, paymentHash string) (time.Time, error) {
	f.Lock()
	defer f.Unlock()
	f.expiryCalls++
	return f.expiry, f.expiryErr
}

func (f *fakeNode) BlockHeight(ctx context.Context) (uint32, error) {
	f.Lock()
	defer f.Unlock()
	return f.height, f.heightErr
}

func (f *fakeNode) lastInvoice() node.InvoiceRequest {
	f.Lock()
	defer f.Unlock()
	return f.invoices[len(f.invoices)-1]
}

func (f *fakeNode) getExpiryCalls() int {
	f.Lock()
	defer f.Unlock()
	return f.expiryCalls
}

// getErrStore fails every Get with err.
type getErrStore struct {
	*store.MemStore
	err error
}

func (s *getErrStore) Get(ctx context.Context, paymentHash string) (*store.Entry, error) {
	return nil, s.err
}

// createErrStore fails every Create with err.
type createErrStore struct {
	*store.MemStore
	err error
}

func (s *createErrStore) Create(ctx context.Context, paymentHash string, state holdstate.State) error {
	return s.err
}

// racingStore lets another writer decide the invoice right before the
// first Replace.
type racingStore struct {
	*store.MemStore
	once  sync.Once
	state holdstate.State
}

func (s *racingStore) Replace(ctx context.Context, paymentHash string, state holdstate.State, generation uint64) error {
	s.once.Do(func() {
		_ = s.MemStore.Replace(ctx, paymentHash, s.state, generation)
	})
	return s.MemStore.Replace(ctx, paymentHash, state, generation)
}

func (n *Notifier) waiting(paymentHash string) int {
	n.Lock()
	defer n.Unlock()
	return len(n.subs[paymentHash])
}
