package clightning

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/elementsproject/glightning/jrpc2"
	"github.com/elementsproject/holdinvoice/hold"
	"github.com/elementsproject/holdinvoice/holdstate"
	"github.com/elementsproject/holdinvoice/log"
	"github.com/elementsproject/holdinvoice/store"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
)

var (
	errHashNotFound = errors.New("Hash not found!")
	errNotReady     = errors.New("holdinvoice is not ready yet")
)

type holdRpcMethod interface {
	jrpc2.ServerMethod
	Description() string
	LongDescription() string
}

func (c *ClightningClient) holdMethods() []holdRpcMethod {
	return []holdRpcMethod{
		&AddHoldInvoice{cl: c},
		&CancelInvoice{cl: c},
		&SettleInvoice{cl: c},
		&GetStateFromStore{cl: c},
		&GetDelta{cl: c},
		&GetBlockHeight{cl: c},
		&ListHoldInvoices{cl: c},
		&ReloadHoldConfig{cl: c},
	}
}

type successResponse struct {
	Result string `json:"result"`
}

var success = &successResponse{Result: "success"}

func parsePaymentHash(paymentHash string) (string, error) {
	if paymentHash == "" {
		return "", errors.New("Missing required payment_hash parameter")
	}
	h, err := lntypes.MakeHashFromStr(paymentHash)
	if err != nil {
		return "", fmt.Errorf("invalid payment_hash: %w", err)
	}
	return h.String(), nil
}

func mapStoreError(err error) error {
	if errors.Is(err, store.ErrDoesNotExist) {
		return errHashNotFound
	}
	return err
}

type AddHoldInvoice struct {
	AmountMsat         uint64          `json:"amount_msat"`
	Label              string          `json:"label"`
	InvoiceDescription string          `json:"description"`
	Expiry             json.RawMessage `json:"expiry,omitempty"`
	Preimage           string          `json:"preimage,omitempty"`

	cl *ClightningClient `json:"-"`
}

func (a *AddHoldInvoice) Name() string {
	return "addholdinvoice"
}

func (a *AddHoldInvoice) New() interface{} {
	return &AddHoldInvoice{
		cl: a.cl,
	}
}

func (a *AddHoldInvoice) Description() string {
	return "Adds a hold invoice"
}

func (a *AddHoldInvoice) LongDescription() string {
	return "Creates an invoice that is held until settleinvoice or cancelinvoice " +
		"is called. The fourth positional argument is taken as preimage if it " +
		"is 64 hex characters and as expiry in seconds otherwise."
}

func (a *AddHoldInvoice) Call() (jrpc2.Result, error) {
	if a.AmountMsat == 0 {
		return nil, errors.New("Missing required amount_msat parameter")
	}
	if a.Label == "" {
		return nil, errors.New("Missing required label parameter")
	}
	if a.InvoiceDescription == "" {
		return nil, errors.New("Missing required description parameter")
	}
	expiry, preimage, err := a.expiryAndPreimage()
	if err != nil {
		return nil, err
	}

	controller, _, _ := a.cl.services()
	if controller == nil {
		return nil, errNotReady
	}
	inv, err := controller.Create(a.cl.ctx, hold.CreateRequest{
		AmountMsat:  lnwire.MilliSatoshi(a.AmountMsat),
		Label:       a.Label,
		Description: a.InvoiceDescription,
		Expiry:      expiry,
		Preimage:    preimage,
	}, a.cl.Params())
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// expiryAndPreimage resolves the expiry slot that may carry a preimage.
func (a *AddHoldInvoice) expiryAndPreimage() (time.Duration, string, error) {
	preimage := a.Preimage
	if len(a.Expiry) == 0 || string(a.Expiry) == "null" {
		return 0, preimage, nil
	}

	var seconds uint64
	if err := json.Unmarshal(a.Expiry, &seconds); err == nil {
		return time.Duration(seconds) * time.Second, preimage, nil
	}

	var s string
	if err := json.Unmarshal(a.Expiry, &s); err != nil {
		return 0, "", fmt.Errorf("invalid expiry %s", a.Expiry)
	}
	if _, err := lntypes.MakePreimageFromStr(s); err == nil && len(s) == 2*lntypes.PreimageSize {
		if preimage != "" {
			return 0, "", errors.New("preimage given twice")
		}
		return 0, s, nil
	}
	seconds, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid expiry %q", s)
	}
	return time.Duration(seconds) * time.Second, preimage, nil
}

type CancelInvoice struct {
	PaymentHash string `json:"payment_hash"`

	cl *ClightningClient `json:"-"`
}

func (c *CancelInvoice) Name() string {
	return "cancelinvoice"
}

func (c *CancelInvoice) New() interface{} {
	return &CancelInvoice{
		cl: c.cl,
	}
}

func (c *CancelInvoice) Description() string {
	return "Rejects the htlcs of a hold invoice"
}

func (c *CancelInvoice) LongDescription() string {
	return "Marks the hold invoice as rejected. Held and future htlcs of the invoice are failed."
}

func (c *CancelInvoice) Call() (jrpc2.Result, error) {
	paymentHash, err := parsePaymentHash(c.PaymentHash)
	if err != nil {
		return nil, err
	}
	controller, _, _ := c.cl.services()
	if controller == nil {
		return nil, errNotReady
	}
	if err := controller.Reject(c.cl.ctx, paymentHash); err != nil {
		return nil, mapStoreError(err)
	}
	return success, nil
}

type SettleInvoice struct {
	PaymentHash string `json:"payment_hash"`

	cl *ClightningClient `json:"-"`
}

func (s *SettleInvoice) Name() string {
	return "settleinvoice"
}

func (s *SettleInvoice) New() interface{} {
	return &SettleInvoice{
		cl: s.cl,
	}
}

func (s *SettleInvoice) Description() string {
	return "Settles a hold invoice"
}

func (s *SettleInvoice) LongDescription() string {
	return "Marks the hold invoice as released. Held and future htlcs of the invoice are accepted."
}

func (s *SettleInvoice) Call() (jrpc2.Result, error) {
	paymentHash, err := parsePaymentHash(s.PaymentHash)
	if err != nil {
		return nil, err
	}
	controller, _, _ := s.cl.services()
	if controller == nil {
		return nil, errNotReady
	}
	if err := controller.Release(s.cl.ctx, paymentHash); err != nil {
		return nil, mapStoreError(err)
	}
	return success, nil
}

type GetStateFromStore struct {
	PaymentHash string `json:"payment_hash"`

	cl *ClightningClient `json:"-"`
}

type StateResponse struct {
	PreimageState holdstate.State `json:"PreimageState"`
}

func (g *GetStateFromStore) Name() string {
	return "getstatefromstore"
}

func (g *GetStateFromStore) New() interface{} {
	return &GetStateFromStore{
		cl: g.cl,
	}
}

func (g *GetStateFromStore) Description() string {
	return "Returns the state of a hold invoice"
}

func (g *GetStateFromStore) LongDescription() string {
	return "Returns held, released or rejected for the given payment hash."
}

func (g *GetStateFromStore) Call() (jrpc2.Result, error) {
	paymentHash, err := parsePaymentHash(g.PaymentHash)
	if err != nil {
		return nil, err
	}
	controller, _, _ := g.cl.services()
	if controller == nil {
		return nil, errNotReady
	}
	state, err := controller.Query(g.cl.ctx, paymentHash)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return &StateResponse{PreimageState: state}, nil
}

type GetDelta struct {
	cl *ClightningClient `json:"-"`
}

type DeltaResponse struct {
	CltvDelta uint32 `json:"cltv-delta"`
}

func (g *GetDelta) Name() string {
	return "getdelta"
}

func (g *GetDelta) New() interface{} {
	return &GetDelta{
		cl: g.cl,
	}
}

func (g *GetDelta) Description() string {
	return "Returns the cltv delta"
}

func (g *GetDelta) LongDescription() string {
	return "Returns the cltv delta hold invoices are checked against."
}

func (g *GetDelta) Call() (jrpc2.Result, error) {
	return &DeltaResponse{CltvDelta: g.cl.Params().CltvDelta}, nil
}

type GetBlockHeight struct {
	cl *ClightningClient `json:"-"`
}

type BlockHeightResponse struct {
	Blockheight uint32 `json:"blockheight"`
}

func (g *GetBlockHeight) Name() string {
	return "getblockheight"
}

func (g *GetBlockHeight) New() interface{} {
	return &GetBlockHeight{
		cl: g.cl,
	}
}

func (g *GetBlockHeight) Description() string {
	return "Returns the current block height"
}

func (g *GetBlockHeight) LongDescription() string {
	return ""
}

func (g *GetBlockHeight) Call() (jrpc2.Result, error) {
	_, _, node := g.cl.services()
	if node == nil {
		return nil, errNotReady
	}
	height, err := node.BlockHeight(g.cl.ctx)
	if err != nil {
		return nil, err
	}
	return &BlockHeightResponse{Blockheight: height}, nil
}

type ListHoldInvoices struct {
	cl *ClightningClient `json:"-"`
}

type HoldInvoice struct {
	PaymentHash string          `json:"payment_hash"`
	State       holdstate.State `json:"state"`
}

type ListHoldInvoicesResponse struct {
	HoldInvoices []HoldInvoice `json:"holdinvoices"`
}

func (l *ListHoldInvoices) Name() string {
	return "listholdinvoices"
}

func (l *ListHoldInvoices) New() interface{} {
	return &ListHoldInvoices{
		cl: l.cl,
	}
}

func (l *ListHoldInvoices) Description() string {
	return "Lists all hold invoices"
}

func (l *ListHoldInvoices) LongDescription() string {
	return "Lists the payment hash and state of every hold invoice in the store."
}

func (l *ListHoldInvoices) Call() (jrpc2.Result, error) {
	controller, _, _ := l.cl.services()
	if controller == nil {
		return nil, errNotReady
	}
	entries, err := controller.List(l.cl.ctx)
	if err != nil {
		return nil, err
	}
	res := &ListHoldInvoicesResponse{HoldInvoices: []HoldInvoice{}}
	for _, e := range entries {
		res.HoldInvoices = append(res.HoldInvoices, HoldInvoice{
			PaymentHash: e.PaymentHash,
			State:       e.State,
		})
	}
	return res, nil
}

type ReloadHoldConfig struct {
	cl *ClightningClient `json:"-"`
}

type ReloadResponse struct {
	CltvDelta     uint32             `json:"cltv-delta"`
	PollInterval  string             `json:"poll-interval"`
	FailurePolicy hold.FailurePolicy `json:"failure-policy"`
}

func (r *ReloadHoldConfig) Name() string {
	return "reloadholdconfig"
}

func (r *ReloadHoldConfig) New() interface{} {
	return &ReloadHoldConfig{
		cl: r.cl,
	}
}

func (r *ReloadHoldConfig) Description() string {
	return "Reloads the holdinvoice config"
}

func (r *ReloadHoldConfig) LongDescription() string {
	return "Re-reads the config files. Changes of the backend, namespace or db path need a restart."
}

func (r *ReloadHoldConfig) Call() (jrpc2.Result, error) {
	config, err := r.cl.GetConfig()
	if err != nil {
		return nil, err
	}
	current := r.cl.currentConfig()
	if config.Backend != current.Backend || config.Namespace != current.Namespace || config.DbPath != current.DbPath {
		log.Warnf("[Config] storage changes need a restart, keeping %s %s", current.Backend, current.Namespace)
		config.Backend = current.Backend
		config.Namespace = current.Namespace
		config.DbPath = current.DbPath
	}
	r.cl.SetConfig(config)
	log.Infof("[Config] reloaded %s", config)
	return &ReloadResponse{
		CltvDelta:     config.CltvDelta,
		PollInterval:  config.PollInterval.String(),
		FailurePolicy: config.FailurePolicy,
	}, nil
}
