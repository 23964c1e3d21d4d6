// Package node talks to the core-lightning node the plugin runs in.
package node

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elementsproject/glightning/jrpc2"
	"github.com/elementsproject/holdinvoice/log"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/lightningnetwork/lnd/lnwire"
	"github.com/pkg/errors"
)

var ErrInvoiceNotFound = errors.New("invoice not found")

// Requester sends a json-rpc request to core-lightning. It is satisfied by
// *glightning.Lightning.
type Requester interface {
	//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_requester.go -package=mocks github.com/elementsproject/holdinvoice/node Requester
	Request(m jrpc2.Method, resp interface{}) error
}

// InvoiceRequest defines an invoice to create on the node.
type InvoiceRequest struct {
	AmountMsat  lnwire.MilliSatoshi
	Label       string
	Description string
	Expiry      time.Duration
	Preimage    lntypes.Preimage
	Cltv        uint32
}

// Invoice is an invoice created on the node.
type Invoice struct {
	PaymentHash   string              `json:"payment_hash"`
	Preimage      string              `json:"preimage"`
	AmountMsat    lnwire.MilliSatoshi `json:"amount_msat"`
	Label         string              `json:"label"`
	Description   string              `json:"description"`
	ExpiresAt     uint64              `json:"expires_at"`
	Cltv          uint32              `json:"cltv"`
	Bolt11        string              `json:"bolt11"`
	PaymentSecret string              `json:"payment_secret"`
}

type InvoiceMethod struct {
	AmountMsat  uint64 `json:"amount_msat"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Expiry      uint64 `json:"expiry,omitempty"`
	Preimage    string `json:"preimage,omitempty"`
	Cltv        uint32 `json:"cltv,omitempty"`
}

func (r *InvoiceMethod) Name() string {
	return "invoice"
}

type InvoiceResponse struct {
	PaymentHash   string `json:"payment_hash"`
	ExpiresAt     uint64 `json:"expires_at"`
	Bolt11        string `json:"bolt11"`
	PaymentSecret string `json:"payment_secret"`
}

type ListInvoicesMethod struct {
	PaymentHash string `json:"payment_hash,omitempty"`
}

func (r *ListInvoicesMethod) Name() string {
	return "listinvoices"
}

type ListedInvoice struct {
	Label       string `json:"label"`
	PaymentHash string `json:"payment_hash"`
	Status      string `json:"status"`
	ExpiresAt   uint64 `json:"expires_at"`
}

type ListInvoicesResponse struct {
	Invoices []ListedInvoice `json:"invoices"`
}

type GetInfoMethod struct{}

func (r *GetInfoMethod) Name() string {
	return "getinfo"
}

type GetInfoResponse struct {
	Id                    string `json:"id"`
	Version               string `json:"version"`
	Network               string `json:"network"`
	Blockheight           uint32 `json:"blockheight"`
	WarningBitcoindSync   string `json:"warning_bitcoind_sync,omitempty"`
	WarningLightningdSync string `json:"warning_lightningd_sync,omitempty"`
}

func (r *GetInfoResponse) IsSynced() bool {
	return r.Blockheight > 0 && r.WarningBitcoindSync == "" && r.WarningLightningdSync == ""
}

// ClnNode implements the node queries against core-lightning's json-rpc.
type ClnNode struct {
	client Requester
}

func NewClnNode(client Requester) *ClnNode {
	return &ClnNode{client: client}
}

// CreateInvoice creates an invoice with the given preimage and cltv.
func (n *ClnNode) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	var res InvoiceResponse
	err := n.client.Request(&InvoiceMethod{
		AmountMsat:  uint64(req.AmountMsat),
		Label:       req.Label,
		Description: req.Description,
		Expiry:      uint64(req.Expiry / time.Second),
		Preimage:    req.Preimage.String(),
		Cltv:        req.Cltv,
	}, &res)
	if err != nil {
		return nil, errors.Wrap(err, "invoice")
	}
	return &Invoice{
		PaymentHash:   res.PaymentHash,
		Preimage:      req.Preimage.String(),
		AmountMsat:    req.AmountMsat,
		Label:         req.Label,
		Description:   req.Description,
		ExpiresAt:     res.ExpiresAt,
		Cltv:          req.Cltv,
		Bolt11:        res.Bolt11,
		PaymentSecret: res.PaymentSecret,
	}, nil
}

// InvoiceExpiry returns the absolute expiry of the invoice with the given
// payment hash.
func (n *ClnNode) InvoiceExpiry(ctx context.Context, paymentHash string) (time.Time, error) {
	var res ListInvoicesResponse
	err := n.client.Request(&ListInvoicesMethod{PaymentHash: paymentHash}, &res)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "listinvoices %s", paymentHash)
	}
	for _, inv := range res.Invoices {
		if inv.PaymentHash == paymentHash {
			return time.Unix(int64(inv.ExpiresAt), 0), nil
		}
	}
	return time.Time{}, ErrInvoiceNotFound
}

// BlockHeight returns the current block height of the node.
func (n *ClnNode) BlockHeight(ctx context.Context) (uint32, error) {
	info, err := n.GetInfo()
	if err != nil {
		return 0, err
	}
	return info.Blockheight, nil
}

// Version returns the core-lightning version string.
func (n *ClnNode) Version(ctx context.Context) (string, error) {
	info, err := n.GetInfo()
	if err != nil {
		return "", err
	}
	return info.Version, nil
}

func (n *ClnNode) GetInfo() (*GetInfoResponse, error) {
	var res GetInfoResponse
	if err := n.client.Request(&GetInfoMethod{}, &res); err != nil {
		return nil, errors.Wrap(err, "getinfo")
	}
	return &res, nil
}

// WaitSynced blocks until core-lightning reports to be synced to the chain
// or ctx is done.
func (n *ClnNode) WaitSynced(ctx context.Context, maxInterval time.Duration) (*GetInfoResponse, error) {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	if b.InitialInterval > maxInterval {
		b.InitialInterval = maxInterval
	}

	var info *GetInfoResponse
	err := backoff.Retry(func() error {
		res, err := n.GetInfo()
		if err != nil {
			return err
		}
		if !res.IsSynced() {
			log.Debugf("Node not synced yet, blockheight %d", res.Blockheight)
			return fmt.Errorf("node not synced")
		}
		info = res
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, err
	}
	return info, nil
}
