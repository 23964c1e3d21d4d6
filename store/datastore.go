package store

import (
	"context"

	"github.com/elementsproject/glightning/jrpc2"
	"github.com/elementsproject/holdinvoice/holdstate"
	"github.com/pkg/errors"
)

// core-lightning datastore error codes.
const (
	codeAlreadyExists   = 1202
	codeDoesNotExist    = 1203
	codeWrongGeneration = 1204
)

const (
	modeMustCreate  = "must-create"
	modeMustReplace = "must-replace"
)

// Requester sends a json-rpc request to core-lightning. It is satisfied by
// *glightning.Lightning.
type Requester interface {
	Request(m jrpc2.Method, resp interface{}) error
}

type DatastoreRequest struct {
	Key        []string `json:"key"`
	String     string   `json:"string,omitempty"`
	Mode       string   `json:"mode,omitempty"`
	Generation *uint64  `json:"generation,omitempty"`
}

func (r *DatastoreRequest) Name() string {
	return "datastore"
}

type ListDatastoreRequest struct {
	Key []string `json:"key,omitempty"`
}

func (r *ListDatastoreRequest) Name() string {
	return "listdatastore"
}

type DatastoreEntry struct {
	Key        []string `json:"key"`
	Generation uint64   `json:"generation"`
	Hex        string   `json:"hex,omitempty"`
	String     string   `json:"string,omitempty"`
}

type ListDatastoreResponse struct {
	Datastore []DatastoreEntry `json:"datastore"`
}

// Datastore keeps the states in core-lightning's datastore under
// [namespace, payment_hash].
type Datastore struct {
	client    Requester
	namespace string
}

func NewDatastore(client Requester, namespace string) *Datastore {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Datastore{client: client, namespace: namespace}
}

func (d *Datastore) key(paymentHash string) []string {
	return []string{d.namespace, paymentHash}
}

func (d *Datastore) Create(ctx context.Context, paymentHash string, state holdstate.State) error {
	var res DatastoreEntry
	err := d.client.Request(&DatastoreRequest{
		Key:    d.key(paymentHash),
		String: state.String(),
		Mode:   modeMustCreate,
	}, &res)
	return errors.Wrapf(mapRpcError(err), "datastore create %s", paymentHash)
}

func (d *Datastore) Replace(ctx context.Context, paymentHash string, state holdstate.State, generation uint64) error {
	var res DatastoreEntry
	err := d.client.Request(&DatastoreRequest{
		Key:        d.key(paymentHash),
		String:     state.String(),
		Mode:       modeMustReplace,
		Generation: &generation,
	}, &res)
	return errors.Wrapf(mapRpcError(err), "datastore replace %s", paymentHash)
}

func (d *Datastore) Get(ctx context.Context, paymentHash string) (*Entry, error) {
	var res ListDatastoreResponse
	err := d.client.Request(&ListDatastoreRequest{Key: d.key(paymentHash)}, &res)
	if err != nil {
		return nil, errors.Wrapf(err, "listdatastore %s", paymentHash)
	}
	switch len(res.Datastore) {
	case 0:
		return nil, ErrDoesNotExist
	case 1:
		return toEntry(paymentHash, res.Datastore[0])
	default:
		return nil, errors.Wrapf(ErrAmbiguous, "%d entries for %s", len(res.Datastore), paymentHash)
	}
}

func (d *Datastore) List(ctx context.Context) ([]*Entry, error) {
	var res ListDatastoreResponse
	err := d.client.Request(&ListDatastoreRequest{Key: []string{d.namespace}}, &res)
	if err != nil {
		return nil, errors.Wrap(err, "listdatastore")
	}
	var entries []*Entry
	for _, v := range res.Datastore {
		// Only [namespace, payment_hash] leaves are ours.
		if len(v.Key) != 2 {
			continue
		}
		entry, err := toEntry(v.Key[1], v)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func toEntry(paymentHash string, v DatastoreEntry) (*Entry, error) {
	state, err := holdstate.ParseState(v.String)
	if err != nil {
		return nil, errors.Wrapf(err, "decode state of %s", paymentHash)
	}
	return &Entry{
		PaymentHash: paymentHash,
		State:       state,
		Generation:  v.Generation,
	}, nil
}

func mapRpcError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *jrpc2.RpcError
	if !errors.As(err, &rpcErr) {
		return err
	}
	switch rpcErr.Code {
	case codeAlreadyExists:
		return ErrAlreadyExists
	case codeDoesNotExist:
		return ErrDoesNotExist
	case codeWrongGeneration:
		return ErrGenerationMismatch
	default:
		return err
	}
}
