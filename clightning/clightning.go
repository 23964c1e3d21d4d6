// Package clightning plugs the hold invoices into core-lightning: rpc
// methods, the htlc_accepted hook, options and the config.
package clightning

import (
	"context"
	"os"
	"sync"

	"github.com/elementsproject/glightning/glightning"
	"github.com/elementsproject/holdinvoice/hold"
	"github.com/elementsproject/holdinvoice/log"
)

const (
	cltvDeltaOption = "holdinvoice-cltv-delta"

	// failCodeIncorrectOrUnknownPaymentDetails is the BOLT#4
	// incorrect_or_unknown_payment_details failure code (PERM|15).
	failCodeIncorrectOrUnknownPaymentDetails uint16 = 0x400F
)

// HoldNode is the part of the node the rpc methods query directly.
type HoldNode interface {
	BlockHeight(ctx context.Context) (uint32, error)
}

// ClightningClient is the main driver behind c-lightnings plugins system
// it handles rpc calls and the htlc_accepted hook
type ClightningClient struct {
	glightning *glightning.Lightning
	Plugin     *glightning.Plugin

	configMu sync.RWMutex
	config   *Config

	holdMu     sync.RWMutex
	ready      chan struct{}
	controller *hold.Controller
	monitor    *hold.Monitor
	node       HoldNode

	ctx    context.Context
	cancel context.CancelFunc

	options IntOptionGetter

	initChan     chan interface{}
	lightningDir string
	rpcFile      string
}

// NewClightningClient returns a new clightning cl and channel which get
// closed when the plugin is initialized
func NewClightningClient(ctx context.Context) (*ClightningClient, <-chan interface{}, error) {
	cl := &ClightningClient{}
	cl.ctx, cl.cancel = context.WithCancel(ctx)
	cl.Plugin = glightning.NewPlugin(cl.onInit)
	err := cl.Plugin.RegisterHooks(&glightning.Hooks{
		HtlcAccepted: cl.OnHtlcAccepted,
	})
	if err != nil {
		return nil, nil, err
	}

	cl.options = cl.Plugin
	cl.glightning = glightning.NewLightning()
	cl.Plugin.SetDynamic(true)
	cl.initChan = make(chan interface{})
	return cl, cl.initChan, nil
}

func (c *ClightningClient) GetLightningRpc() *glightning.Lightning {
	return c.glightning
}

// Start starts the plugin
func (c *ClightningClient) Start() error {
	return c.Plugin.Start(os.Stdin, os.Stdout)
}

// Stop resolves the held htlcs by the failure policy and stops the plugin.
func (c *ClightningClient) Stop() {
	c.cancel()
	c.Plugin.Stop()
}

func (c *ClightningClient) onInit(plugin *glightning.Plugin, options map[string]glightning.Option, config *glightning.Config) {
	log.Debugf("successfully init'd! %s\n", config.RpcFile)
	c.lightningDir = config.LightningDir
	c.rpcFile = config.RpcFile
	c.glightning.StartUp(config.RpcFile, config.LightningDir)
	c.initChan <- true
}

// GetConfig runs the config pipeline for the lightning dir cln passed on
// init.
func (c *ClightningClient) GetConfig() (*Config, error) {
	return GetConfig(c.lightningDir, c.options)
}

// SetConfig swaps the config used by subsequent calls.
func (c *ClightningClient) SetConfig(config *Config) {
	c.configMu.Lock()
	defer c.configMu.Unlock()
	c.config = config
}

func (c *ClightningClient) currentConfig() Config {
	c.configMu.RLock()
	defer c.configMu.RUnlock()
	if c.config == nil {
		return Config{
			CltvDelta:     hold.DefaultCltvDelta,
			PollInterval:  hold.DefaultPollInterval,
			FailurePolicy: hold.FailOpen,
		}
	}
	return *c.config
}

// Params returns a snapshot of the hold parameters.
func (c *ClightningClient) Params() hold.Params {
	return c.currentConfig().Params()
}

// SetupHold sets the hold invoice services the rpc methods and the hook
// work with.
func (c *ClightningClient) SetupHold(controller *hold.Controller, monitor *hold.Monitor, node HoldNode) {
	c.holdMu.Lock()
	defer c.holdMu.Unlock()
	c.controller = controller
	c.monitor = monitor
	c.node = node
	if c.ready == nil {
		c.ready = make(chan struct{})
	}
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
}

// waitReady blocks until SetupHold was called. It returns false if the
// plugin is stopped first.
func (c *ClightningClient) waitReady() bool {
	c.holdMu.Lock()
	if c.ready == nil {
		c.ready = make(chan struct{})
	}
	ready := c.ready
	c.holdMu.Unlock()

	select {
	case <-ready:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *ClightningClient) services() (*hold.Controller, *hold.Monitor, HoldNode) {
	c.holdMu.RLock()
	defer c.holdMu.RUnlock()
	return c.controller, c.monitor, c.node
}

// RegisterOptions registers the plugin options.
func (c *ClightningClient) RegisterOptions() error {
	return c.Plugin.RegisterNewIntOption(
		cltvDeltaOption,
		"cltv delta of hold invoices, overrides cltv-delta of the config files",
		unsetCltvDeltaOptionValue,
	)
}

// RegisterMethods registeres rpc methods to c-lightning
func (c *ClightningClient) RegisterMethods() error {
	for _, m := range c.holdMethods() {
		rpcMethod := glightning.NewRpcMethod(m, m.Description())
		rpcMethod.LongDesc = m.LongDescription()
		rpcMethod.Category = "holdinvoice"
		if err := c.Plugin.RegisterMethod(rpcMethod); err != nil {
			return err
		}
	}
	return nil
}

// OnHtlcAccepted holds htlcs of hold invoices until they are decided.
func (c *ClightningClient) OnHtlcAccepted(event *glightning.HtlcAcceptedEvent) (*glightning.HtlcAcceptedResponse, error) {
	// Htlcs are replayed on startup, they must not pass before we can
	// tell whether they belong to a hold invoice.
	if !c.waitReady() {
		if c.Params().FailurePolicy == hold.FailClosed {
			return event.Fail(failCodeIncorrectOrUnknownPaymentDetails), nil
		}
		return event.Continue(), nil
	}
	_, monitor, _ := c.services()

	d, err := monitor.Check(c.ctx, hold.HTLC{
		PaymentHash: event.Htlc.PaymentHash,
		CltvExpiry:  uint32(event.Htlc.CltvExpiry),
	}, c.Params())
	if err != nil {
		log.Infof("[Hook] htlc %s: %v", event.Htlc.PaymentHash, err)
	}
	if d.Accept {
		return event.Continue(), nil
	}
	log.Infof("[Hook] failing htlc %s: %s", event.Htlc.PaymentHash, d.Reason)
	return event.Fail(failCodeIncorrectOrUnknownPaymentDetails), nil
}
