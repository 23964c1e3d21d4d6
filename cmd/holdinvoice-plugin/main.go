package main

import (
	"context"
	"fmt"
	glog "log"
	"os"
	"path/filepath"
	"time"

	"github.com/elementsproject/holdinvoice/clightning"
	"github.com/elementsproject/holdinvoice/hold"
	"github.com/elementsproject/holdinvoice/log"
	"github.com/elementsproject/holdinvoice/node"
	"github.com/elementsproject/holdinvoice/store"
	"github.com/elementsproject/holdinvoice/version"
	"github.com/lightningnetwork/lnd/clock"
	"go.etcd.io/bbolt"
	"golang.org/x/sys/unix"
)

var GitCommit string

func main() {
	mlog := glog.New(os.Stderr, "", glog.LstdFlags|glog.LUTC)

	// In order to receive panics, we write to stderr to a file
	closeFileFunc, err := setPanicLogger()
	if err != nil {
		mlog.Println(err.Error())
		os.Exit(1)
	}
	defer closeFileFunc()

	if err := outer(); err != nil {
		mlog.Println(err.Error())
		os.Exit(1)
	}
}

func outer() error {
	// Main context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	plugin, initCh, err := clightning.NewClightningClient(ctx)
	if err != nil {
		return err
	}

	err = plugin.RegisterOptions()
	if err != nil {
		return err
	}

	err = plugin.RegisterMethods()
	if err != nil {
		return err
	}

	// Glightning `Start()` is a blocking call. If this returns the server is
	// shutdown -> cancel main runtime context.
	errCh := make(chan error, 1)
	go func() {
		errCh <- plugin.Start()
		cancel()
	}()
	// Wait for the plugin to be initialized.
	select {
	case <-initCh:
	case <-ctx.Done():
		return <-errCh
	}

	// From here on everything is logged to the core lightning log.
	log.SetLogger(log.NewGlightninglogger(plugin.Plugin))

	err = run(ctx, plugin)
	if err != nil {
		log.Infof("Exited with error: %s", err.Error())
		plugin.Stop()
		return err
	}

	<-ctx.Done()
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func run(ctx context.Context, lightningPlugin *clightning.ClightningClient) error {
	log.Infof("holdinvoice starting up with commit %s", GitCommit)
	log.Infof("DB version: %s", version.GetCurrentVersion())

	config, err := lightningPlugin.GetConfig()
	if err != nil {
		log.Infof("Could not read config: %s", err.Error())
		return err
	}
	log.Debugf("Starting with config: %s", config)
	lightningPlugin.SetConfig(config)

	clnNode := node.NewClnNode(lightningPlugin.GetLightningRpc())
	nodeInfo, err := clnNode.GetInfo()
	if err != nil {
		return err
	}
	log.Infof("Using core-lightning version %s", nodeInfo.Version)
	if err := version.CheckClnVersion(nodeInfo.Version); err != nil {
		return err
	}

	// We want to make sure that cln is synced before we start to hold
	// htlcs against the block height.
	log.Infof("Waiting for cln to be synced...")
	_, err = clnNode.WaitSynced(ctx, 10*time.Second)
	if err != nil {
		return err
	}
	log.Infof("Cln synced, continue...")

	err = os.MkdirAll(filepath.Dir(config.DbPath), 0700)
	if err != nil {
		return err
	}
	holdDb, err := bbolt.Open(config.DbPath, 0700, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return err
	}
	defer holdDb.Close()

	holdStore, err := openStore(config, lightningPlugin, holdDb)
	if err != nil {
		return err
	}

	notifier := hold.NewNotifier()
	controller := hold.NewController(holdStore, clnNode, notifier)
	monitor := hold.NewMonitor(holdStore, clnNode, notifier, clock.NewDefaultClock())

	versionService, err := version.NewVersionService(holdDb)
	if err != nil {
		return err
	}
	err = versionService.SafeUpgrade(controller)
	if err != nil {
		return err
	}

	lightningPlugin.SetupHold(controller, monitor, clnNode)

	entries, err := controller.List(ctx)
	if err != nil {
		return err
	}
	log.Infof("holdinvoice initialized with %s backend, %d hold invoices", config.Backend, len(entries))

	<-ctx.Done()
	return nil
}

func openStore(config *clightning.Config, lightningPlugin *clightning.ClightningClient, db *bbolt.DB) (store.Store, error) {
	switch config.Backend {
	case clightning.BackendDatastore:
		return store.NewDatastore(lightningPlugin.GetLightningRpc(), config.Namespace), nil
	case clightning.BackendBbolt:
		return store.NewBboltStore(db, config.Namespace)
	default:
		return nil, fmt.Errorf("unknown backend %q", config.Backend)
	}
}

// setPanicLogger duplicates calls to Stderr to a file in the lightning
// holdinvoice directory
func setPanicLogger() (func() error, error) {
	// Get working directory ("default is ~/.lightning/<network>")
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	newpath := filepath.Join(wd, "holdinvoice")

	err = os.MkdirAll(newpath, os.ModePerm)
	if err != nil {
		return nil, err
	}

	panicLogFile, err := os.OpenFile(filepath.Join(newpath, "holdinvoice-panic-log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	_, err = panicLogFile.WriteString("\n\nServer started " + time.Now().UTC().Format(time.RFC3339) + "\n")
	if err != nil {
		return nil, err
	}
	err = panicLogFile.Sync()
	if err != nil {
		return nil, err
	}

	err = unix.Dup2(int(panicLogFile.Fd()), int(os.Stderr.Fd()))
	if err != nil {
		return nil, err
	}

	return panicLogFile.Close, nil
}
