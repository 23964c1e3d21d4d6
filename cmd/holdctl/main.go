package main

import (
	"encoding/json"
	"fmt"
	log2 "log"
	"os"
	"path/filepath"

	"github.com/elementsproject/glightning/glightning"
	"github.com/elementsproject/glightning/jrpc2"
	"github.com/elementsproject/holdinvoice/clightning"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "holdctl"
	app.Usage = "holdinvoice Cli"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "lightning-dir",
			Value: defaultLightningDir(),
			Usage: "core-lightning base directory",
		},
		cli.StringFlag{
			Name:  "network",
			Value: "bitcoin",
			Usage: "network sub directory of the lightning-dir",
		},
		cli.StringFlag{
			Name:  "rpc-file",
			Value: "lightning-rpc",
			Usage: "name of the core-lightning rpc socket",
		},
	}
	app.Commands = []cli.Command{
		addCommand, settleCommand, cancelCommand, stateCommand,
		listCommand, deltaCommand, blockheightCommand, reloadCommand,
	}
	err := app.Run(os.Args)
	if err != nil {
		log2.Fatal(err)
	}
}

var (
	amountFlag = cli.Uint64Flag{
		Name:     "amount_msat",
		Usage:    "Amount of the invoice in msat",
		Required: true,
	}
	labelFlag = cli.StringFlag{
		Name:     "label",
		Usage:    "unique label of the invoice",
		Required: true,
	}
	descriptionFlag = cli.StringFlag{
		Name:     "description",
		Required: true,
	}
	expiryFlag = cli.Uint64Flag{
		Name:  "expiry",
		Usage: "expiry of the invoice in seconds, clamped to [3600, 86400]",
	}
	preimageFlag = cli.StringFlag{
		Name:  "preimage",
		Usage: "hex encoded 32 byte preimage, random if not set",
	}
	paymentHashFlag = cli.StringFlag{
		Name:     "payment_hash",
		Required: true,
	}

	addCommand = cli.Command{
		Name:   "add",
		Usage:  "Add a hold invoice",
		Flags:  []cli.Flag{amountFlag, labelFlag, descriptionFlag, expiryFlag, preimageFlag},
		Action: addHoldInvoice,
	}
	settleCommand = cli.Command{
		Name:   "settle",
		Usage:  "Settle a hold invoice",
		Flags:  []cli.Flag{paymentHashFlag},
		Action: settleInvoice,
	}
	cancelCommand = cli.Command{
		Name:   "cancel",
		Usage:  "Cancel a hold invoice",
		Flags:  []cli.Flag{paymentHashFlag},
		Action: cancelInvoice,
	}
	stateCommand = cli.Command{
		Name:   "state",
		Usage:  "Get the state of a hold invoice",
		Flags:  []cli.Flag{paymentHashFlag},
		Action: getState,
	}
	listCommand = cli.Command{
		Name:   "list",
		Usage:  "lists all hold invoices",
		Flags:  []cli.Flag{},
		Action: listHoldInvoices,
	}
	deltaCommand = cli.Command{
		Name:   "delta",
		Usage:  "shows the cltv delta",
		Flags:  []cli.Flag{},
		Action: getDelta,
	}
	blockheightCommand = cli.Command{
		Name:   "blockheight",
		Usage:  "shows the block height of the node",
		Flags:  []cli.Flag{},
		Action: getBlockHeight,
	}
	reloadCommand = cli.Command{
		Name:   "reload",
		Usage:  "reloads the holdinvoice config",
		Flags:  []cli.Flag{},
		Action: reloadConfig,
	}
)

func addHoldInvoice(ctx *cli.Context) error {
	req := &clightning.AddHoldInvoice{
		AmountMsat:         ctx.Uint64(amountFlag.Name),
		Label:              ctx.String(labelFlag.Name),
		InvoiceDescription: ctx.String(descriptionFlag.Name),
		Preimage:           ctx.String(preimageFlag.Name),
	}
	if expiry := ctx.Uint64(expiryFlag.Name); expiry != 0 {
		req.Expiry = json.RawMessage(fmt.Sprintf("%d", expiry))
	}
	return call(ctx, req)
}

func settleInvoice(ctx *cli.Context) error {
	return call(ctx, &clightning.SettleInvoice{PaymentHash: ctx.String(paymentHashFlag.Name)})
}

func cancelInvoice(ctx *cli.Context) error {
	return call(ctx, &clightning.CancelInvoice{PaymentHash: ctx.String(paymentHashFlag.Name)})
}

func getState(ctx *cli.Context) error {
	return call(ctx, &clightning.GetStateFromStore{PaymentHash: ctx.String(paymentHashFlag.Name)})
}

func listHoldInvoices(ctx *cli.Context) error {
	return call(ctx, &clightning.ListHoldInvoices{})
}

func getDelta(ctx *cli.Context) error {
	return call(ctx, &clightning.GetDelta{})
}

func getBlockHeight(ctx *cli.Context) error {
	return call(ctx, &clightning.GetBlockHeight{})
}

func reloadConfig(ctx *cli.Context) error {
	return call(ctx, &clightning.ReloadHoldConfig{})
}

func call(ctx *cli.Context, m jrpc2.Method) error {
	client, cleanup, err := getClient(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	var res interface{}
	err = client.Request(m, &res)
	if err != nil {
		return err
	}
	printRespJSON(res)
	return nil
}

func getClient(ctx *cli.Context) (*glightning.Lightning, func(), error) {
	dir := filepath.Join(ctx.GlobalString("lightning-dir"), ctx.GlobalString("network"))
	rpcFile := ctx.GlobalString("rpc-file")
	if _, err := os.Stat(filepath.Join(dir, rpcFile)); err != nil {
		return nil, nil, fmt.Errorf("unable to connect to core-lightning: %v", err)
	}

	client := glightning.NewLightning()
	client.StartUp(rpcFile, dir)
	return client, client.Shutdown, nil
}

func printRespJSON(resp interface{}) {
	jsonStr, err := json.MarshalIndent(resp, "", "    ")
	if err != nil {
		fmt.Println("unable to decode response: ", err)
		return
	}

	fmt.Println(string(jsonStr))
}

func defaultLightningDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lightning"
	}
	return filepath.Join(home, ".lightning")
}
