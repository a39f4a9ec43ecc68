package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/urfave/cli"

	"github.com/beam-mw/btcswap/dispatch"
	"github.com/beam-mw/btcswap/params"
	"github.com/beam-mw/btcswap/swap"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[swapcli] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "swapcli"
	app.Usage = "inspect a btcswap parameter store"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "datadir",
			Usage: "directory holding swap.db",
			Value: defaultDataDir(),
		},
	}
	app.Commands = []cli.Command{
		statusCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".btcswap", "data")
}

var statusCommand = cli.Command{
	Name:      "status",
	Usage:     "print the current swap state",
	ArgsUsage: "",
	Action:    actionDecorator(status),
}

func actionDecorator(f func(*cli.Context) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		if err := f(c); err != nil {
			return err
		}
		return nil
	}
}

func status(ctx *cli.Context) error {
	dbPath := filepath.Join(ctx.GlobalString("datadir"), "swap.db")

	d := dispatch.NewDispatcher()
	go d.Run()
	defer d.Stop()

	store, err := params.Open(dbPath, d)
	if err != nil {
		return fmt.Errorf("opening %s: %w", dbPath, err)
	}
	defer store.Close()

	// swapcli is read-only: it never issues RPCs, so a nil BitcoinRPC is
	// safe as long as Status never touches it.
	driver := swap.NewDriver(store, nil, &chaincfg.MainNetParams, swap.SwapRole{}, 0, nil, nil)

	s, err := driver.Status()
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
