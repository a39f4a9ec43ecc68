package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/btcsuite/btcd/rpcclient"
	flags "github.com/jessevdk/go-flags"

	"github.com/beam-mw/btcswap/build"
	"github.com/beam-mw/btcswap/chainrpc"
	"github.com/beam-mw/btcswap/config"
	"github.com/beam-mw/btcswap/dispatch"
	"github.com/beam-mw/btcswap/params"
	"github.com/beam-mw/btcswap/swap"
)

var (
	logWriter = &build.LogWriter{}
	backend   = btclog.NewBackend(logWriter)
	log       = build.NewSubLogger("SWAP", backend)
)

func main() {
	if err := run(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return err
	}
	if err := build.InitLogRotator(logWriter, filepath.Join(cfg.LogDir, "swapd.log"), 3); err != nil {
		return err
	}
	if lvl, ok := btclog.LevelFromString(cfg.DebugLevel); ok {
		log.SetLevel(lvl)
	}

	d := dispatch.NewDispatcher()
	go d.Run()
	defer d.Stop()

	store, err := params.Open(filepath.Join(cfg.DataDir, "swap.db"), d)
	if err != nil {
		return fmt.Errorf("opening parameter store: %w", err)
	}
	defer store.Close()

	connCfg := &rpcclient.ConnConfig{
		Host: cfg.RPCHost,
		User: cfg.RPCUser,
		Pass: cfg.RPCPass,
	}
	if cfg.RPCCert != "" {
		certBytes, err := os.ReadFile(cfg.RPCCert)
		if err != nil {
			return fmt.Errorf("reading rpccert: %w", err)
		}
		connCfg.Certificates = certBytes
	} else {
		connCfg.DisableTLS = true
	}

	rpc, err := chainrpc.New(connCfg, d)
	if err != nil {
		return fmt.Errorf("connecting to bitcoin node: %w", err)
	}
	defer rpc.Shutdown()

	role := swap.SwapRole{IsInitiator: cfg.IsInitiator, IsBtcOwner: cfg.IsBtcOwner}

	advanceCh := make(chan struct{}, 1)
	notify := func() {
		select {
		case advanceCh <- struct{}{}:
		default:
		}
	}

	driver := swap.NewDriver(store, rpc, cfg.NetParams(), role, cfg.WithdrawFeeSat, log, notify)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	notify()
	for {
		select {
		case <-advanceCh:
			d.Post(func() { advance(driver) })
		case <-sigCh:
			log.Info("shutting down on interrupt")
			return nil
		}
	}
}

// advance drives the lock and redeem sub-transactions' state machines
// forward one step; the refund path is not driven here.
// It runs on the Dispatcher goroutine (the only context that ever touches
// driver), so none of these calls can race with an RPC completion.
func advance(d *swap.Driver) {
	if err := d.LastErr(); err != nil {
		log.Errorf("swap failed: %v", err)
		return
	}

	ready, err := d.Initial()
	if err != nil {
		log.Errorf("initial: %v", err)
		return
	}
	if !ready {
		return
	}
	if err := d.InitLockTime(); err != nil {
		log.Errorf("init lock time: %v", err)
		return
	}

	if _, err := d.SendLockTx(); err != nil {
		log.Errorf("send lock tx: %v", err)
		return
	}
	if _, err := d.ConfirmLockTx(); err != nil {
		log.Errorf("confirm lock tx: %v", err)
		return
	}

	if _, err := d.SendRedeem(); err != nil {
		log.Errorf("send redeem: %v", err)
	}
}
