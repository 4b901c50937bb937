// Copyright (c) 2023 UTXOchat developers
// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/btcordinals/ordi/blockindex"
	"github.com/btcordinals/ordi/callback"
	"github.com/btcordinals/ordi/coin"
	"github.com/btcordinals/ordi/config"
	"github.com/btcordinals/ordi/indexer"
	"github.com/btcordinals/ordi/inscription"
	"github.com/btcordinals/ordi/internal/ordilog"
	"github.com/btcordinals/ordi/rpcclient"
	"github.com/btcordinals/ordi/store"
)

// ordiMain is the real main function for ordi. It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is
// called.
func ordiMain() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}

	if cfg.LogFile != "" {
		if err := ordilog.InitLogRotator(cfg.LogFile); err != nil {
			return fmt.Errorf("init log rotator: %w", err)
		}
	}
	log := useLoggers(cfg.LogLevel)
	log.Infof("ordi starting, coin=%s", cfg.Coin)

	if err := os.MkdirAll(cfg.OrdiDataDir, 0700); err != nil {
		return fmt.Errorf("creating ordi data directory: %w", err)
	}

	coinParams, ok := coin.ByName(cfg.Coin)
	if !ok {
		return fmt.Errorf("unknown coin %q", cfg.Coin)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := interruptListener()

	idx, err := blockindex.Open(cfg.BtcDataDir)
	if err != nil {
		return fmt.Errorf("opening block index: %w", err)
	}
	defer idx.Close()
	log.Infof("block index opened, max height %d", idx.MaxHeight())

	st, err := store.Open(store.Config{Dir: cfg.OrdiDataDir})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		log.Infof("closing store")
		st.Close()
	}()

	rpc, err := rpcclient.New(rpcclient.Config{
		Host: cfg.BtcRPCHost,
		User: cfg.BtcRPCUser,
		Pass: cfg.BtcRPCPass,
	})
	if err != nil {
		return fmt.Errorf("connecting rpc client: %w", err)
	}
	defer rpc.Close()

	callbacks := callback.NewRegistry()
	// ordi itself registers no callbacks; a program embedding the indexer
	// registers its own on the Registry before Orchestrator.Run is called.

	orch := indexer.New(indexer.Config{
		Index:       idx,
		RPC:         rpc,
		Store:       st,
		Callbacks:   callbacks,
		CoinParams:  coinParams,
		PollBackoff: time.Duration(cfg.PollBackoffSeconds) * time.Second,
		RPCTimeout:  time.Duration(cfg.RPCTimeoutSeconds) * time.Second,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- orch.Run(ctx)
	}()

	select {
	case <-interrupt:
		log.Infof("shutdown requested, stopping orchestrator")
		orch.Stop()
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			log.Errorf("orchestrator exited: %v", err)
			return err
		}
	}

	log.Infof("shutdown complete")
	return nil
}

// useLoggers wires every subsystem's logger to the shared ordilog backend
// at the configured level, following the btcsuite subsystem-logger
// convention used throughout blockindex/inscription/store/rpcclient/
// callback/indexer (chainio stays silent; it has no logger of its own).
// It returns the top-level "ordi" logger, set to the same level.
func useLoggers(level string) btclog.Logger {
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		lvl = btclog.LevelInfo
	}
	newLogger := func(tag string) btclog.Logger {
		l := ordilog.Backend.Logger(tag)
		l.SetLevel(lvl)
		return l
	}

	blockindex.UseLogger(newLogger("BIDX"))
	inscription.UseLogger(newLogger("INSC"))
	store.UseLogger(newLogger("STOR"))
	rpcclient.UseLogger(newLogger("RPCC"))
	callback.UseLogger(newLogger("CALL"))
	indexer.UseLogger(newLogger("INDX"))
	return newLogger("ordi")
}

// interruptListener returns a channel that is closed when an interrupt
// signal is received.
func interruptListener() chan struct{} {
	c := make(chan struct{})
	interruptChan := make(chan os.Signal, 1)
	signal.Notify(interruptChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interruptChan
		signal.Stop(interruptChan)
		close(c)
	}()
	return c
}

func main() {
	if os.Getenv("GOGC") == "" {
		// Block and transaction processing causes bursty allocations.
		debug.SetGCPercent(10)
	}

	if err := ordiMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
