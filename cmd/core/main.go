// Command core runs a core node: it maintains the canonical chain,
// relays the gossip membership protocol, mines blocks from the
// mempool, and serves other cores and edges over the overlay (spec.md
// §4.5-§4.7). Grounded on daglabs-btcd/kaspad.go's parse-config,
// init-logging, build-subsystems, wait-for-interrupt shape.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/simbtc/simbtc/internal/chain"
	"github.com/simbtc/simbtc/internal/corenode"
	"github.com/simbtc/simbtc/internal/keys"
	"github.com/simbtc/simbtc/internal/logger"
	"github.com/simbtc/simbtc/internal/pool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := parseConfig()
	if err != nil {
		return err
	}

	if err := logger.InitLogRotator(cfg.LogFile); err != nil {
		return err
	}

	keyMgr, err := keys.NewManager()
	if err != nil {
		return err
	}
	logger.MainLog.Infof("Core node address: %s", keyMgr.Address())

	chainMgr := chain.NewManager(cfg.Difficulty, cfg.CoinbaseIncentive)
	poolMgr := pool.New()

	node := corenode.NewNode(cfg.ListenAddr, cfg.CoreAddr, chainMgr, poolMgr, keyMgr, time.Duration(cfg.BlockInterval)*time.Second)
	node.ConnectionManager().SetSweepInterval(time.Duration(cfg.SweepInterval) * time.Second)

	if err := node.Start(); err != nil {
		return err
	}
	node.JoinNetwork()

	logger.MainLog.Infof("Core node listening on %s", cfg.ListenAddr)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	node.Shutdown()
	return nil
}
