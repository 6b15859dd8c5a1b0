// Command edge runs an edge (wallet/client) node: it tracks a single
// current core with gossip-driven failover, forwards signed
// transactions into the overlay, and exposes the thin HTTP wallet
// collaborator surface spec.md §6 describes. Grounded on
// daglabs-btcd/kaspad.go's parse-config, init-logging, build-
// subsystems, wait-for-interrupt shape.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/simbtc/simbtc/internal/edgenet"
	"github.com/simbtc/simbtc/internal/keys"
	"github.com/simbtc/simbtc/internal/logger"
	"github.com/simbtc/simbtc/internal/utxo"
	"github.com/simbtc/simbtc/internal/wallet"
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
	logger.MainLog.Infof("Edge node address: %s", keyMgr.Address())

	utxoMgr := utxo.NewManager(keyMgr.Address())

	// edgenet.Manager and wallet.Server are mutually dependent: build
	// the manager with no handler yet, build the wallet from it, then
	// wire the handler back in (edgenet.Manager.SetHandler).
	edgeMgr := edgenet.NewManager(cfg.ListenAddr, cfg.CoreAddr, nil)
	edgeMgr.SetSweepInterval(time.Duration(cfg.SweepInterval) * time.Second)

	walletSrv := wallet.NewServer(utxoMgr, keyMgr, edgeMgr)
	edgeMgr.SetHandler(walletSrv)

	if err := edgeMgr.Listen(); err != nil {
		return err
	}
	edgeMgr.Join()
	edgeMgr.RequestFullChain()

	httpServer := &http.Server{
		Addr:    cfg.APIAddr,
		Handler: walletSrv,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.MainLog.Errorf("wallet API server stopped: %+v", err)
		}
	}()
	logger.MainLog.Infof("Wallet API listening on %s", cfg.APIAddr)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	edgeMgr.Shutdown()
	return httpServer.Close()
}
