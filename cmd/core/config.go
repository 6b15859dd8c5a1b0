package main

import (
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

// config holds a core node's command-line configuration (SPEC_FULL.md
// §2.3), parsed in the teacher's jessevdk/go-flags style
// (cmd/addsubnetwork/config.go).
type config struct {
	ListenAddr        string `short:"l" long:"listen-addr" description:"Address to listen for peer connections on" default:"127.0.0.1:9100"`
	CoreAddr          string `short:"c" long:"core-addr" description:"Address of a known core node to join through; omit to run as the genesis core"`
	Difficulty        int    `short:"d" long:"difficulty" description:"Number of trailing zero hex digits a valid block hash must end with" default:"4"`
	CoinbaseIncentive uint64 `long:"coinbase-incentive" description:"Fixed reward paid to the miner of each block, on top of pooled fees" default:"10"`
	BlockInterval     int    `long:"block-interval" description:"Seconds between block-production attempts" default:"5"`
	SweepInterval     int    `long:"sweep-interval" description:"Seconds between peer liveness sweeps" default:"30"`
	LogFile           string `long:"logfile" description:"File to write rotated logs to" default:"core.log"`
}

func parseConfig() (*config, error) {
	cfg := &config{}
	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	if cfg.Difficulty < 0 {
		return nil, errors.Errorf("difficulty may not be negative")
	}
	if cfg.BlockInterval <= 0 {
		return nil, errors.Errorf("block-interval must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return nil, errors.Errorf("sweep-interval must be positive")
	}

	return cfg, nil
}
