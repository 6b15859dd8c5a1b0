package main

import (
	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

// config holds an edge node's command-line configuration (SPEC_FULL.md
// §2.3, §6), parsed in the teacher's jessevdk/go-flags style
// (cmd/addsubnetwork/config.go).
type config struct {
	ListenAddr    string `short:"l" long:"listen-addr" description:"Address to listen for overlay pushes (CoreList, FullChain) on" default:"127.0.0.1:9200"`
	CoreAddr      string `short:"c" long:"core-addr" description:"Address of the core node to connect through" required:"true"`
	APIAddr       string `short:"a" long:"api-addr" description:"Address for the wallet HTTP API to listen on" required:"true"`
	SweepInterval int    `long:"sweep-interval" description:"Seconds between core liveness sweeps" default:"30"`
	LogFile       string `long:"logfile" description:"File to write rotated logs to" default:"edge.log"`
}

func parseConfig() (*config, error) {
	cfg := &config{}
	parser := flags.NewParser(cfg, flags.PrintErrors|flags.HelpFlag)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}

	if cfg.SweepInterval <= 0 {
		return nil, errors.Errorf("sweep-interval must be positive")
	}

	return cfg, nil
}
