// Copyright (c) 2023 UTXOchat developers
// Copyright (c) 2024 The ordi developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package config loads ordi's configuration: a JSON file overlaid by
// command-line flags, following the teacher's main.go loadConfig shape
// (spec.md §6). Field names match the env-style names spec.md §6 names
// (btc_data_dir, ordi_data_dir, btc_rpc_host, ...), plus the ambient
// additions (log_level, rpc_timeout_seconds, poll_backoff_seconds) every
// real service in the pack carries regardless of domain scope.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/btcordinals/ordi/utils"
)

// DefaultConfigFilename is used when -config is not given.
const DefaultConfigFilename = "ordi.json"

// DefaultAppName is used to derive the default data directories via
// utils.AppDataDir.
const DefaultAppName = "ordi"

const (
	DefaultRPCTimeoutSeconds  = 30
	DefaultPollBackoffSeconds = 10
	DefaultLogLevel           = "info"
	DefaultCoin               = "mainnet"
)

// Config holds every value ordi needs to run, per spec.md §6.
type Config struct {
	// BtcDataDir is the bitcoind data directory containing blocks/ and
	// blocks/index (C2/C3's input).
	BtcDataDir string `json:"btc_data_dir"`

	// OrdiDataDir is where ordi's own persistent store (C8) lives.
	OrdiDataDir string `json:"ordi_data_dir"`

	// BtcRPCHost, BtcRPCUser, BtcRPCPass address the RPC fallback client
	// (C4) used once the file-indexed replay reaches the indexed tip.
	BtcRPCHost string `json:"btc_rpc_host"`
	BtcRPCUser string `json:"btc_rpc_user"`
	BtcRPCPass string `json:"btc_rpc_pass"`

	// Coin selects the coin.Params this run uses (e.g. "mainnet").
	Coin string `json:"coin"`

	// LogLevel is one of btclog's level names (trace, debug, info, warn,
	// error, critical, off).
	LogLevel string `json:"log_level"`

	// RPCTimeoutSeconds bounds every individual RPC call C4 makes.
	RPCTimeoutSeconds int `json:"rpc_timeout_seconds"`

	// PollBackoffSeconds is how long C7 sleeps after a tail-fetch error
	// before retrying the same height.
	PollBackoffSeconds int `json:"poll_backoff_seconds"`

	// LogFile, if set, also writes rotated logs to disk via
	// internal/ordilog.InitLogRotator.
	LogFile string `json:"log_file"`
}

// cliOptions mirrors Config's overlayable fields for go-flags parsing.
// Only fields actually given on the command line override the JSON file's
// values (spec.md §6's "file, then CLI overlay" rule).
type cliOptions struct {
	ConfigFile  string `short:"C" long:"config" description:"Path to configuration file"`
	BtcDataDir  string `long:"btc_data_dir" description:"bitcoind data directory"`
	OrdiDataDir string `long:"ordi_data_dir" description:"ordi's own data directory"`
	BtcRPCHost  string `long:"btc_rpc_host" description:"bitcoind RPC host:port"`
	BtcRPCUser  string `long:"btc_rpc_user" description:"bitcoind RPC username"`
	BtcRPCPass  string `long:"btc_rpc_pass" description:"bitcoind RPC password"`
	Coin        string `long:"coin" description:"chain parameters to use"`
	LogLevel    string `long:"log_level" description:"log level (trace|debug|info|warn|error|critical|off)"`
	LogFile     string `long:"log_file" description:"also write rotated logs to this file"`
	RPCTimeout  int    `long:"rpc_timeout_seconds" description:"per-call RPC timeout in seconds"`
	PollBackoff int    `long:"poll_backoff_seconds" description:"tail retry backoff in seconds"`
}

// Load parses command-line arguments, loads the JSON config file they (or
// the default) name, then overlays any flags the caller actually passed.
// Unset fields fall back to sane per-process defaults rooted at
// utils.AppDataDir.
func Load(args []string) (*Config, error) {
	defaultDataDir := utils.AppDataDir(DefaultAppName, false)

	opts := cliOptions{}
	parser := flags.NewParser(&opts, flags.Default|flags.IgnoreUnknown)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	configPath := opts.ConfigFile
	if configPath == "" {
		configPath = DefaultConfigFilename
	}

	cfg := &Config{
		OrdiDataDir:        defaultDataDir,
		Coin:               DefaultCoin,
		LogLevel:           DefaultLogLevel,
		RPCTimeoutSeconds:  DefaultRPCTimeoutSeconds,
		PollBackoffSeconds: DefaultPollBackoffSeconds,
	}

	if f, err := os.Open(configPath); err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: decoding %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: opening %s: %w", configPath, err)
	}

	overlayString(&cfg.BtcDataDir, opts.BtcDataDir)
	overlayString(&cfg.OrdiDataDir, opts.OrdiDataDir)
	overlayString(&cfg.BtcRPCHost, opts.BtcRPCHost)
	overlayString(&cfg.BtcRPCUser, opts.BtcRPCUser)
	overlayString(&cfg.BtcRPCPass, opts.BtcRPCPass)
	overlayString(&cfg.Coin, opts.Coin)
	overlayString(&cfg.LogLevel, opts.LogLevel)
	overlayString(&cfg.LogFile, opts.LogFile)
	if opts.RPCTimeout != 0 {
		cfg.RPCTimeoutSeconds = opts.RPCTimeout
	}
	if opts.PollBackoff != 0 {
		cfg.PollBackoffSeconds = opts.PollBackoff
	}

	if cfg.BtcDataDir == "" {
		return nil, fmt.Errorf("config: btc_data_dir is required")
	}

	return cfg, nil
}

func overlayString(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}
