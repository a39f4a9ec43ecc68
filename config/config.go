// Package config loads btcswap's on-disk/flag configuration: which
// Bitcoin network to use, how to reach bitcoind's JSON-RPC interface,
// and where the swap's parameter store lives.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/btcsuite/btcd/chaincfg"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "btcswap.conf"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "btcswap.log"
	defaultRPCPort        = "8332"

	// defaultWithdrawFeeSat matches the flat fee startCreateWithdrawTx
	// falls back to when unset.
	defaultWithdrawFeeSat = 1000
)

var (
	defaultHomeDir = btcswapHomeDir()
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// Config holds the daemon's fully resolved configuration.
type Config struct {
	ShowVersion bool `short:"V" long:"version" description:"Display version information and exit"`

	ConfigFile string `long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"Directory to store the parameter store database"`
	LogDir     string `long:"logdir" description:"Directory to log output"`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level: trace, debug, info, warn, error, critical"`

	TestNet3 bool `long:"testnet" description:"Use the test Bitcoin network"`
	RegTest  bool `long:"regtest" description:"Use the regression test Bitcoin network"`
	SimNet   bool `long:"simnet" description:"Use the simulation test Bitcoin network"`

	RPCHost string `long:"rpchost" description:"Bitcoin node JSON-RPC host[:port]"`
	RPCUser string `long:"rpcuser" description:"Bitcoin node JSON-RPC username"`
	RPCPass string `long:"rpcpass" description:"Bitcoin node JSON-RPC password"`
	RPCCert string `long:"rpccert" description:"Bitcoin node JSON-RPC TLS certificate path, if the node is TLS-enabled"`

	IsInitiator bool `long:"initiator" description:"This party chose the swap secret"`
	IsBtcOwner  bool `long:"btcowner" description:"This party funds the Bitcoin side of the swap"`

	WithdrawFeeSat int64 `long:"withdrawfee" description:"Flat satoshi fee subtracted from redeem/refund outputs"`

	net *chaincfg.Params
}

// NetParams returns the chaincfg.Params selected by the network flags,
// resolved during Load.
func (c *Config) NetParams() *chaincfg.Params {
	return c.net
}

// DefaultConfig returns a Config populated with btcswap's defaults.
func DefaultConfig() Config {
	return Config{
		ConfigFile:     defaultConfigFile,
		DataDir:        defaultDataDir,
		LogDir:         defaultLogDir,
		DebugLevel:     "info",
		RPCHost:        net.JoinHostPort("localhost", defaultRPCPort),
		WithdrawFeeSat: defaultWithdrawFeeSat,
		net:            &chaincfg.MainNetParams,
	}
}

// Load parses command-line flags over DefaultConfig's baseline, then an
// optional ini-format config file. Flags always take precedence over the
// file.
func Load() (*Config, error) {
	preCfg := DefaultConfig()
	if _, err := flags.NewParser(&preCfg, flags.Default).Parse(); err != nil {
		return nil, err
	}

	cfg := preCfg
	if cfg.ConfigFile != "" {
		if _, err := os.Stat(cfg.ConfigFile); err == nil {
			parser := flags.NewParser(&cfg, flags.Default)
			if err := flags.NewIniParser(parser).ParseFile(cfg.ConfigFile); err != nil {
				return nil, fmt.Errorf("config: failed parsing %s: %w", cfg.ConfigFile, err)
			}
		}
	}
	// Flags take precedence over the file; re-apply them last.
	if _, err := flags.NewParser(&cfg, flags.Default|flags.IgnoreUnknown).Parse(); err != nil {
		return nil, err
	}

	if err := cfg.resolveNetwork(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	return &cfg, nil
}

func (c *Config) resolveNetwork() error {
	count := 0
	if c.TestNet3 {
		c.net = &chaincfg.TestNet3Params
		count++
	}
	if c.RegTest {
		c.net = &chaincfg.RegressionNetParams
		count++
	}
	if c.SimNet {
		c.net = &chaincfg.SimNetParams
		count++
	}
	if count > 1 {
		return fmt.Errorf("config: testnet, regtest, and simnet cannot be used together")
	}
	if count == 0 {
		c.net = &chaincfg.MainNetParams
	}
	return nil
}

func (c *Config) validate() error {
	if c.RPCUser == "" || c.RPCPass == "" {
		return fmt.Errorf("config: rpcuser and rpcpass are required")
	}

	addr, err := ParseAddressString(c.RPCHost, defaultRPCPort, net.ResolveTCPAddr)
	if err != nil {
		return fmt.Errorf("config: invalid rpchost %q: %w", c.RPCHost, err)
	}
	c.RPCHost = addr.String()

	if c.WithdrawFeeSat < 0 {
		return fmt.Errorf("config: withdrawfee must not be negative")
	}

	return nil
}

func btcswapHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".btcswap")
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleaning the result.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir := filepath.Dir(defaultHomeDir)
		path = filepath.Join(homeDir, path[1:])
	}
	return filepath.Clean(os.ExpandEnv(path))
}
