package config

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/pflag"
)

const (
	ModeStrict  = "strict"
	ModeBalance = "balance"
)

type Config struct {
	ListenAddr      string
	APIAddr         string
	MetricsAddr     string
	Verbose         bool
	RulesFile       string
	Watch           bool
	WatchDebounce   time.Duration
	ReadTimeout     time.Duration
	ControllerURL   string
	ControllerHash  string
	FetchInterval   time.Duration
	OperationalMode string
	CACertPath      string
	ClientCertPath  string
	ClientKeyPath   string
	Insecure        bool

	fetchIntervalSec int
	debounceMs       int
	readTimeoutSec   int
}

// Register binds the server flags to fs. Call Finalize after parsing.
func Register(fs *pflag.FlagSet) *Config {
	cfg := &Config{}

	fs.StringVar(&cfg.ListenAddr, "listen", ":7070", "Address for the TCP and UDP classifiers")
	fs.StringVar(&cfg.APIAddr, "api", ":7071", "HTTP API address (empty disables it)")
	fs.StringVar(&cfg.MetricsAddr, "metrics", ":9090", "Metrics HTTP server address")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "Enable verbose logging")
	fs.StringVarP(&cfg.RulesFile, "rules", "r", "", "Rules YAML file")
	fs.BoolVar(&cfg.Watch, "watch", false, "Reload the rules file when it changes")
	fs.IntVar(&cfg.debounceMs, "watch-debounce-ms", 300, "Debounce for rules file reloads")
	fs.IntVar(&cfg.readTimeoutSec, "read-timeout", 5, "Per-connection read timeout in seconds")
	fs.StringVar(&cfg.ControllerURL, "controller", "", "Controller URL to fetch rule sets from")
	fs.IntVar(&cfg.fetchIntervalSec, "fetch-interval", 30, "Rule set fetch interval in seconds")
	fs.StringVar(&cfg.OperationalMode, "mode", ModeBalance, "Behaviour when the controller fails: strict or balance")
	fs.StringVar(&cfg.CACertPath, "ca-cert", "", "CA certificate for the controller")
	fs.StringVar(&cfg.ClientCertPath, "client-cert", "", "Client certificate for mTLS to the controller")
	fs.StringVar(&cfg.ClientKeyPath, "client-key", "", "Client key for mTLS to the controller")
	fs.BoolVar(&cfg.Insecure, "insecure", false, "Skip controller TLS verification")

	return cfg
}

func (c *Config) Finalize() error {
	c.FetchInterval = time.Duration(c.fetchIntervalSec) * time.Second
	c.WatchDebounce = time.Duration(c.debounceMs) * time.Millisecond
	c.ReadTimeout = time.Duration(c.readTimeoutSec) * time.Second
	c.ControllerHash = os.Getenv("BYTEMATCH_CONTROLLER_HASH")

	if c.OperationalMode != ModeStrict && c.OperationalMode != ModeBalance {
		return errors.New("mode must be strict or balance")
	}
	if c.RulesFile == "" && c.ControllerURL == "" {
		return errors.New("either --rules or --controller is required")
	}
	if c.Watch && c.RulesFile == "" {
		return errors.New("--watch needs --rules")
	}
	if c.ControllerURL != "" && c.FetchInterval <= 0 {
		return errors.New("fetch-interval must be positive")
	}
	return nil
}
