package main

import (
	"errors"
	"flag"
	"fmt"
	"time"
)

type appConfig struct {
	listenHost      string
	listenPort      int
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	maxClients      int
	rateLimit       float64
	rateBurst       int
	clientReadTO    time.Duration
	mdnsEnable      bool
	mdnsName        string
}

// parseFlags parses the command line only; there are no environment
// variable overrides and no config file, matching the external-interface
// contract for this service: every run is driven by explicit flags.
func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	listenHost := flag.String("listen-host", "0.0.0.0", "TCP listen host")
	listenPort := flag.Int("listen-port", 7070, "TCP listen port")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	maxClients := flag.Int("max-clients", 0, "Maximum simultaneous TCP clients (0 = unlimited)")
	rateLimit := flag.Float64("rate-limit", 0, "Per-connection inbound message rate limit, messages/sec (0 = disabled)")
	rateBurst := flag.Int("rate-burst", 20, "Per-connection inbound burst allowance when --rate-limit is set")
	clientReadTO := flag.Duration("client-read-timeout", 2*time.Minute, "Per-connection read deadline")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default speedd-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	cfg.listenHost = *listenHost
	cfg.listenPort = *listenPort
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.maxClients = *maxClients
	cfg.rateLimit = *rateLimit
	cfg.rateBurst = *rateBurst
	cfg.clientReadTO = *clientReadTO
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

func (c *appConfig) listenAddr() string {
	return fmt.Sprintf("%s:%d", c.listenHost, c.listenPort)
}

// validate performs basic semantic validation of the parsed configuration.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.listenPort < 0 || c.listenPort > 65535 {
		return fmt.Errorf("listen-port out of range: %d", c.listenPort)
	}
	if c.maxClients < 0 {
		return fmt.Errorf("max-clients must be >= 0")
	}
	if c.rateLimit < 0 {
		return fmt.Errorf("rate-limit must be >= 0")
	}
	if c.rateBurst < 0 {
		return fmt.Errorf("rate-burst must be >= 0")
	}
	if c.clientReadTO <= 0 {
		return fmt.Errorf("client-read-timeout must be > 0")
	}
	return nil
}
