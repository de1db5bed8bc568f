package insteon

import (
	"net"
	"time"

	"github.com/GoAethereal/cancel"
)

// defaultExpectationTimeout is Open Question (a) from spec.md §9: the
// source does not specify an expectation timeout; 5s is the suggested
// default.
const defaultExpectationTimeout = 5 * time.Second

// defaultTCPPort is the PLM's default TCP port (spec.md §6).
const defaultTCPPort = "9761"

// Config configures a Session's transport and pacing. Grounded on
// GoAethereal-modbus/config.go's Config{Mode,Kind,Endpoint,UnitID} and
// its Verify()/connection() methods.
type Config struct {
	// Kind selects the transport: "tcp" or "serial".
	Kind string
	// Endpoint is a "host:port" for Kind=="tcp" (port defaults to 9761
	// if omitted) or a device path for Kind=="serial".
	Endpoint string

	// ExpectationTimeout bounds how long a device's armed Expectation
	// waits for its ACK before surfacing a Timeout. Defaults to 5s.
	ExpectationTimeout time.Duration

	// TokenRate, BucketSize and TokenCost tune the outbound pacer
	// (C3); zero values fall back to tbq.py's own defaults of 1.0.
	TokenRate  float64
	BucketSize float64
	TokenCost  float64
}

// Verify validates the Config, mirroring GoAethereal-modbus/config.go's
// Verify() shape: a switch over the allowed Kind values.
func (cfg *Config) Verify() error {
	switch cfg.Kind {
	case "tcp", "serial":
	default:
		return &ParseError{Input: cfg.Kind, Reason: "unsupported transport kind"}
	}
	if cfg.Endpoint == "" {
		return &ParseError{Input: cfg.Endpoint, Reason: "endpoint required"}
	}
	return nil
}

func (cfg *Config) expectationTimeout() time.Duration {
	if cfg.ExpectationTimeout > 0 {
		return cfg.ExpectationTimeout
	}
	return defaultExpectationTimeout
}

// dial opens the configured transport and returns the narrow connection
// capability the Session consumes.
func (cfg *Config) dial(ctx cancel.Context) (connection, error) {
	switch cfg.Kind {
	case "tcp":
		ctx, cancelFn := cancel.Promote(ctx)
		defer cancelFn()
		endpoint := cfg.Endpoint
		if _, _, err := net.SplitHostPort(endpoint); err != nil {
			endpoint = net.JoinHostPort(endpoint, defaultTCPPort)
		}
		conn, err := new(net.Dialer).DialContext(ctx, "tcp", endpoint)
		if err != nil {
			return nil, &TransportError{Err: err}
		}
		return newNetwork(conn), nil

	case "serial":
		return openSerial(cfg.Endpoint)
	}
	return nil, &ParseError{Input: cfg.Kind, Reason: "unsupported transport kind"}
}
