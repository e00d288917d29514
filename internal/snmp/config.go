// Package snmp reads MIB tables from SNMP agents.
//
// A Session is opened per poll and owns its own gosnmp client; nothing is
// shared between sessions, so polls for different devices may run
// concurrently.
package snmp

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/xtxerr/ipamsync/config"
	"github.com/xtxerr/ipamsync/internal/errors"
)

// Supported SNMP versions, as written in data source parameters.
const (
	Version2c = "2c"
	Version3  = "3"
)

// SNMPv3 security levels.
const (
	NoAuthNoPriv = "noAuthNoPriv"
	AuthNoPriv   = "authNoPriv"
	AuthPriv     = "authPriv"
)

// =============================================================================
// Configuration
// =============================================================================

// Config describes how to reach one agent.
type Config struct {
	Host    string
	Port    uint16
	Version string

	// v2c
	Community string

	// v3
	SecurityName  string
	SecurityLevel string
	AuthProtocol  string
	AuthPassword  string
	PrivProtocol  string
	PrivPassword  string
	ContextName   string

	// Timing
	TimeoutMs      uint32
	Retries        uint32
	MaxRepetitions uint32
}

// Address returns the agent address in "udp:host/port" form.
func (c Config) Address() string {
	return fmt.Sprintf("udp:%s/%d", c.Host, c.port())
}

func (c Config) port() uint16 {
	if c.Port == 0 {
		return config.DefaultSNMPPort
	}
	return c.Port
}

// Validate checks the fields a session needs.
func (c Config) Validate() error {
	if c.Host == "" {
		return errors.NewMissingField("host")
	}
	switch c.Version {
	case Version2c:
		if c.Community == "" {
			return errors.NewMissingField("community")
		}
	case Version3:
		if c.SecurityName == "" {
			return errors.NewMissingField("securityName")
		}
	default:
		return fmt.Errorf("version %q: %w", c.Version, errors.ErrInvalidVersion)
	}
	return nil
}

// =============================================================================
// Client construction
// =============================================================================

// newClient builds the gosnmp client for cfg. Retries are taken as given,
// zero meaning a single attempt; a zero timeout falls back to the default.
func newClient(cfg Config) *gosnmp.GoSNMP {
	timeout := cfg.TimeoutMs
	if timeout == 0 {
		timeout = config.DefaultSNMPTimeoutMs
	}

	maxReps := cfg.MaxRepetitions
	if maxReps == 0 {
		maxReps = config.DefaultSNMPMaxRepetitions
	}

	client := &gosnmp.GoSNMP{
		Target:         cfg.Host,
		Port:           cfg.port(),
		Timeout:        time.Duration(timeout) * time.Millisecond,
		Retries:        int(cfg.Retries),
		MaxRepetitions: maxReps,
	}

	if cfg.Version == Version3 {
		client.Version = gosnmp.Version3
		client.SecurityModel = gosnmp.UserSecurityModel
		client.MsgFlags = msgFlags(cfg.SecurityLevel)
		client.SecurityParameters = &gosnmp.UsmSecurityParameters{
			UserName:                 cfg.SecurityName,
			AuthenticationProtocol:   authProtocol(cfg.AuthProtocol),
			AuthenticationPassphrase: cfg.AuthPassword,
			PrivacyProtocol:          privProtocol(cfg.PrivProtocol),
			PrivacyPassphrase:        cfg.PrivPassword,
		}
		if cfg.ContextName != "" {
			client.ContextName = cfg.ContextName
		}
	} else {
		client.Version = gosnmp.Version2c
		client.Community = cfg.Community
	}

	return client
}

// =============================================================================
// SNMPv3 Protocol Helpers
// =============================================================================

func msgFlags(level string) gosnmp.SnmpV3MsgFlags {
	switch level {
	case NoAuthNoPriv:
		return gosnmp.NoAuthNoPriv
	case AuthNoPriv:
		return gosnmp.AuthNoPriv
	case AuthPriv:
		return gosnmp.AuthPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

func authProtocol(protocol string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToUpper(protocol) {
	case "MD5":
		return gosnmp.MD5
	case "SHA":
		return gosnmp.SHA
	case "SHA224":
		return gosnmp.SHA224
	case "SHA256":
		return gosnmp.SHA256
	case "SHA384":
		return gosnmp.SHA384
	case "SHA512":
		return gosnmp.SHA512
	default:
		return gosnmp.NoAuth
	}
}

func privProtocol(protocol string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToUpper(protocol) {
	case "DES":
		return gosnmp.DES
	case "AES":
		return gosnmp.AES
	case "AES192":
		return gosnmp.AES192
	case "AES256":
		return gosnmp.AES256
	default:
		return gosnmp.NoPriv
	}
}
