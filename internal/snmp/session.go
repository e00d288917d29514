package snmp

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gosnmp/gosnmp"

	"github.com/xtxerr/ipamsync/internal/errors"
	"github.com/xtxerr/ipamsync/internal/logging"
	"github.com/xtxerr/ipamsync/internal/mib"
)

var log = logging.Component("snmp")

// =============================================================================
// Interfaces
// =============================================================================

// Walker is the part of a gosnmp client a Session needs.
type Walker interface {
	BulkWalk(rootOid string, walkFn gosnmp.WalkFunc) error
}

// TableReader reads MIB tables from one agent.
type TableReader interface {
	// Table walks every column of def. A table without rows is returned
	// empty, not as an error.
	Table(ctx context.Context, def mib.Definition) (mib.Table, error)
	Close() error
}

// Dialer opens table readers. The provider takes a Dialer so it can be
// exercised without a device.
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (TableReader, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, cfg Config) (TableReader, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, cfg Config) (TableReader, error) {
	return f(ctx, cfg)
}

// NetDialer opens real gosnmp sessions.
type NetDialer struct{}

// Dial implements Dialer.
func (NetDialer) Dial(ctx context.Context, cfg Config) (TableReader, error) {
	return Open(ctx, cfg)
}

// =============================================================================
// Session
// =============================================================================

// Session is an open connection to one agent.
type Session struct {
	cfg    Config
	walker Walker
	close  func() error
}

// Open validates cfg and connects a new client.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := newClient(cfg)
	client.Context = ctx

	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("connect %s: %v: %w", cfg.Address(), err, errors.ErrConnectionFailed)
	}

	log.Debug("session opened", "address", cfg.Address(), "version", cfg.Version)

	return &Session{
		cfg:    cfg,
		walker: client,
		close: func() error {
			if client.Conn == nil {
				return nil
			}
			return client.Conn.Close()
		},
	}, nil
}

// NewSession wraps an already connected walker.
func NewSession(cfg Config, w Walker) *Session {
	return &Session{cfg: cfg, walker: w}
}

// Close releases the connection.
func (s *Session) Close() error {
	if s.close == nil {
		return nil
	}
	err := s.close()
	s.close = nil
	return err
}

// Table walks every column of def and assembles the rows by instance
// suffix. Rows are ordered by instance; cells an agent did not return are
// empty strings.
func (s *Session) Table(ctx context.Context, def mib.Definition) (mib.Table, error) {
	cells := make(map[string][]string)
	width := len(def.Columns)

	for i, col := range def.Columns {
		if err := ctx.Err(); err != nil {
			return mib.Table{}, err
		}

		prefix := normalizeOID(col.OID) + "."
		err := s.walker.BulkWalk(col.OID, func(pdu gosnmp.SnmpPDU) error {
			name := normalizeOID(pdu.Name)
			if !strings.HasPrefix(name, prefix) {
				return nil
			}
			value, ok := formatValue(pdu)
			if !ok {
				return nil
			}
			instance := strings.TrimPrefix(name, prefix)
			row, exists := cells[instance]
			if !exists {
				row = make([]string, width)
				cells[instance] = row
			}
			row[i] = value
			return nil
		})
		if err != nil {
			if isTimeoutError(err) {
				return mib.Table{}, fmt.Errorf("walk %s on %s: %v: %w", col.Name, s.cfg.Address(), err, errors.ErrTimeout)
			}
			return mib.Table{}, fmt.Errorf("walk %s on %s: %v: %w", col.Name, s.cfg.Address(), err, errors.ErrSNMPError)
		}
	}

	instances := make([]string, 0, len(cells))
	for instance := range cells {
		instances = append(instances, instance)
	}
	sort.Slice(instances, func(a, b int) bool {
		return mib.CompareInstances(instances[a], instances[b]) < 0
	})

	rows := make([][]string, 0, len(instances))
	for _, instance := range instances {
		rows = append(rows, append(cells[instance], instance))
	}

	log.Debug("table read", "address", s.cfg.Address(), "table", def.Name, "rows", len(rows))
	return mib.ParseTable(mib.InstanceColumn, def, rows)
}

// =============================================================================
// Helpers
// =============================================================================

func normalizeOID(oid string) string {
	if strings.HasPrefix(oid, ".") {
		return oid
	}
	return "." + oid
}

// formatValue renders a varbind the way it is stored in a table cell.
// Exceptions (noSuchObject, endOfMibView, ...) yield no value.
func formatValue(pdu gosnmp.SnmpPDU) (string, bool) {
	switch pdu.Type {
	case gosnmp.OctetString:
		if b, ok := pdu.Value.([]byte); ok {
			return string(b), true
		}
		return fmt.Sprint(pdu.Value), true

	case gosnmp.IPAddress, gosnmp.ObjectIdentifier:
		if s, ok := pdu.Value.(string); ok {
			return s, true
		}
		return fmt.Sprint(pdu.Value), true

	case gosnmp.Integer:
		if v, ok := pdu.Value.(int); ok {
			return strconv.Itoa(v), true
		}
		return fmt.Sprint(pdu.Value), true

	case gosnmp.Counter32, gosnmp.Counter64, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Uinteger32:
		return gosnmp.ToBigInt(pdu.Value).String(), true

	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		return "", false

	default:
		return fmt.Sprint(pdu.Value), true
	}
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	// gosnmp reports timeouts as "request timeout (after N retries)"
	return strings.Contains(err.Error(), "request timeout") ||
		errors.Is(err, context.DeadlineExceeded)
}
