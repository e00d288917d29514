package snmp

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/xtxerr/ipamsync/config"
	"github.com/xtxerr/ipamsync/internal/errors"
	"github.com/xtxerr/ipamsync/internal/mib"
)

// fakeWalker serves canned varbinds per root OID.
type fakeWalker struct {
	pdus  map[string][]gosnmp.SnmpPDU
	err   map[string]error
	walks []string
}

func (w *fakeWalker) BulkWalk(root string, fn gosnmp.WalkFunc) error {
	w.walks = append(w.walks, root)
	if err := w.err[root]; err != nil {
		return err
	}
	for _, pdu := range w.pdus[root] {
		if err := fn(pdu); err != nil {
			return err
		}
	}
	return nil
}

func octets(oid, v string) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.OctetString, Value: []byte(v)}
}

func ipaddr(oid, v string) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.IPAddress, Value: v}
}

func integer(oid string, v int) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: oid, Type: gosnmp.Integer, Value: v}
}

var testCfg = Config{Host: "192.0.2.1", Version: Version2c, Community: "public"}

func TestSession_Table(t *testing.T) {
	w := &fakeWalker{pdus: map[string][]gosnmp.SnmpPDU{
		".1.3.6.1.2.1.4.20.1.1": {
			ipaddr(".1.3.6.1.2.1.4.20.1.1.10.0.0.1", "10.0.0.1"),
			ipaddr(".1.3.6.1.2.1.4.20.1.1.9.0.0.1", "9.0.0.1"),
		},
		".1.3.6.1.2.1.4.20.1.2": {
			integer(".1.3.6.1.2.1.4.20.1.2.10.0.0.1", 3),
			integer(".1.3.6.1.2.1.4.20.1.2.9.0.0.1", 12),
		},
		".1.3.6.1.2.1.4.20.1.3": {
			// No mask for 9.0.0.1.
			ipaddr(".1.3.6.1.2.1.4.20.1.3.10.0.0.1", "255.255.255.0"),
		},
	}}

	s := NewSession(testCfg, w)
	table, err := s.Table(context.Background(), mib.IPAddrTable)
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}

	if table.Rows() != 2 {
		t.Fatalf("Rows() = %d, want 2", table.Rows())
	}

	tests := []struct {
		column string
		want   []string
	}{
		{mib.InstanceColumn, []string{"9.0.0.1", "10.0.0.1"}},
		{mib.IPAdEntAddr, []string{"9.0.0.1", "10.0.0.1"}},
		{mib.IPAdEntIfIndex, []string{"12", "3"}},
		{mib.IPAdEntNetMask, []string{"", "255.255.255.0"}},
	}
	for _, tt := range tests {
		got := table.Column(tt.column)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("Column(%s) = %v, want %v", tt.column, got, tt.want)
		}
	}
}

func TestSession_TableEmpty(t *testing.T) {
	s := NewSession(testCfg, &fakeWalker{})

	table, err := s.Table(context.Background(), mib.IfXTable)
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}
	if table.Rows() != 0 {
		t.Errorf("Rows() = %d, want 0", table.Rows())
	}
	if err := table.Validate(mib.IfName, mib.IfAlias); err != nil {
		t.Errorf("empty table should validate, got %v", err)
	}
}

func TestSession_TableSkipsExceptionsAndForeignOIDs(t *testing.T) {
	w := &fakeWalker{pdus: map[string][]gosnmp.SnmpPDU{
		".1.3.6.1.2.1.31.1.1.1.1": {
			octets(".1.3.6.1.2.1.31.1.1.1.1.1", "Gi0/1"),
			{Name: ".1.3.6.1.2.1.31.1.1.1.1.2", Type: gosnmp.NoSuchInstance},
			octets(".1.3.6.1.2.1.31.1.1.1.2.1", "outside the column"),
		},
		".1.3.6.1.2.1.31.1.1.1.18": {
			octets("1.3.6.1.2.1.31.1.1.1.18.1", "CustomerLink"),
		},
	}}

	table, err := NewSession(testCfg, w).Table(context.Background(), mib.IfXTable)
	if err != nil {
		t.Fatalf("Table() error = %v", err)
	}
	if table.Rows() != 1 {
		t.Fatalf("Rows() = %d, want 1", table.Rows())
	}
	if got := table.Column(mib.IfName)[0]; got != "Gi0/1" {
		t.Errorf("ifName = %q", got)
	}
	if got := table.Column(mib.IfAlias)[0]; got != "CustomerLink" {
		t.Errorf("ifAlias = %q", got)
	}
}

func TestSession_TableErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"timeout", fmt.Errorf("request timeout (after 2 retries)"), errors.ErrTimeout},
		{"other", fmt.Errorf("unexpected response"), errors.ErrSNMPError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWalker{err: map[string]error{".1.3.6.1.2.1.4.20.1.2": tt.err}}
			_, err := NewSession(testCfg, w).Table(context.Background(), mib.IPAddrTable)
			if !errors.Is(err, tt.want) {
				t.Errorf("Table() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSession_TableCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := &fakeWalker{}
	if _, err := NewSession(testCfg, w).Table(ctx, mib.IPAddrTable); !errors.Is(err, context.Canceled) {
		t.Errorf("Table() error = %v, want context.Canceled", err)
	}
	if len(w.walks) != 0 {
		t.Errorf("walked %v after cancel", w.walks)
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		pdu  gosnmp.SnmpPDU
		want string
		ok   bool
	}{
		{"octets", gosnmp.SnmpPDU{Type: gosnmp.OctetString, Value: []byte("uplink")}, "uplink", true},
		{"ip", gosnmp.SnmpPDU{Type: gosnmp.IPAddress, Value: "10.0.0.1"}, "10.0.0.1", true},
		{"integer", gosnmp.SnmpPDU{Type: gosnmp.Integer, Value: -4}, "-4", true},
		{"counter32", gosnmp.SnmpPDU{Type: gosnmp.Counter32, Value: uint(42)}, "42", true},
		{"counter64", gosnmp.SnmpPDU{Type: gosnmp.Counter64, Value: uint64(1 << 40)}, "1099511627776", true},
		{"oid", gosnmp.SnmpPDU{Type: gosnmp.ObjectIdentifier, Value: ".1.3.6"}, ".1.3.6", true},
		{"endOfMib", gosnmp.SnmpPDU{Type: gosnmp.EndOfMibView}, "", false},
		{"noSuchObject", gosnmp.SnmpPDU{Type: gosnmp.NoSuchObject}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := formatValue(tt.pdu)
			if got != tt.want || ok != tt.ok {
				t.Errorf("formatValue() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"v2c", testCfg, nil},
		{"v3", Config{Host: "h", Version: Version3, SecurityName: "ops"}, nil},
		{"no host", Config{Version: Version2c, Community: "c"}, errors.ErrMissingField},
		{"v2c no community", Config{Host: "h", Version: Version2c}, errors.ErrMissingField},
		{"v3 no user", Config{Host: "h", Version: Version3}, errors.ErrMissingField},
		{"v1", Config{Host: "h", Version: "1", Community: "c"}, errors.ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	c := newClient(Config{
		Host:          "192.0.2.9",
		Version:       Version3,
		SecurityName:  "ops",
		SecurityLevel: AuthPriv,
		AuthProtocol:  "sha256",
		AuthPassword:  "authpass",
		PrivProtocol:  "aes",
		PrivPassword:  "privpass",
		ContextName:   "vrf-a",
	})

	if c.Port != 161 || c.Version != gosnmp.Version3 || c.MsgFlags != gosnmp.AuthPriv {
		t.Fatalf("client = port %d version %v flags %v", c.Port, c.Version, c.MsgFlags)
	}
	usm, ok := c.SecurityParameters.(*gosnmp.UsmSecurityParameters)
	if !ok {
		t.Fatalf("SecurityParameters = %T", c.SecurityParameters)
	}
	if usm.AuthenticationProtocol != gosnmp.SHA256 || usm.PrivacyProtocol != gosnmp.AES {
		t.Errorf("usm protocols = %v/%v", usm.AuthenticationProtocol, usm.PrivacyProtocol)
	}
	if c.ContextName != "vrf-a" {
		t.Errorf("ContextName = %q", c.ContextName)
	}

	v2 := newClient(testCfg)
	if v2.Version != gosnmp.Version2c || v2.Community != "public" {
		t.Errorf("v2c client = %v %q", v2.Version, v2.Community)
	}
	if got := testCfg.Address(); got != "udp:192.0.2.1/161" {
		t.Errorf("Address() = %q", got)
	}
}

func TestNewClient_Timing(t *testing.T) {
	tests := []struct {
		name        string
		timeoutMs   uint32
		retries     uint32
		wantTimeout time.Duration
		wantRetries int
	}{
		{"explicit", 800, 3, 800 * time.Millisecond, 3},
		{"no retries", 800, 0, 800 * time.Millisecond, 0},
		{"default timeout", 0, 1, time.Duration(config.DefaultSNMPTimeoutMs) * time.Millisecond, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testCfg
			cfg.TimeoutMs = tt.timeoutMs
			cfg.Retries = tt.retries
			c := newClient(cfg)
			if c.Timeout != tt.wantTimeout || c.Retries != tt.wantRetries {
				t.Errorf("client timing = %s/%d, want %s/%d", c.Timeout, c.Retries, tt.wantTimeout, tt.wantRetries)
			}
		})
	}
}
