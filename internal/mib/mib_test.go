package mib

import (
	"testing"

	"github.com/xtxerr/ipamsync/internal/errors"
)

func TestParseTable(t *testing.T) {
	rows := [][]string{
		{"10.0.1.5", "3", "255.255.255.0", "10.0.1.5"},
		{"192.168.7.1", "4", "255.255.255.252", "192.168.7.1"},
	}

	table, err := ParseTable(InstanceColumn, IPAddrTable, rows)
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}

	if table.Name != IPAddrTableName {
		t.Errorf("Name = %q, want %q", table.Name, IPAddrTableName)
	}
	if table.Rows() != 2 {
		t.Fatalf("Rows() = %d, want 2", table.Rows())
	}

	if got := table.Column(IPAdEntIfIndex)[1]; got != "4" {
		t.Errorf("ipAdEntIfIndex[1] = %q, want 4", got)
	}
	if got := table.Column(IPAdEntNetMask)[0]; got != "255.255.255.0" {
		t.Errorf("ipAdEntNetMask[0] = %q", got)
	}
	if got := table.Column(InstanceColumn)[1]; got != "192.168.7.1" {
		t.Errorf("instance[1] = %q", got)
	}

	if err := table.Validate(IPAdEntAddr, IPAdEntIfIndex, IPAdEntNetMask); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestParseTable_ShortRow(t *testing.T) {
	_, err := ParseTable(InstanceColumn, IfXTable, [][]string{{"Gi0/1", ""}})
	if !errors.Is(err, errors.ErrInvalidTable) {
		t.Errorf("ParseTable(short row) error = %v, want ErrInvalidTable", err)
	}
}

func TestParseTable_Empty(t *testing.T) {
	table, err := ParseTable(InstanceColumn, IfXTable, nil)
	if err != nil {
		t.Fatalf("ParseTable(nil) error = %v", err)
	}
	if table.Rows() != 0 {
		t.Errorf("Rows() = %d, want 0", table.Rows())
	}
	if err := table.Validate(IfName, IfAlias); err != nil {
		t.Errorf("Validate(empty) error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		table   Table
		require []string
		wantErr bool
	}{
		{
			name: "aligned",
			table: Table{Name: "t", Columns: map[string][]string{
				"a": {"1", "2"},
				"b": {"x", "y"},
			}},
			require: []string{"a", "b"},
		},
		{
			name: "ragged",
			table: Table{Name: "t", Columns: map[string][]string{
				"a": {"1", "2"},
				"b": {"x"},
			}},
			wantErr: true,
		},
		{
			name: "missing column",
			table: Table{Name: "t", Columns: map[string][]string{
				"a": {"1"},
			}},
			require: []string{"a", "b"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate(tt.require...)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAppendRow_KeepsColumnsAligned(t *testing.T) {
	table := NewTable(IfXTableName, InstanceColumn, IfName, IfAlias)
	table.AppendRow(map[string]string{InstanceColumn: "1", IfName: "Gi0/1"})
	table.AppendRow(map[string]string{InstanceColumn: "2", IfName: "Gi0/2", IfAlias: "uplink"})

	if err := table.Validate(InstanceColumn, IfName, IfAlias); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got := table.Column(IfAlias); got[0] != "" || got[1] != "uplink" {
		t.Errorf("ifAlias = %v", got)
	}
}

func TestCompareInstances(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2", "10", -1},
		{"10", "2", 1},
		{"10.0.0.2", "10.0.0.10", -1},
		{"1.2", "1.2", 0},
		{"1.2", "1.2.3", -1},
	}

	for _, tt := range tests {
		if got := CompareInstances(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareInstances(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestDefinitionOIDs(t *testing.T) {
	oids := IPAddrTable.OIDs()
	want := []string{".1.3.6.1.2.1.4.20.1.1", ".1.3.6.1.2.1.4.20.1.2", ".1.3.6.1.2.1.4.20.1.3"}
	for i := range want {
		if oids[i] != want[i] {
			t.Errorf("OIDs()[%d] = %q, want %q", i, oids[i], want[i])
		}
	}
	if names := IfXTable.Names(); names[0] != IfName || names[1] != IfAlias {
		t.Errorf("IfXTable.Names() = %v", names)
	}
}
