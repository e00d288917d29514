// Package mib describes the SNMP tables read by the IP synchronizer and
// holds them as column-oriented string tables.
//
// A Table maps a column name to the list of cell values of that column.
// Every column of a table has the same length and the same row order; row i
// of the table is the i-th element of every column. The special column
// named by InstanceColumn holds the OID index suffix of each row.
package mib

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xtxerr/ipamsync/internal/errors"
)

// InstanceColumn is the column holding each row's index suffix.
const InstanceColumn = "instance"

// Table names as exchanged between provider and synchronizer.
const (
	IPAddrTableName = "ipAddrTable"
	IfXTableName    = "ifMibTable"
)

// ipAddrTable columns (RFC 1213 / IP-MIB).
const (
	IPAdEntAddr    = "ipAdEntAddr"
	IPAdEntIfIndex = "ipAdEntIfIndex"
	IPAdEntNetMask = "ipAdEntNetMask"
)

// ifXTable columns (IF-MIB).
const (
	IfName  = "ifName"
	IfAlias = "ifAlias"
)

// =============================================================================
// Definitions
// =============================================================================

// Column binds a column name to its OID.
type Column struct {
	Name string
	OID  string
}

// Definition is an ordered list of table columns.
type Definition struct {
	Name    string
	Columns []Column
}

// OIDs returns the column OIDs in definition order.
func (d Definition) OIDs() []string {
	oids := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		oids[i] = c.OID
	}
	return oids
}

// Names returns the column names in definition order.
func (d Definition) Names() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// IPAddrTable is the ipAddrTable subset read by the synchronizer.
var IPAddrTable = Definition{
	Name: IPAddrTableName,
	Columns: []Column{
		{Name: IPAdEntAddr, OID: ".1.3.6.1.2.1.4.20.1.1"},
		{Name: IPAdEntIfIndex, OID: ".1.3.6.1.2.1.4.20.1.2"},
		{Name: IPAdEntNetMask, OID: ".1.3.6.1.2.1.4.20.1.3"},
	},
}

// IfXTable is the ifXTable subset read by the synchronizer.
var IfXTable = Definition{
	Name: IfXTableName,
	Columns: []Column{
		{Name: IfName, OID: ".1.3.6.1.2.1.31.1.1.1.1"},
		{Name: IfAlias, OID: ".1.3.6.1.2.1.31.1.1.1.18"},
	},
}

// =============================================================================
// Table
// =============================================================================

// Table is a column-oriented MIB table.
type Table struct {
	Name    string
	Columns map[string][]string
}

// NewTable creates an empty table with the given columns.
func NewTable(name string, columns ...string) Table {
	t := Table{Name: name, Columns: make(map[string][]string, len(columns))}
	for _, c := range columns {
		t.Columns[c] = []string{}
	}
	return t
}

// Column returns the values of a column, or nil when absent.
func (t Table) Column(name string) []string {
	return t.Columns[name]
}

// Rows returns the number of rows, taken from the instance column when
// present and otherwise from any column.
func (t Table) Rows() int {
	if col, ok := t.Columns[InstanceColumn]; ok {
		return len(col)
	}
	for _, col := range t.Columns {
		return len(col)
	}
	return 0
}

// AppendRow appends one row given as column → value. Missing columns get
// an empty cell so all columns stay aligned.
func (t *Table) AppendRow(row map[string]string) {
	if t.Columns == nil {
		t.Columns = make(map[string][]string)
	}
	n := t.Rows()
	for name := range row {
		if _, ok := t.Columns[name]; !ok {
			t.Columns[name] = make([]string, n)
		}
	}
	for name := range t.Columns {
		t.Columns[name] = append(t.Columns[name], row[name])
	}
}

// Validate checks that the required columns exist and that every column
// has the same length.
func (t Table) Validate(required ...string) error {
	for _, name := range required {
		if _, ok := t.Columns[name]; !ok {
			return fmt.Errorf("table %s: column %s missing: %w", t.Name, name, errors.ErrInvalidTable)
		}
	}

	expected := -1
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		n := len(t.Columns[name])
		if expected == -1 {
			expected = n
			continue
		}
		if n != expected {
			return fmt.Errorf("table %s: column %s has %d rows, expected %d: %w",
				t.Name, name, n, expected, errors.ErrInvalidTable)
		}
	}
	return nil
}

// =============================================================================
// Parsing
// =============================================================================

// ParseTable converts positional rows into a column-oriented table.
//
// Each row holds one cell per definition column, in definition order,
// followed by the row's instance suffix. The instance values are stored
// under instanceColumn.
func ParseTable(instanceColumn string, def Definition, rows [][]string) (Table, error) {
	t := Table{Name: def.Name, Columns: make(map[string][]string, len(def.Columns)+1)}
	width := len(def.Columns)

	for i, c := range def.Columns {
		col := make([]string, 0, len(rows))
		for r, row := range rows {
			if len(row) <= width {
				return Table{}, fmt.Errorf("row %d has %d cells, expected %d: %w",
					r, len(row), width+1, errors.ErrInvalidTable)
			}
			col = append(col, row[i])
		}
		t.Columns[c.Name] = col
	}

	instances := make([]string, 0, len(rows))
	for r, row := range rows {
		if len(row) <= width {
			return Table{}, fmt.Errorf("row %d has %d cells, expected %d: %w",
				r, len(row), width+1, errors.ErrInvalidTable)
		}
		instances = append(instances, row[width])
	}
	t.Columns[instanceColumn] = instances

	return t, nil
}

// CompareInstances orders dotted numeric instance suffixes component by
// component, so "2" < "10" and "10.0.0.2" < "10.0.0.10". Non-numeric
// components fall back to string order.
func CompareInstances(a, b string) int {
	pa := strings.Split(a, ".")
	pb := strings.Split(b, ".")
	for i := 0; i < len(pa) && i < len(pb); i++ {
		na, errA := strconv.ParseUint(pa[i], 10, 64)
		nb, errB := strconv.ParseUint(pb[i], 10, 64)
		if errA == nil && errB == nil {
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			continue
		}
		if c := strings.Compare(pa[i], pb[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(pa) < len(pb):
		return -1
	case len(pa) > len(pb):
		return 1
	}
	return 0
}
