package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xtxerr/ipamsync/config"
	"github.com/xtxerr/ipamsync/internal/errors"
	"github.com/xtxerr/ipamsync/internal/inventory"
	"github.com/xtxerr/ipamsync/internal/provider"
)

const sampleConfig = `
log:
  level: debug
store:
  path: ${IPAMSYNC_TEST_DB}
snmp:
  timeout_ms: 1500
archive:
  enabled: true
  dir: /var/lib/ipamsync/archive
  compression: snappy
groups:
  - id: 1
    name: core
    interval: 5m
    data_sources:
      - id: 10
        name: r1-agent
        device: r1
        parameters:
          ipAddress: 192.0.2.1
          port: "161"
          version: "2c"
          community: ${IPAMSYNC_TEST_COMMUNITY}
inventory:
  devices:
    - name: r1
      class: Router
      children:
        - name: gi0/1
          class: ElectricalPort
      special_children:
        - name: tu0
          class: MPLSTunnel
  customers:
    - name: acme
      service_pools:
        - name: Services
          services: [internet-acme, vpn-acme]
include:
  - groups.d/*.yaml
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("IPAMSYNC_TEST_DB", "/tmp/test.db")
	t.Setenv("IPAMSYNC_TEST_COMMUNITY", "s3cret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, sampleConfig)
	writeFile(t, filepath.Join(dir, "groups.d", "edge.yaml"), `
groups:
  - id: 2
    name: edge
    data_sources:
      - id: 20
        name: e1-agent
        parameters: {deviceId: "x", deviceClass: Switch}
inventory:
  pools:
    - name: Lab
      class: SubnetIPv4
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" || cfg.Store.Path != "/tmp/test.db" {
		t.Errorf("log/store = %+v / %+v", cfg.Log, cfg.Store)
	}
	if cfg.SNMP.TimeoutMs != 1500 || cfg.SNMP.Retries != config.DefaultSNMPRetries {
		t.Errorf("snmp = %+v, want timeout from file and default retries", cfg.SNMP)
	}
	if len(cfg.Groups) != 2 || cfg.Groups[1].Name != "edge" {
		t.Fatalf("groups = %+v", cfg.Groups)
	}
	if got := cfg.Groups[0].DataSources[0].Parameters["community"]; got != "s3cret" {
		t.Errorf("community = %q, want expanded value", got)
	}
	if cfg.Groups[0].Interval.Duration() != 5*time.Minute {
		t.Errorf("interval = %v", cfg.Groups[0].Interval.Duration())
	}
	if len(cfg.Inventory.Pools) != 1 || cfg.Inventory.Pools[0].Name != "Lab" {
		t.Errorf("included pools = %+v", cfg.Inventory.Pools)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of missing file succeeded")
	}
	if _, err := Parse([]byte("groups: [unclosed")); err == nil {
		t.Error("Parse() of invalid YAML succeeded")
	}
}

func TestDuration_Unmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"interval: 90s", 90 * time.Second},
		{"interval: 1h", time.Hour},
		{"interval: 120", 2 * time.Minute},
	}
	for _, tt := range tests {
		cfg, err := Parse([]byte("groups:\n  - name: g\n    " + tt.in))
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tt.in, err)
		}
		if got := cfg.Groups[0].Interval.Duration(); got != tt.want {
			t.Errorf("Parse(%q) interval = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Groups = []GroupConfig{{
			Name:        "core",
			DataSources: []DataSourceYAML{{ID: 1, Name: "a"}},
		}}
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad codec", func(c *Config) { c.Archive.Enabled = true; c.Archive.Compression = "brotli" }, "archive.compression"},
		{"empty archive dir", func(c *Config) { c.Archive.Enabled = true; c.Archive.Dir = "" }, "archive.dir"},
		{"empty group name", func(c *Config) { c.Groups[0].Name = "" }, "groups[0].name"},
		{"duplicate group", func(c *Config) {
			c.Groups = append(c.Groups, GroupConfig{Name: "core"})
		}, "groups[1].name"},
		{"short interval", func(c *Config) { c.Groups[0].Interval = Duration(time.Second) }, "groups[0].interval"},
		{"zero data source id", func(c *Config) { c.Groups[0].DataSources[0].ID = 0 }, "data_sources[0].id"},
		{"duplicate data source id", func(c *Config) {
			c.Groups = append(c.Groups, GroupConfig{Name: "edge", DataSources: []DataSourceYAML{{ID: 1, Name: "b"}}})
		}, "groups[1].data_sources[0].id"},
		{"unnamed device", func(c *Config) {
			c.Inventory.Devices = []ObjectSeed{{Class: "Router"}}
		}, "inventory.devices[0].name"},
		{"classless port", func(c *Config) {
			c.Inventory.Devices = []ObjectSeed{{Name: "r1", Class: "Router", Children: []ObjectSeed{{Name: "p"}}}}
		}, "inventory.devices[0].children[0].class"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.field == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.field)
			}
		})
	}
}

func TestValidate_ParametersAreNotChecked(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Groups = []GroupConfig{{
		Name:        "core",
		DataSources: []DataSourceYAML{{ID: 1, Name: "a", Parameters: map[string]string{"version": "1"}}},
	}}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()

	sc := ToStoreConfig(StoreConfig{Path: "x.db"})
	if sc.DSN != "x.db" || sc.MaxOpenConns <= 0 || sc.QueryTimeout <= 0 {
		t.Errorf("ToStoreConfig() = %+v", sc)
	}

	snmpCfg := ToSNMPDefaults(cfg.SNMP)
	if snmpCfg.TimeoutMs != config.DefaultSNMPTimeoutMs || snmpCfg.MaxRepetitions != config.DefaultSNMPMaxRepetitions {
		t.Errorf("ToSNMPDefaults() = %+v", snmpCfg)
	}

	sched := ToSchedulerConfig(SchedulerConfig{Workers: 9})
	if sched.Workers != 9 || sched.RunTimeout != config.DefaultRunTimeout {
		t.Errorf("ToSchedulerConfig() = %+v", sched)
	}

	if ToArchive(ArchiveConfig{Enabled: false, Dir: "a"}) != nil {
		t.Error("ToArchive() returned an archive while disabled")
	}
	if a := ToArchive(ArchiveConfig{Enabled: true, Dir: "a"}); a == nil || a.Dir() != "a" {
		t.Errorf("ToArchive() = %v", a)
	}

	if got := GroupInterval(GroupConfig{}); got != config.DefaultGroupInterval {
		t.Errorf("GroupInterval() = %v", got)
	}
}

// =============================================================================
// Inventory Seeding
// =============================================================================

func sampleSeed() InventorySeed {
	return InventorySeed{
		Pools: []PoolSeed{{
			Name:  "Backbone",
			Class: inventory.ClassSubnetIPv4,
			Pools: []PoolSeed{{Name: "Loopbacks", Class: inventory.ClassSubnetIPv4}},
		}},
		Devices: []ObjectSeed{{
			Name:            "r1",
			Class:           "Router",
			Attributes:      map[string]string{"vendor": "acme"},
			Children:        []ObjectSeed{{Name: "gi0/1", Class: inventory.ClassElectricalPort}},
			SpecialChildren: []ObjectSeed{{Name: "tu0", Class: inventory.ClassMPLSTunnel}},
		}},
		Customers: []CustomerSeed{{
			Name:         "acme",
			ServicePools: []ServicePoolSeed{{Name: "Services", Services: []string{"internet-acme", "vpn-acme"}}},
		}},
	}
}

func TestApplyInventory(t *testing.T) {
	ctx := context.Background()
	inv := inventory.NewMemory()

	res, err := ApplyInventory(ctx, inv, sampleSeed())
	if err != nil {
		t.Fatalf("ApplyInventory() error = %v (%v)", err, res.Errors)
	}
	// r1, gi0/1, tu0, acme, two services
	if res.ObjectsCreated != 6 {
		t.Errorf("ObjectsCreated = %d, want 6", res.ObjectsCreated)
	}
	// Backbone, Loopbacks, IPv6, Customers, Services
	if res.PoolsCreated != 5 {
		t.Errorf("PoolsCreated = %d, want 5", res.PoolsCreated)
	}

	v4, _ := inv.GetRootPools(ctx, inventory.ClassSubnetIPv4, inventory.PoolTypeModuleRoot)
	if len(v4) != 1 || v4[0].Name != "Backbone" {
		t.Errorf("IPv4 roots = %+v, want only the seeded pool", v4)
	}
	v6, _ := inv.GetRootPools(ctx, inventory.ClassSubnetIPv6, inventory.PoolTypeModuleRoot)
	if len(v6) != 1 || v6[0].Name != IPv6RootPool {
		t.Errorf("IPv6 roots = %+v", v6)
	}

	devices, _ := inv.GetObjectChildren(ctx, inventory.Root, "")
	if len(devices) != 1 {
		t.Fatalf("devices = %+v", devices)
	}
	obj, err := inv.GetObject(ctx, "Router", devices[0].ID)
	if err != nil || obj.Attributes["vendor"] != "acme" {
		t.Errorf("device = %+v, %v", obj, err)
	}
	special, _ := inv.GetObjectSpecialChildren(ctx, "Router", devices[0].ID)
	if len(special) != 1 || special[0].ClassName != inventory.ClassMPLSTunnel {
		t.Errorf("special children = %+v", special)
	}

	again, err := ApplyInventory(ctx, inv, sampleSeed())
	if err != nil {
		t.Fatalf("second ApplyInventory() error = %v", err)
	}
	if again.ObjectsCreated != 0 || again.PoolsCreated != 0 {
		t.Errorf("second apply created %d objects and %d pools", again.ObjectsCreated, again.PoolsCreated)
	}
}

func TestApplyInventory_EmptySeedCreatesSubnetRoots(t *testing.T) {
	ctx := context.Background()
	inv := inventory.NewMemory()

	res, err := ApplyInventory(ctx, inv, InventorySeed{})
	if err != nil {
		t.Fatalf("ApplyInventory() error = %v", err)
	}
	if res.PoolsCreated != 2 {
		t.Errorf("PoolsCreated = %d, want 2", res.PoolsCreated)
	}
	for _, class := range []string{inventory.ClassSubnetIPv4, inventory.ClassSubnetIPv6} {
		pools, _ := inv.GetRootPools(ctx, class, inventory.PoolTypeModuleRoot)
		if len(pools) != 1 {
			t.Errorf("%s roots = %+v", class, pools)
		}
	}
}

func TestApplyInventory_ReportsErrors(t *testing.T) {
	seed := InventorySeed{Devices: []ObjectSeed{{Name: "x"}}}
	res, err := ApplyInventory(context.Background(), inventory.NewMemory(), seed)
	if err == nil || len(res.Errors) != 1 {
		t.Errorf("ApplyInventory() = %+v, %v", res, err)
	}
}

func TestResolveGroups(t *testing.T) {
	ctx := context.Background()
	inv := inventory.NewMemory()
	if _, err := ApplyInventory(ctx, inv, sampleSeed()); err != nil {
		t.Fatal(err)
	}
	devices, _ := inv.GetObjectChildren(ctx, inventory.Root, "")

	groups, err := ResolveGroups(ctx, inv, []GroupConfig{{
		ID:   7,
		Name: "core",
		DataSources: []DataSourceYAML{
			{ID: 1, Name: "by-name", Device: "r1", Parameters: map[string]string{"ipAddress": "192.0.2.1"}},
			{ID: 2, Name: "explicit", Device: "r1", Parameters: map[string]string{"deviceId": "fixed"}},
			{ID: 3, Name: "unknown", Device: "r9"},
		},
	}})
	if err != nil {
		t.Fatalf("ResolveGroups() error = %v", err)
	}
	if len(groups) != 1 || groups[0].ID != 7 || len(groups[0].DataSources) != 3 {
		t.Fatalf("groups = %+v", groups)
	}

	ds := groups[0].DataSources
	if ds[0].Parameters[provider.ParamDeviceID] != devices[0].ID || ds[0].Parameters[provider.ParamDeviceClass] != "Router" {
		t.Errorf("by-name params = %v", ds[0].Parameters)
	}
	if ds[0].Parameters[provider.ParamIPAddress] != "192.0.2.1" {
		t.Errorf("parameters were not copied: %v", ds[0].Parameters)
	}
	if ds[1].Parameters[provider.ParamDeviceID] != "fixed" {
		t.Errorf("explicit deviceId was overwritten: %v", ds[1].Parameters)
	}
	if _, ok := ds[2].Parameters[provider.ParamDeviceID]; ok {
		t.Errorf("unknown device was resolved: %v", ds[2].Parameters)
	}
}

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "groups:\n  - name: core\n")

	got := make(chan *Config, 4)
	failed := make(chan error, 4)
	w := NewWatcher(path, 10*time.Millisecond, func(cfg *Config, err error) {
		if err != nil {
			failed <- err
			return
		}
		got <- cfg
	})
	w.Start()
	defer w.Stop()

	later := time.Now().Add(time.Second)
	writeFile(t, path, "groups:\n  - name: core\n  - name: edge\n")
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-got:
		if len(cfg.Groups) != 2 {
			t.Errorf("reloaded groups = %+v", cfg.Groups)
		}
	case err := <-failed:
		t.Fatalf("reload error = %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("config was not reloaded")
	}

	later = later.Add(time.Second)
	writeFile(t, path, "groups:\n  - name: \"\"\n")
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-failed:
		if !errors.Is(err, errors.ErrInvalidConfig) && !strings.Contains(err.Error(), "groups[0].name") {
			t.Errorf("reload error = %v", err)
		}
	case <-got:
		t.Fatal("invalid config was accepted")
	case <-time.After(2 * time.Second):
		t.Fatal("invalid config was not reported")
	}
}
