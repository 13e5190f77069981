package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"dutbench/internal/traffic"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bench.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, `
remote:
  host: cab2
  command: "stats {{.Respond}} {{.TargetID}}"
rates:
  high: 5000
timing:
  startup_timeout: 30s
  settle_delay: 500ms
sizes: [64, "1500", r]
archive_logs: true
`)
	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Remote.Host != "cab2" || cfg.Rates.High != 5000 || cfg.Rates.Low != 250 {
		t.Errorf("unexpected remote/rates: %+v %+v", cfg.Remote, cfg.Rates)
	}
	if cfg.Timing.StartupTimeout.D() != 30*time.Second || cfg.Timing.SettleDelay.D() != 500*time.Millisecond {
		t.Errorf("unexpected timing: %+v", cfg.Timing)
	}
	if cfg.Timing.PollInterval.D() != time.Second {
		t.Errorf("default poll interval lost: %v", cfg.Timing.PollInterval.D())
	}
	sizes, err := cfg.PacketSizes()
	if err != nil {
		t.Fatalf("PacketSizes: %v", err)
	}
	if diff := cmp.Diff([]traffic.PacketSize{"64", "1500", traffic.Random}, sizes); diff != "" {
		t.Errorf("sizes mismatch (-want +got):\n%s", diff)
	}
	if !cfg.ArchiveLogs {
		t.Error("archive_logs not applied")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Remote.Host != "cab1" || cfg.Rates.High != 10000 || cfg.Rates.Low != 250 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	sizes, _ := cfg.PacketSizes()
	if len(sizes) != 7 {
		t.Errorf("expected the full size set, got %v", sizes)
	}
}

func TestLoadConfig_SchemaRejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":  "remote:\n  hostname: x\n",
		"negative rate":  "rates:\n  high: -1\n",
		"bad duration":   "timing:\n  settle_delay: soon\n",
		"bad size":       "sizes: [jumbo]\n",
		"wrong type":     "archive_logs: yes please\n",
		"unknown toplvl": "verbose: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body), ""); err == nil {
				t.Fatalf("expected validation error for %q", body)
			}
		})
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("DUTBENCH_HOST", "lab-dut")
	t.Setenv("DUTBENCH_STARTUP_TIMEOUT", "45s")
	t.Setenv("DUTBENCH_LOG_PATH", "/tmp/gen.log")
	cfg, err := Load(writeConfig(t, "remote:\n  host: cab2\n"), "")
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Remote.Host != "lab-dut" || cfg.Timing.StartupTimeout.D() != 45*time.Second || cfg.Generator.LogPath != "/tmp/gen.log" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}

	t.Setenv("DUTBENCH_STARTUP_TIMEOUT", "forever")
	if _, err := Load("", ""); err == nil || !strings.Contains(err.Error(), "DUTBENCH_STARTUP_TIMEOUT") {
		t.Fatalf("expected env parse error, got %v", err)
	}
}

func TestLoadConfig_ExternalSchema(t *testing.T) {
	schema := filepath.Join(t.TempDir(), "strict.cue")
	if err := os.WriteFile(schema, []byte("#Bench: {archive_logs: true}\n"), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	if _, err := Load(writeConfig(t, "archive_logs: false\n"), schema); err == nil {
		t.Fatal("expected the external schema to be enforced")
	}
	if _, err := Load(writeConfig(t, "archive_logs: true\n"), schema); err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/bench")
	if got := ExpandHome("~/outputs/tg_out.txt"); got != "/home/bench/outputs/tg_out.txt" {
		t.Fatalf("got %q", got)
	}
	if got := ExpandHome("./outputs"); got != "./outputs" {
		t.Fatalf("relative path changed: %q", got)
	}
}
