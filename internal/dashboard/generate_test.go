package dashboard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderMissingEnv(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "")
	if err := Render(t.TempDir(), DefaultParams()); err == nil {
		t.Fatalf("expected error for missing env vars")
	}
}

func TestRenderSuccess(t *testing.T) {
	t.Setenv("GREPTIMEDB_DATASOURCE_UID", "uid1")
	t.Setenv("GREPTIMEDB_TABLE", "bench_rows")
	t.Setenv("GREPTIMEDB_RUN_TABLE", "")

	dir := t.TempDir()
	p := DefaultParams()
	if err := Render(dir, p); err != nil {
		t.Fatalf("render failed: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "dutbench-dashboard.json"))
	if err != nil {
		t.Fatalf("read dashboard: %v", err)
	}
	if !strings.Contains(string(b), "uid1") {
		t.Fatalf("greptime uid not rendered")
	}
	if !strings.Contains(string(b), "FROM bench_rows") || !strings.Contains(string(b), "FROM dutbench_runs") {
		t.Fatalf("table names not rendered")
	}
	var dash struct {
		Panels []struct {
			Title string `json:"title"`
		} `json:"panels"`
	}
	if err := json.Unmarshal(b, &dash); err != nil {
		t.Fatalf("dashboard is not valid JSON: %v", err)
	}
	if got, want := len(dash.Panels), len(p.Fields)+1; got != want {
		t.Fatalf("panels = %d, want %d", got, want)
	}
}
