// Package dashboard renders Grafana dashboards over the GreptimeDB result
// tables.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"dutbench/internal/bench"
	"dutbench/internal/results"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// Params are the table names the dashboards query.
type Params struct {
	RowTable string
	RunTable string
	Fields   []string
}

// DefaultParams uses the GREPTIMEDB_TABLE and GREPTIMEDB_RUN_TABLE
// environment variables, falling back to the writer defaults.
func DefaultParams() Params {
	p := Params{RowTable: os.Getenv("GREPTIMEDB_TABLE"), RunTable: os.Getenv("GREPTIMEDB_RUN_TABLE"), Fields: bench.FieldNames[:]}
	if p.RowTable == "" {
		p.RowTable = results.DefaultRowTable
	}
	if p.RunTable == "" {
		p.RunTable = results.DefaultRunTable
	}
	return p
}

// Render writes every embedded dashboard to outDir. The Grafana datasource
// uid is taken from GREPTIMEDB_DATASOURCE_UID.
func Render(outDir string, p Params) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
		// Panels are laid out two per grid row.
		"col": func(i int) int { return i % 2 * 12 },
		"row": func(i int) int { return i / 2 * 8 },
	}

	names, err := templates.ReadDir("templates")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, e := range names {
		t, err := template.New(e.Name()).Funcs(funcMap).ParseFS(templates, "templates/"+e.Name())
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(e.Name(), ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, p); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
