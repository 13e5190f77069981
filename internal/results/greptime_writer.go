package results

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"dutbench/internal/bench"
)

// Default GreptimeDB table names.
const (
	DefaultRowTable = "dutbench_rows"
	DefaultRunTable = "dutbench_runs"
)

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter stores rows and runs in GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	client   greptimeClient
	rowTable string
	runTable string
}

// NewGreptimeDBWriter connects to endpoint, given as host or host:port. Empty
// table names use the defaults.
func NewGreptimeDBWriter(endpoint, database, rowTable, runTable string) (*GreptimeDBWriter, error) {
	host, port := endpoint, 0
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("greptime endpoint %q: %w", endpoint, err)
		}
		host, port = h, n
	}
	cfg := greptime.NewConfig(host).WithDatabase(database)
	if port != 0 {
		cfg = cfg.WithPort(port)
	}
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if rowTable == "" {
		rowTable = DefaultRowTable
	}
	if runTable == "" {
		runTable = DefaultRunTable
	}
	return &GreptimeDBWriter{client: client, rowTable: rowTable, runTable: runTable}, nil
}

// WriteRow inserts one row with a column per row field.
func (w *GreptimeDBWriter) WriteRow(rec bench.RowRecord) error {
	tbl, err := table.New(w.rowTable)
	if err != nil {
		return err
	}
	cols := []error{
		tbl.AddTagColumn("target_id", types.INT64),
		tbl.AddTagColumn("size", types.STRING),
		tbl.AddFieldColumn("sweep_id", types.STRING),
		tbl.AddFieldColumn("failures", types.INT64),
	}
	for _, name := range bench.FieldNames {
		cols = append(cols, tbl.AddFieldColumn(name, types.FLOAT64))
	}
	cols = append(cols, tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND))
	for _, err := range cols {
		if err != nil {
			return err
		}
	}

	values := []any{int64(rec.TargetID), string(rec.Size), rec.SweepID, int64(rec.Failures)}
	for _, v := range rec.Values {
		values = append(values, v)
	}
	values = append(values, rec.Time)
	if err := tbl.AddRow(values...); err != nil {
		return err
	}
	return w.write(w.rowTable, tbl)
}

// WriteRun inserts one run record.
func (w *GreptimeDBWriter) WriteRun(rec bench.RunRecord) error {
	tbl, err := table.New(w.runTable)
	if err != nil {
		return err
	}
	for _, err := range []error{
		tbl.AddTagColumn("target_id", types.INT64),
		tbl.AddTagColumn("size", types.STRING),
		tbl.AddTagColumn("condition", types.STRING),
		tbl.AddFieldColumn("run_id", types.STRING),
		tbl.AddFieldColumn("sweep_id", types.STRING),
		tbl.AddFieldColumn("state", types.STRING),
		tbl.AddFieldColumn("failure", types.STRING),
		tbl.AddFieldColumn("rate", types.INT64),
		tbl.AddFieldColumn("rx_mean_kpps", types.FLOAT64),
		tbl.AddFieldColumn("rx_stdev_kpps", types.FLOAT64),
		tbl.AddFieldColumn("cpu", types.FLOAT64),
		tbl.AddFieldColumn("rtt_mean", types.FLOAT64),
		tbl.AddFieldColumn("rtt_stdev", types.FLOAT64),
		tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND),
	} {
		if err != nil {
			return err
		}
	}
	if err := tbl.AddRow(
		int64(rec.TargetID), string(rec.Size), rec.Condition,
		rec.RunID, rec.SweepID, rec.State.String(), string(rec.Failure), int64(rec.Rate),
		rec.DUT.RxMeanKpps, rec.DUT.RxStdevKpps, rec.DUT.CPUUsagePercent,
		rec.Latency.RTTMean, rec.Latency.RTTStdev,
		rec.Finished,
	); err != nil {
		return err
	}
	return w.write(w.runTable, tbl)
}

func (w *GreptimeDBWriter) write(name string, tbl *table.Table) error {
	if _, err := w.client.Write(context.Background(), tbl); err != nil {
		slog.Error("greptime write failed", "table", name, "err", err)
		return err
	}
	return nil
}
