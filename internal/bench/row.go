package bench

import (
	"fmt"
	"strconv"
	"strings"

	"dutbench/internal/traffic"
)

// RowFields is the number of values in a result row.
const RowFields = 12

// FieldNames labels the row columns in order.
var FieldNames = [RowFields]string{
	"rx_mean_default_kpps",
	"rx_stdev_default_kpps",
	"cpu_default",
	"cpu_nocong",
	"rx_mean_resp_kpps",
	"rx_stdev_resp_kpps",
	"cpu_resp",
	"rtt_mean_resp",
	"rtt_stdev_resp",
	"rtt_mean_nocong_resp",
	"rtt_stdev_nocong_resp",
	"cpu_nocong_resp",
}

// Row is the aggregate of the four runs for one packet size. Fields of runs
// that failed stay zero.
type Row [RowFields]float64

// Merge copies the contribution of a completed run into its slots.
func (r *Row) Merge(res RunResult) {
	if !res.OK() {
		return
	}
	s, l := res.Stats, res.Latency
	switch res.Condition.Kind {
	case traffic.DefaultNoResponse:
		r[0], r[1], r[2] = s.RxMeanKpps, s.RxStdevKpps, s.CPUUsagePercent
	case traffic.NoCongestionNoResponse:
		r[3] = s.CPUUsagePercent
	case traffic.DefaultResponse:
		r[4], r[5], r[6] = s.RxMeanKpps, s.RxStdevKpps, s.CPUUsagePercent
		r[7], r[8] = l.RTTMean/1000, l.RTTStdev/1000
	case traffic.NoCongestionResponse:
		r[9], r[10] = l.RTTMean/1000, l.RTTStdev/1000
		r[11] = s.CPUUsagePercent
	}
}

// Format renders the row as one tab separated line without the trailing
// newline. RTT columns are truncated to integers.
func (r Row) Format() string {
	return fmt.Sprintf("%.1f\t%.2f\t%.1f\t%.1f\t%.1f\t%.2f\t%.1f\t%d\t%d\t%d\t%d\t%.1f",
		r[0], r[1], r[2], r[3], r[4], r[5], r[6],
		int64(r[7]), int64(r[8]), int64(r[9]), int64(r[10]),
		r[11])
}

func (r Row) String() string { return r.Format() }

// ParseRow reads a line produced by Format.
func ParseRow(line string) (Row, error) {
	var r Row
	parts := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(parts) != RowFields {
		return r, fmt.Errorf("row has %d fields, want %d", len(parts), RowFields)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return r, fmt.Errorf("row field %s: %w", FieldNames[i], err)
		}
		r[i] = v
	}
	return r, nil
}
