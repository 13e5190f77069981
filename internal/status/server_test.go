package status

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dutbench/internal/bench"
	"dutbench/internal/traffic"
)

func feed(t *Tracker) {
	c := traffic.NewCondition(traffic.DefaultNoResponse, "64", 7, 10000, 250)
	now := time.Unix(10, 0)
	for _, st := range []bench.State{bench.Launching, bench.AwaitingStart, bench.CollectingRemote, bench.TearingDown, bench.Complete} {
		t.ObserveState(bench.StateEvent{RunID: "r1", Condition: c, State: st, Time: now})
	}
	c2 := traffic.NewCondition(traffic.NoCongestionNoResponse, "64", 7, 10000, 250)
	t.ObserveState(bench.StateEvent{RunID: "r2", Condition: c2, State: bench.Failed, Failure: bench.FailureParse, Time: now})
}

func TestTrackerCollapsesRunStates(t *testing.T) {
	tr := NewTracker(7, []traffic.PacketSize{"64", "128"})
	feed(tr)
	snap := tr.Snapshot()
	if len(snap.Runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(snap.Runs))
	}
	if snap.Runs[0].State != bench.Complete || snap.Runs[1].Failure != bench.FailureParse {
		t.Fatalf("unexpected runs %+v", snap.Runs)
	}
	if snap.Failures != 1 || snap.Current == nil || snap.Current.RunID != "r2" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	tr.WriteRow(bench.RowRecord{Size: "64"})
	tr.WriteRow(bench.RowRecord{Size: "128"})
	if snap := tr.Snapshot(); !snap.Done || snap.Current != nil {
		t.Fatalf("expected sweep to be done, got %+v", snap)
	}
}

func TestHandleStatus(t *testing.T) {
	tr := NewTracker(7, traffic.DefaultSizes())
	feed(tr)
	server := NewServer(tr)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	server.handleStatus(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status OK, got %v", resp.StatusCode)
	}
	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.TargetID != 7 || len(snap.Sizes) != 7 || snap.Current.State != bench.Failed {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestHandleRows(t *testing.T) {
	tr := NewTracker(7, []traffic.PacketSize{"64"})
	tr.WriteRow(bench.RowRecord{Size: "64", Values: bench.Row{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}})
	server := NewServer(tr)

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rows?format=tsv", nil))
	if got := w.Body.String(); got != "1.0\t2.00\t3.0\t4.0\t5.0\t6.00\t7.0\t8\t9\t10\t11\t12.0\n" {
		t.Fatalf("unexpected tsv %q", got)
	}

	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rows", nil))
	var rows []bench.RowRecord
	if err := json.NewDecoder(w.Body).Decode(&rows); err != nil || len(rows) != 1 {
		t.Fatalf("unexpected rows %v (%v)", rows, err)
	}
}

func TestHandleIndex(t *testing.T) {
	tr := NewTracker(7, traffic.DefaultSizes())
	feed(tr)
	server := NewServer(tr)

	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	body := w.Body.String()
	if !strings.Contains(body, "dutbench VM 7") || !strings.Contains(body, "no congestion, no response") {
		t.Fatalf("index missing content: %s", body)
	}

	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestServeStopsWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	server := NewServer(NewTracker(7, nil))
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
