package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"v6probe/internal/model"
)

func TestCSV_WritesHeaderOnce(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "data", "ipv6.csv")
	sink := &CSV{Path: path}

	m1 := model.Measurement{Timestamp: time.Unix(1, 0).UTC(), Direct: model.Latency(85), Resolved: model.NotSupported()}
	m2 := model.Measurement{Timestamp: time.Unix(2, 0).UTC(), Direct: model.NotSupported(), Resolved: model.NotAttempted()}

	if err := sink.Report(context.Background(), m1); err != nil {
		t.Fatalf("Report #1: %v", err)
	}
	if err := sink.Report(context.Background(), m2); err != nil {
		t.Fatalf("Report #2: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%d\n%s", len(lines), string(data))
	}
	if lines[0] != "timestamp,ipv6_latency,ipv6_lookup" {
		t.Fatalf("header=%q", lines[0])
	}
	if lines[1] != "1970-01-01T00:00:01Z,85,NS" {
		t.Fatalf("line=%q", lines[1])
	}

	items, err := ReadCSV(path)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(items) != 2 || items[0].Direct != m1.Direct || items[1].Resolved != m2.Resolved {
		t.Fatalf("items=%+v", items)
	}
}

func TestReadCSV_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := readCSV(strings.NewReader("timestamp,ipv6_latency,ipv6_lookup\nnot-a-time,1,2\n")); err == nil {
		t.Fatal("expected timestamp error")
	}
	if _, err := readCSV(strings.NewReader("1970-01-01T00:00:01Z,fast,NS\n")); err == nil {
		t.Fatal("expected value error")
	}
	items, err := readCSV(strings.NewReader(""))
	if err != nil || items != nil {
		t.Fatalf("items=%v err=%v", items, err)
	}
}
