package report

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"v6probe/internal/model"
)

var csvHeader = []string{"timestamp", model.KeyLatency, model.KeyLookup}

// WriteCSV writes measurements to CSV with a fixed column order.
func WriteCSV(w io.Writer, items []model.Measurement, header bool) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if header {
		if err := writer.Write(csvHeader); err != nil {
			return err
		}
	}

	for _, m := range items {
		record := []string{
			m.Timestamp.UTC().Format(time.RFC3339Nano),
			m.Direct.String(),
			m.Resolved.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// AppendCSV appends measurements to path, writing the header only when the
// file is new or empty.
func AppendCSV(path string, items []model.Measurement) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	return WriteCSV(file, items, info.Size() == 0)
}

// CSV is a Reporter appending each measurement to a file.
type CSV struct {
	Path string

	mu sync.Mutex
}

func (c *CSV) Report(_ context.Context, m model.Measurement) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return AppendCSV(c.Path, []model.Measurement{m})
}
