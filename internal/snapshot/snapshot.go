package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zgpcy/aws-billing-exporter/internal/logger"
	"github.com/zgpcy/aws-billing-exporter/internal/metric"
)

// MetricsFile is the snapshot file name under the data directory.
const MetricsFile = "billing_metrics.json"

// record is the on-disk shape of one metric. Timestamps are serialized as
// strings so the file stays readable and tool-agnostic; parsing back is
// where typing is enforced.
type record struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels"`
	Timestamp string            `json:"timestamp"`
	HelpText  string            `json:"help_text"`
}

// Store reads and writes metric snapshots as JSON files.
type Store struct {
	log *logger.Logger
}

// New creates a snapshot store.
func New(log *logger.Logger) *Store {
	return &Store{log: log}
}

// Write persists the metrics to path as an ordered JSON array, creating
// parent directories as needed. The slice order is preserved so a later
// push emits metrics in collection order.
func (s *Store) Write(path string, metrics []metric.Metric) error {
	records := make([]record, 0, len(metrics))
	for _, m := range metrics {
		labels := m.Labels
		if labels == nil {
			labels = map[string]string{}
		}
		records = append(records, record{
			Name:      m.Name,
			Value:     m.Value,
			Labels:    labels,
			Timestamp: m.Timestamp.Format(time.RFC3339),
			HelpText:  m.Help,
		})
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating snapshot directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot file: %w", err)
	}

	s.log.Info("Snapshot written", "path", path, "metrics", len(metrics))
	return nil
}

// Read loads a snapshot back into metrics. A missing or undecodable file
// logs an error and yields an empty slice, leaving the push stage with
// nothing to deliver. Individual records with an empty name or an
// unparsable timestamp are dropped with a warning rather than discarding
// the whole file.
func (s *Store) Read(path string) []metric.Metric {
	data, err := os.ReadFile(path)
	if err != nil {
		s.log.Error("Failed to read snapshot file", "path", path, "error", err)
		return []metric.Metric{}
	}

	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		s.log.Error("Invalid JSON in snapshot file", "path", path, "error", err)
		return []metric.Metric{}
	}

	metrics := make([]metric.Metric, 0, len(records))
	for i, r := range records {
		if r.Name == "" {
			s.log.Warn("Dropping snapshot record without name", "index", i)
			continue
		}
		ts, err := parseTimestamp(r.Timestamp)
		if err != nil {
			s.log.Warn("Dropping snapshot record with bad timestamp",
				"index", i,
				"name", r.Name,
				"timestamp", r.Timestamp)
			continue
		}
		metrics = append(metrics, metric.Metric{
			Name:      r.Name,
			Value:     r.Value,
			Labels:    r.Labels,
			Timestamp: ts,
			Help:      r.HelpText,
		})
	}

	s.log.Info("Snapshot read", "path", path, "metrics", len(metrics))
	return metrics
}

// parseTimestamp accepts RFC3339 and zone-less ISO-8601. Earlier tooling
// wrote local timestamps without an offset; those are taken as UTC.
func parseTimestamp(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	ts, err := time.Parse("2006-01-02T15:04:05.999999999", value)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
