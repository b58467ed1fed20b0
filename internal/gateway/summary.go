package gateway

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SummaryFile is the run summary file name under the data directory.
const SummaryFile = "push_summary.json"

// Status is the terminal state of a delivery attempt.
type Status string

const (
	// StatusSuccess means the batch push succeeded, or at least one
	// metric was delivered by the individual fallback.
	StatusSuccess Status = "success"

	// StatusFailed means both the batch push and every individual push
	// failed.
	StatusFailed Status = "failed"
)

// Result describes the outcome of a push-with-fallback delivery.
type Result struct {
	Status    Status
	Attempted int
	Delivered int
}

// Summary is the audit record written after each push run.
type Summary struct {
	Timestamp    time.Time `json:"timestamp"`
	RunID        string    `json:"run_id"`
	TotalMetrics int       `json:"total_metrics"`
	GatewayURL   string    `json:"pushgateway_url"`
	JobName      string    `json:"job_name"`
	InstanceName string    `json:"instance_name"`
	Status       Status    `json:"status"`
}

// Write persists the summary as indented JSON, creating parent
// directories as needed.
func (s Summary) Write(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling push summary: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating summary directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing push summary: %w", err)
	}
	return nil
}
