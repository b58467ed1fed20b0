package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zgpcy/aws-billing-exporter/internal/exposition"
	"github.com/zgpcy/aws-billing-exporter/internal/logger"
	"github.com/zgpcy/aws-billing-exporter/internal/metric"
)

// Delivery timing constants
const (
	// PushTimeout bounds a single push request
	PushTimeout = 30 * time.Second

	// DeleteTimeout bounds a group delete request
	DeleteTimeout = 10 * time.Second

	// HealthTimeout bounds the gateway health probe
	HealthTimeout = 5 * time.Second

	// pacingEvery and pacingInterval throttle the individual-push
	// fallback so a large metric set cannot hammer the gateway
	pacingEvery    = 10
	pacingInterval = 100 * time.Millisecond
)

// Client delivers rendered metrics to a Prometheus Pushgateway.
type Client struct {
	baseURL    string
	job        string
	httpClient *http.Client
	log        *logger.Logger

	// sleep is swapped out in tests
	sleep func(time.Duration)
}

// New creates a Pushgateway client for the given base URL and job name.
// A trailing slash on the URL is tolerated and trimmed.
func New(gatewayURL, job string, log *logger.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(gatewayURL, "/"),
		job:        job,
		httpClient: &http.Client{},
		log:        log,
		sleep:      time.Sleep,
	}
}

// groupURL builds the job (and optional instance) grouping URL.
func (c *Client) groupURL(instance string) string {
	u := c.baseURL + "/metrics/job/" + url.PathEscape(c.job)
	if instance != "" {
		u += "/instance/" + url.PathEscape(instance)
	}
	return u
}

// Push renders the metrics and delivers them in one request. An empty
// metric set is a vacuous success and sends nothing.
func (c *Client) Push(ctx context.Context, metrics []metric.Metric, instance string) error {
	if len(metrics) == 0 {
		c.log.Info("No metrics to push")
		return nil
	}

	payload := exposition.Render(metrics)
	if err := c.post(ctx, c.groupURL(instance), payload); err != nil {
		return err
	}

	c.log.Info("Pushed metrics to Pushgateway",
		"metrics", len(metrics),
		"job", c.job,
		"instance", instance)
	return nil
}

// PushIndividually delivers metrics one request at a time, pausing
// briefly every tenth metric. It reports how many were delivered; the
// run counts as failed only when nothing at all got through.
func (c *Client) PushIndividually(ctx context.Context, metrics []metric.Metric, instance string) (int, error) {
	target := c.groupURL(instance)

	succeeded := 0
	for i, m := range metrics {
		if i > 0 && i%pacingEvery == 0 {
			c.sleep(pacingInterval)
		}

		payload := exposition.Render([]metric.Metric{m})
		if err := c.post(ctx, target, payload); err != nil {
			c.log.Warn("Failed to push metric individually",
				"index", i,
				"name", m.Name,
				"error", err)
			continue
		}
		succeeded++
	}

	if succeeded == 0 && len(metrics) > 0 {
		return 0, fmt.Errorf("all %d individual pushes failed", len(metrics))
	}

	c.log.Info("Pushed metrics individually",
		"succeeded", succeeded,
		"total", len(metrics))
	return succeeded, nil
}

// PushWithFallback attempts a batch push and, when that fails, retries
// every metric individually. The returned Result carries the terminal
// status and the delivered count for the run summary.
func (c *Client) PushWithFallback(ctx context.Context, metrics []metric.Metric, instance string) Result {
	if len(metrics) == 0 {
		c.log.Info("No metrics to push")
		return Result{Status: StatusSuccess}
	}

	err := c.Push(ctx, metrics, instance)
	if err == nil {
		return Result{Status: StatusSuccess, Attempted: len(metrics), Delivered: len(metrics)}
	}
	c.log.Warn("Batch push failed, falling back to individual pushes", "error", err)

	delivered, err := c.PushIndividually(ctx, metrics, instance)
	if err != nil {
		c.log.Error("Individual push fallback failed", "error", err)
		return Result{Status: StatusFailed, Attempted: len(metrics), Delivered: delivered}
	}
	return Result{Status: StatusSuccess, Attempted: len(metrics), Delivered: delivered}
}

// Delete removes the metric group for the job (and optional instance)
// from the gateway. The Pushgateway acknowledges deletes with 202.
func (c *Client) Delete(ctx context.Context, instance string) error {
	ctx, cancel := context.WithTimeout(ctx, DeleteTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.groupURL(instance), nil)
	if err != nil {
		return fmt.Errorf("building delete request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deleting metric group: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("pushgateway delete returned status %d: %s", resp.StatusCode, readExcerpt(resp.Body))
	}

	c.log.Info("Deleted metric group from Pushgateway", "job", c.job, "instance", instance)
	return nil
}

// HealthCheck probes the gateway liveness endpoint. Failures are
// advisory; callers still attempt delivery.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/-/healthy", nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pushgateway health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushgateway health returned status %d", resp.StatusCode)
	}
	return nil
}

// post sends one exposition payload and maps anything but 200 to an error.
func (c *Client) post(ctx context.Context, target, payload string) error {
	ctx, cancel := context.WithTimeout(ctx, PushTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building push request: %w", err)
	}
	req.Header.Set("Content-Type", exposition.ContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pushing to pushgateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushgateway returned status %d: %s", resp.StatusCode, readExcerpt(resp.Body))
	}
	return nil
}

// readExcerpt reads a bounded slice of an error response body for logs.
func readExcerpt(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}
