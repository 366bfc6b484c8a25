// Package physionet downloads MIMIC-CXR DICOM files from PhysioNet with credentialed
// basic auth. Requests are strictly sequential and paced by a fixed delay.
package physionet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL     = "https://physionet.org/files/mimic-cxr/2.0.0/"
	DefaultTimeout     = 60 * time.Second
	DefaultDelay       = 2 * time.Second
	DefaultMaxAttempts = 3

	// consecutive failed requests before the breaker opens
	tripAfter = 5
)

// ErrNotFound is returned for a 404 response; it is not retried.
var ErrNotFound = errors.New("remote file not found")

// Config represents configuration for the PhysioNet client
type Config struct {
	BaseURL     string
	Username    string
	Password    string
	Timeout     time.Duration
	Delay       time.Duration
	MaxAttempts int
}

// Item is one file to fetch: the case id and its path relative to the dataset root.
type Item struct {
	DicomID string
	Path    string
}

// Status is the outcome of a single download.
type Status string

const (
	StatusDownloaded Status = "DOWNLOADED"
	StatusExisting   Status = "EXISTS"
	StatusFailed     Status = "FAILED"
)

// Failure records why an item could not be fetched.
type Failure struct {
	DicomID string
	Err     error
}

// Summary counts the outcomes of a batch.
type Summary struct {
	Total      int
	Downloaded int
	Existing   int
	Failed     int
	Failures   []Failure
	OutputDir  string
	Elapsed    time.Duration
}

// Client fetches files sequentially with bounded retries.
type Client struct {
	baseURL     string
	username    string
	password    string
	maxAttempts int
	httpClient  *http.Client
	rateLimit   *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	logger      *logrus.Logger
}

// NewClient creates a client. Zero config fields take the package defaults; a
// negative Delay disables pacing.
func NewClient(config Config, logger *logrus.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Delay == 0 {
		config.Delay = DefaultDelay
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}

	limit := rate.Inf
	if config.Delay > 0 {
		limit = rate.Every(config.Delay)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "PhysioNet",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker changed state")
		},
	})

	return &Client{
		baseURL:     strings.TrimSuffix(config.BaseURL, "/") + "/",
		username:    config.Username,
		password:    config.Password,
		maxAttempts: config.MaxAttempts,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(limit, 1),
		breaker:   breaker,
		logger:    logger,
	}
}

// URL builds the download URL for a dataset-relative path. Master sheet paths already
// start with "files/", so they are joined onto the dataset root.
func (c *Client) URL(path string) string {
	return c.baseURL + strings.TrimLeft(path, "/")
}

// OutputPath is where an item is stored.
func OutputPath(outputDir, dicomID string) string {
	return filepath.Join(outputDir, dicomID+".dcm")
}

// Exists reports whether a non-empty file is already stored for the id.
func Exists(outputDir, dicomID string) bool {
	info, err := os.Stat(OutputPath(outputDir, dicomID))
	return err == nil && !info.IsDir() && info.Size() > 0
}

// Download fetches one item unless it already exists.
func (c *Client) Download(ctx context.Context, item Item, outputDir string) (Status, error) {
	if Exists(outputDir, item.DicomID) {
		return StatusExisting, nil
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return StatusFailed, fmt.Errorf("failed to create output directory: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.rateLimit.Wait(ctx); err != nil {
			return StatusFailed, fmt.Errorf("rate limit wait failed: %w", err)
		}

		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.fetch(ctx, c.URL(item.Path), OutputPath(outputDir, item.DicomID))
		})
		if err == nil {
			return StatusDownloaded, nil
		}
		lastErr = err

		if errors.Is(err, ErrNotFound) || errors.Is(err, gobreaker.ErrOpenState) ||
			errors.Is(err, gobreaker.ErrTooManyRequests) || ctx.Err() != nil {
			break
		}
		c.logger.WithFields(logrus.Fields{
			"dicom_id": item.DicomID,
			"attempt":  attempt,
			"error":    err.Error(),
		}).Debug("Download attempt failed")
	}
	return StatusFailed, fmt.Errorf("download %s: %w", item.DicomID, lastErr)
}

// fetch writes the response body to a temporary file and renames it into place, so an
// interrupted transfer never looks like an existing download.
func (c *Client) fetch(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	req.Header.Set("User-Agent", "egd-cxr-toolkit/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write body: %w", err)
	}
	if n == 0 {
		return errors.New("empty response body")
	}
	return os.Rename(tmp.Name(), dst)
}

// DownloadAll fetches every item in order and reports per-item progress.
func (c *Client) DownloadAll(ctx context.Context, items []Item, outputDir string) (*Summary, error) {
	summary := &Summary{Total: len(items), OutputDir: outputDir}
	start := time.Now()

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			summary.Elapsed = time.Since(start)
			return summary, err
		}

		status, err := c.Download(ctx, item, outputDir)
		switch status {
		case StatusDownloaded:
			summary.Downloaded++
		case StatusExisting:
			summary.Existing++
		default:
			summary.Failed++
			summary.Failures = append(summary.Failures, Failure{DicomID: item.DicomID, Err: err})
		}

		done := i + 1
		elapsed := time.Since(start)
		eta := time.Duration(float64(elapsed) / float64(done) * float64(len(items)-done))
		entry := c.logger.WithFields(logrus.Fields{
			"index":    fmt.Sprintf("%d/%d", done, len(items)),
			"progress": fmt.Sprintf("%.1f%%", float64(done)/float64(len(items))*100),
			"status":   string(status),
			"dicom_id": item.DicomID,
			"eta":      eta.Round(time.Second).String(),
		})
		if err != nil {
			entry.WithField("error", err.Error()).Warn("Download failed")
		} else {
			entry.Info("Download progress")
		}
	}

	summary.Elapsed = time.Since(start)
	return summary, nil
}
