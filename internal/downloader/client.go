// Package downloader fetches device code files from the remote code
// repository, used by the setup flow to offer codes not yet present locally.
package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"easyir/internal/ircodes"

	"go.uber.org/zap"
)

// DefaultRepoURL is the public code repository this project ships codes from.
const DefaultRepoURL = "https://raw.githubusercontent.com/hamdi30986-ctrl/easyir-device-codes/master/"

// IndexEntry is one row of a device-kind index.json.
type IndexEntry struct {
	Code            flexString `json:"code"`
	Manufacturer    string     `json:"manufacturer"`
	SupportedModels []string   `json:"supported_models"`
}

// flexString tolerates index files that store codes as bare numbers.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("code must be a string or number")
	}
	*f = flexString(n.String())
	return nil
}

// Client talks to the raw-file repository over HTTP.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *zap.Logger
}

// NewClient creates a downloader client for the given repository base URL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		logger:  logger.Named("downloader"),
	}
}

// FetchIndex downloads the index for a device kind. The repository serves
// raw files with a generic content type, so the body is decoded as text
// regardless of headers.
func (c *Client) FetchIndex(ctx context.Context, kind string) ([]IndexEntry, error) {
	url := c.baseURL + "codes/" + kind + "/index.json"
	c.logger.Debug("Fetching code index", zap.String("url", url))

	body, err := c.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch index for %s: %w", kind, err)
	}

	var entries []IndexEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("index for %s is not valid JSON: %w", kind, err)
	}

	return entries, nil
}

// DownloadCode downloads one code file and saves it under the local codes
// directory, creating the per-kind directory as needed.
func (c *Client) DownloadCode(ctx context.Context, kind, code, codesDir string) error {
	url := c.baseURL + "codes/" + kind + "/" + code + ".json"
	c.logger.Info("Downloading device code",
		zap.String("kind", kind),
		zap.String("code", code))

	body, err := c.get(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to download code %s: %w", code, err)
	}

	path := ircodes.TablePath(codesDir, kind, code)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create codes directory: %w", err)
	}

	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("failed to save code file: %w", err)
	}

	return nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
