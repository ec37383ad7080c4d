package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// httpDirCredentials is the decrypted payload for an HTTP directory
// source: a base URL serving an index document plus an optional bearer
// token.
type httpDirCredentials struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
}

// httpDirEntry mirrors one row of the remote index document.
type httpDirEntry struct {
	Path      string `json:"path"`
	Name      string `json:"name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// HTTPDir ingests from a remote directory that exposes a JSON index at
// /index.json and serves file content at the listed paths.
type HTTPDir struct {
	client  *http.Client
	limiter *rate.Limiter
}

func NewHTTPDir(fetchRPS float64) *HTTPDir {
	if fetchRPS <= 0 {
		fetchRPS = 5
	}
	return &HTTPDir{
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(fetchRPS), 1),
	}
}

func (h *HTTPDir) ListFiles(ctx context.Context, credentials []byte, limit int) ([]domain.FileDescriptor, error) {
	creds, err := parseHTTPDirCredentials(credentials)
	if err != nil {
		return nil, err
	}

	body, err := h.get(ctx, creds, creds.BaseURL+"/index.json")
	if err != nil {
		return nil, domain.WrapError(domain.ErrEnumeration, "list http directory", err)
	}

	var entries []httpDirEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, domain.WrapError(domain.ErrEnumeration, "decode http directory index", err)
	}

	files := make([]domain.FileDescriptor, 0, len(entries))
	for _, entry := range entries {
		if entry.Path == "" {
			continue
		}
		name := entry.Name
		if name == "" {
			name = entry.Path[strings.LastIndex(entry.Path, "/")+1:]
		}
		files = append(files, domain.FileDescriptor{
			RemoteID:   entry.Path,
			Name:       name,
			MimeType:   entry.MimeType,
			SizeBytes:  entry.SizeBytes,
			SourceType: domain.SourceTypeHTTPDir,
		})
		if limit > 0 && len(files) == limit {
			break
		}
	}
	return files, nil
}

func (h *HTTPDir) FetchContent(ctx context.Context, credentials []byte, file domain.FileDescriptor) ([]byte, error) {
	creds, err := parseHTTPDirCredentials(credentials)
	if err != nil {
		return nil, err
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	fileURL, err := url.JoinPath(creds.BaseURL, file.RemoteID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build file url", err)
	}
	body, err := h.get(ctx, creds, fileURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", file.RemoteID, err)
	}
	return body, nil
}

func (h *HTTPDir) get(ctx context.Context, creds httpDirCredentials, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if creds.Token != "" {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "http get", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "http get",
			fmt.Errorf("%s: %s", rawURL, resp.Status))
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.WrapError(domain.ErrTemporary, "http get",
			fmt.Errorf("%s: %s", rawURL, resp.Status))
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http get %s: %s", rawURL, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func parseHTTPDirCredentials(credentials []byte) (httpDirCredentials, error) {
	var creds httpDirCredentials
	if err := json.Unmarshal(credentials, &creds); err != nil {
		return creds, domain.WrapError(domain.ErrInvalidInput, "parse httpdir credentials", err)
	}
	creds.BaseURL = strings.TrimRight(creds.BaseURL, "/")
	if creds.BaseURL == "" {
		return creds, domain.WrapError(domain.ErrInvalidInput, "parse httpdir credentials",
			fmt.Errorf("base_url is required"))
	}
	return creds, nil
}
