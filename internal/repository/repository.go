// Package repository fetches the authoritative case text for a case id.
//
// The browser-driven fetcher that produces transcript files is an
// external collaborator; this package only covers its interface
// boundary. FileSource re-reads the file the external fetcher wrote,
// HTTPSource fetches the case page directly over HTTP.
package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"casewatch/internal/apperr"
	"casewatch/internal/models"
	"casewatch/internal/storage"
)

// Source fetches the case text for a case id.
type Source interface {
	FetchCaseText(ctx context.Context, caseID string) (string, error)
}

// FileSource reads the transcript file from the monitored directory.
type FileSource struct {
	store storage.Provider
}

// NewFileSource creates a Source backed by the monitored directory.
func NewFileSource(store storage.Provider) *FileSource {
	return &FileSource{store: store}
}

// FetchCaseText returns the contents of <caseID>.txt.
func (s *FileSource) FetchCaseText(_ context.Context, caseID string) (string, error) {
	data, err := s.store.Read(caseID + ".txt")
	if err != nil {
		return "", apperr.Stage(models.StageFetch, err)
	}
	return string(data), nil
}

// HTTPSource fetches the case page from a base URL.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a Source that GETs case pages from baseURL.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// FetchCaseText GETs the case page and returns its body. Network
// failures are transient fetch errors; a non-2xx status is not.
func (s *HTTPSource) FetchCaseText(ctx context.Context, caseID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, BuildCaseURL(s.baseURL, caseID), nil)
	if err != nil {
		return "", apperr.Stage(models.StageFetch, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", apperr.Stage(models.StageFetch, err)
		}
		return "", apperr.Transient(models.StageFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apperr.Stage(models.StageFetch, fmt.Errorf("repository: status %d for case %s", resp.StatusCode, caseID))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", apperr.Transient(models.StageFetch, err)
	}
	return string(body), nil
}

// BuildCaseURL joins a base URL and a case id. A base ending in "=" or
// containing a query string gets the id appended verbatim; otherwise
// the id becomes the final path segment.
func BuildCaseURL(baseURL, caseID string) string {
	if strings.Contains(baseURL, "?") || strings.HasSuffix(baseURL, "=") {
		return baseURL + caseID
	}
	base := baseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + caseID
	}
	ref, err := url.Parse(caseID)
	if err != nil {
		return base + caseID
	}
	return u.ResolveReference(ref).String()
}
