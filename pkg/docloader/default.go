package docloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	logPrefix         = "docloader:default"
	acceptHeaderValue = "application/ld+json, application/activity+json, application/json"
)

// jsonLDContextLinkPattern extracts a Link header's URL when it advertises
// the JSON-LD context relation, e.g.
// `<https://example.com/context>; rel="http://www.w3.org/ns/json-ld#context"`.
var jsonLDContextLinkPattern = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="http://www\.w3\.org/ns/json-ld#context"`)

// DefaultLoader fetches documents over HTTP, deduplicating concurrent
// fetches of the same URL with singleflight so a burst of inbound
// requests referencing the same actor document costs one round trip.
type DefaultLoader struct {
	client *http.Client
	group  singleflight.Group
}

// NewDefaultLoader creates a DefaultLoader using client, or a new
// http.Client with a 10s timeout if client is nil.
func NewDefaultLoader(client *http.Client) *DefaultLoader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &DefaultLoader{client: client}
}

func (l *DefaultLoader) Load(ctx context.Context, url string) (*Document, error) {
	result, err, _ := l.group.Do(url, func() (interface{}, error) {
		return l.fetch(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Document), nil
}

func (l *DefaultLoader) fetch(ctx context.Context, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s - build request: %w", logPrefix, err)
	}
	req.Header.Set("Accept", acceptHeaderValue)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s - fetch %s: %w", logPrefix, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s - fetch %s: unexpected status %d", logPrefix, url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s - read %s: %w", logPrefix, url, err)
	}

	var parsed interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%s - parse %s: %w", logPrefix, url, err)
	}

	return &Document{
		Document:    parsed,
		DocumentURL: resp.Request.URL.String(),
		ContextURL:  contextURLFromLinkHeader(resp.Header.Get("Link")),
	}, nil
}

func contextURLFromLinkHeader(link string) string {
	if link == "" {
		return ""
	}
	match := jsonLDContextLinkPattern.FindStringSubmatch(link)
	if match == nil {
		return ""
	}
	return match[1]
}
