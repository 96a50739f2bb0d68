package panelapp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Jeffail/gabs"
	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultBaseURL points at the PanelApp Australia API.
const DefaultBaseURL = "https://panelapp-aus.org/api/v1"

// MendeliomePanelID identifies the PanelApp Australia Mendeliome panel.
const MendeliomePanelID = 137

// pageFetchers bounds how many gene pages download concurrently.
const pageFetchers = 8

// Client talks to a PanelApp-compatible REST API with retry on transient
// failures.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a client for the given API root. An empty baseURL
// selects PanelApp Australia.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  zap.NewNop(),
	}
}

// SetLogger replaces the client's logger.
func (c *Client) SetLogger(logger *zap.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// getJSON fetches url and parses the response body. Transient failures are
// retried with exponential backoff; 4xx responses are permanent.
func (c *Client) getJSON(ctx context.Context, url string) (*gabs.Container, error) {
	var body []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("GET %s: %s", url, resp.Status)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}

		body, err = io.ReadAll(resp.Body)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}

	return gabs.ParseJSON(body)
}

// PanelVersion fetches the panel's current version string.
func (c *Client) PanelVersion(ctx context.Context, panelID int) (string, error) {
	info, err := c.getJSON(ctx, fmt.Sprintf("%s/panels/%d/", c.baseURL, panelID))
	if err != nil {
		return "", err
	}
	version, ok := info.Path("version").Data().(string)
	if !ok {
		return "", fmt.Errorf("panel %d: no version in response", panelID)
	}
	return version, nil
}

// FetchGenes downloads every gene page of the panel, each page exactly
// once. The first page's total count fixes how many pages exist; the
// remaining page URLs are derived from its "next" link and fetched
// concurrently, then reassembled in page order. When the count is
// missing or inconsistent the client falls back to walking the "next"
// links one page at a time.
func (c *Client) FetchGenes(ctx context.Context, panelID int) ([]any, error) {
	first, err := c.getJSON(ctx, fmt.Sprintf("%s/panels/%d/genes/", c.baseURL, panelID))
	if err != nil {
		return nil, fmt.Errorf("fetch gene page 1: %w", err)
	}
	firstResults, err := first.Path("results").Children()
	if err != nil {
		return nil, fmt.Errorf("gene page 1: no results array")
	}

	genes := make([]any, 0, len(firstResults))
	for _, gene := range firstResults {
		genes = append(genes, gene.Data())
	}
	next, _ := first.Path("next").Data().(string)
	if next == "" {
		return genes, nil
	}

	pageURLs, err := remainingPageURLs(first, next, len(firstResults))
	if err != nil {
		c.logger.Debug("page count unusable, walking next links", zap.Error(err))
		return c.walkGenes(ctx, next, genes)
	}

	c.logger.Info("fetching panel genes",
		zap.Int("panel_id", panelID),
		zap.Int("pages", len(pageURLs)+1))

	pages := make([][]*gabs.Container, len(pageURLs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pageFetchers)
	for i, pageURL := range pageURLs {
		g.Go(func() error {
			page, err := c.getJSON(gctx, pageURL)
			if err != nil {
				return fmt.Errorf("fetch gene page %d: %w", i+2, err)
			}
			results, err := page.Path("results").Children()
			if err != nil {
				return fmt.Errorf("gene page %d: no results array", i+2)
			}
			pages[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, results := range pages {
		for _, gene := range results {
			genes = append(genes, gene.Data())
		}
	}
	return genes, nil
}

// walkGenes follows the paginated "next" links from nextURL, appending
// each page's results to genes.
func (c *Client) walkGenes(ctx context.Context, nextURL string, genes []any) ([]any, error) {
	for nextURL != "" {
		page, err := c.getJSON(ctx, nextURL)
		if err != nil {
			return nil, fmt.Errorf("walk gene pages: %w", err)
		}
		results, err := page.Path("results").Children()
		if err != nil {
			return nil, fmt.Errorf("gene page: no results array")
		}
		for _, gene := range results {
			genes = append(genes, gene.Data())
		}
		nextURL, _ = page.Path("next").Data().(string)
	}
	return genes, nil
}

// remainingPageURLs derives the URLs of pages 2..N from the first page's
// total count, its size, and the shape of its "next" link.
func remainingPageURLs(first *gabs.Container, next string, pageSize int) ([]string, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("empty first page with a next link")
	}
	count, ok := first.Path("count").Data().(float64)
	if !ok {
		return nil, fmt.Errorf("no count in response")
	}
	total := (int(count) + pageSize - 1) / pageSize
	if total < 2 {
		return nil, fmt.Errorf("count %d inconsistent with a next link", int(count))
	}

	u, err := url.Parse(next)
	if err != nil {
		return nil, fmt.Errorf("parse next link: %w", err)
	}
	q := u.Query()
	urls := make([]string, 0, total-1)
	for page := 2; page <= total; page++ {
		q.Set("page", strconv.Itoa(page))
		u.RawQuery = q.Encode()
		urls = append(urls, u.String())
	}
	return urls, nil
}
