// Package notion wraps the slice of the Notion API the review board needs:
// throttled database queries and page writes.
package notion

import (
	"context"
	"net/http"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// notionRPS matches the integration request budget Notion documents.
const notionRPS = 3

// Client is the set of Notion operations used by this application.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// ClientOption adjusts the client at construction time.
type ClientOption func(*apiClient)

// WithRateLimit replaces the default request budget of 3 req/s. Zero or
// negative rps removes throttling.
func WithRateLimit(rps float64) ClientOption {
	return func(c *apiClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithHTTPClient overrides the transport, mainly so tests can point the
// client at a local server.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *apiClient) { c.httpClient = hc }
}

// apiClient implements Client over *notionapi.Client.
type apiClient struct {
	inner      *notionapi.Client
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewClient builds a throttled Notion client for the given integration
// token.
func NewClient(token string, opts ...ClientOption) Client {
	c := &apiClient{limiter: rate.NewLimiter(notionRPS, 1)}
	for _, opt := range opts {
		opt(c)
	}

	var inner []notionapi.ClientOption
	if c.httpClient != nil {
		inner = append(inner, notionapi.WithHTTPClient(c.httpClient))
	}
	c.inner = notionapi.NewClient(notionapi.Token(token), inner...)
	return c
}

// send throttles one request and wraps its failure as "notion: <op>".
func send[T any](ctx context.Context, c *apiClient, op string, fn func() (T, error)) (T, error) {
	var zero T
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, eris.Wrap(err, "notion: throttle")
		}
	}
	out, err := fn()
	if err != nil {
		return zero, eris.Wrap(err, "notion: "+op)
	}
	return out, nil
}

func (c *apiClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return send(ctx, c, "query database "+dbID, func() (*notionapi.DatabaseQueryResponse, error) {
		return c.inner.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	})
}

func (c *apiClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	return send(ctx, c, "create page", func() (*notionapi.Page, error) {
		return c.inner.Page.Create(ctx, req)
	})
}

func (c *apiClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	return send(ctx, c, "update page "+pageID, func() (*notionapi.Page, error) {
		return c.inner.Page.Update(ctx, notionapi.PageID(pageID), req)
	})
}
