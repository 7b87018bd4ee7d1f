// Package apiclient reads the billing platform's resources on behalf of the
// signed-in operator.
package apiclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/BradenHooton/billdesk/internal/authclient"
)

// Resource names the shell can list.
const (
	Applications   = "applications"
	Plans          = "plans"
	Promotions     = "promotions"
	Wallets        = "wallets"
	PaymentMethods = "payment-methods"
	Features       = "features"
)

// Resources is the display order of the shell tabs.
var Resources = []string{Applications, Plans, Promotions, Wallets, PaymentMethods, Features}

const maxResponseBytes = 4 << 20

// Item is one resource record as the backend returns it.
type Item map[string]any

// Client lists resources through a BearerTransport.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// New creates a Client. httpClient should carry a BearerTransport.
func New(httpClient *http.Client, baseURL string, logger *slog.Logger) *Client {
	return &Client{httpClient: httpClient, baseURL: baseURL, logger: logger}
}

// List fetches every record of resource. Both bare arrays and {data: [...]}
// bodies are accepted.
func (c *Client) List(ctx context.Context, resource string) ([]Item, error) {
	if !slices.Contains(Resources, resource) {
		return nil, fmt.Errorf("unknown resource %q", resource)
	}
	op := "list " + resource

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+resource, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &authclient.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &authclient.NetworkError{Op: op, Err: err}
	}

	var items []Item
	if err := authclient.DecodeResponse(op, resp.StatusCode, data, &items); err != nil {
		c.logger.Warn("resource listing failed", slog.String("resource", resource), slog.Any("error", err))
		return nil, err
	}
	c.logger.Debug("resource listed", slog.String("resource", resource), slog.Int("count", len(items)))
	return items, nil
}
