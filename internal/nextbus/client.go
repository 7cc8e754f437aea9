package nextbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRequest marks a request that could not be built from its inputs.
var ErrInvalidRequest = errors.New("invalid request")

// TransportError wraps connectivity failures, timeouts and non-200 replies.
type TransportError struct {
	Command Command
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Command, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client is an HTTP client for the publicXMLFeed API.
type Client struct {
	baseURL string
	agency  string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a feed client. requestTimeout bounds each HTTP exchange.
func NewClient(baseURL, agency string, requestTimeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		agency:  agency,
		client: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
	}
}

// VehicleLocations fetches vehicle positions reported since the given watermark (0 = all).
func (c *Client) VehicleLocations(ctx context.Context, routeTag string, since int64) (*VehicleLocations, error) {
	u, err := c.buildURL(CommandVehicleLocations, routeTag, "", &since)
	if err != nil {
		return nil, err
	}
	var result *VehicleLocations
	err = c.fetch(ctx, CommandVehicleLocations, u, func(r io.Reader) (err error) {
		result, err = DecodeVehicleLocations(r)
		return err
	})
	return result, err
}

// RouteConfig fetches stops, directions and paths for a route.
func (c *Client) RouteConfig(ctx context.Context, routeTag string) (*RouteConfig, error) {
	u, err := c.buildURL(CommandRouteConfig, routeTag, "", nil)
	if err != nil {
		return nil, err
	}
	var result *RouteConfig
	err = c.fetch(ctx, CommandRouteConfig, u, func(r io.Reader) (err error) {
		result, err = DecodeRouteConfig(r)
		return err
	})
	return result, err
}

// Predictions fetches arrival predictions for one stop of a route.
func (c *Client) Predictions(ctx context.Context, routeTag, stopTag string) ([]PredictionGroup, error) {
	if stopTag == "" {
		return nil, fmt.Errorf("predictions for route %s: empty stop tag: %w", routeTag, ErrInvalidRequest)
	}
	u, err := c.buildURL(CommandPredictions, routeTag, stopTag, nil)
	if err != nil {
		return nil, err
	}
	var result []PredictionGroup
	err = c.fetch(ctx, CommandPredictions, u, func(r io.Reader) (err error) {
		result, err = DecodePredictions(r)
		return err
	})
	return result, err
}

// Messages fetches service advisories for a route.
func (c *Client) Messages(ctx context.Context, routeTag string) ([]ServiceMessage, error) {
	u, err := c.buildURL(CommandMessages, routeTag, "", nil)
	if err != nil {
		return nil, err
	}
	var result []ServiceMessage
	err = c.fetch(ctx, CommandMessages, u, func(r io.Reader) (err error) {
		result, err = DecodeMessages(r)
		return err
	})
	return result, err
}

// buildURL keeps the agency's parameter order: command, a, r, s, t.
func (c *Client) buildURL(cmd Command, routeTag, stopTag string, since *int64) (string, error) {
	if routeTag == "" {
		return "", fmt.Errorf("%s: empty route tag: %w", cmd, ErrInvalidRequest)
	}
	base, err := url.Parse(c.baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("%s: base url %q: %w", cmd, c.baseURL, ErrInvalidRequest)
	}

	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString("?command=")
	b.WriteString(string(cmd))
	b.WriteString("&a=")
	b.WriteString(url.QueryEscape(c.agency))
	b.WriteString("&r=")
	b.WriteString(url.QueryEscape(routeTag))
	if stopTag != "" {
		b.WriteString("&s=")
		b.WriteString(url.QueryEscape(stopTag))
	}
	if since != nil {
		b.WriteString("&t=")
		b.WriteString(strconv.FormatInt(*since, 10))
	}
	return b.String(), nil
}

func (c *Client) fetch(ctx context.Context, cmd Command, u string, parse func(io.Reader) error) error {
	start := time.Now()
	resp, err := c.doGet(ctx, u)
	if err != nil {
		return &TransportError{Command: cmd, Err: err}
	}
	defer resp.Body.Close()

	body := &trackingReader{r: resp.Body}
	if err := parse(body); err != nil {
		// A body cut off mid-read surfaces from the tokenizer too.
		if body.err != nil {
			return &TransportError{Command: cmd, Err: body.err}
		}
		return err
	}
	c.logger.Debug("feed fetched", "command", string(cmd), "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func (c *Client) doGet(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}
	return resp, nil
}

// trackingReader remembers the first non-EOF read error.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}
