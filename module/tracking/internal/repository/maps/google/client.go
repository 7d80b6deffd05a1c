package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nandanugg/courier-tracking/module/tracking/domain"
)

const (
	DefaultRoadsURL      = "https://roads.googleapis.com"
	DefaultDirectionsURL = "https://maps.googleapis.com"
)

// Client talks to the Google Roads and Directions web services. Deadlines are
// taken from the request context.
type Client struct {
	roadsURL      string
	directionsURL string
	interpolate   bool
	http          *http.Client
}

type Options struct {
	RoadsURL      string
	DirectionsURL string
	Interpolate   bool
	HTTPClient    *http.Client
}

func NewClient(opts Options) *Client {
	c := &Client{
		roadsURL:      opts.RoadsURL,
		directionsURL: opts.DirectionsURL,
		interpolate:   opts.Interpolate,
		http:          opts.HTTPClient,
	}
	if c.roadsURL == "" {
		c.roadsURL = DefaultRoadsURL
	}
	if c.directionsURL == "" {
		c.directionsURL = DefaultDirectionsURL
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var wrapped struct {
			Error apiError `json:"error"`
		}
		if json.Unmarshal(body, &wrapped) == nil && wrapped.Error.Message != "" {
			return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, wrapped.Error.Message)
		}
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func formatLatLng(c domain.Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lng, 'f', 6, 64)
}
