package enever

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultBaseURL is the production Enever API endpoint.
const DefaultBaseURL = "https://enever.nl/api/"

const (
	endpointElectricityToday    = "stroomprijs_vandaag.php"
	endpointElectricityTomorrow = "stroomprijs_morgen.php"
	endpointGasToday            = "gasprijs_vandaag.php"

	// apiCodeDenied is the response code the API uses for a rejected token.
	apiCodeDenied = "2"
)

// API is the narrow fetch interface the update coordinators depend on.
type API interface {
	ElectricityToday(ctx context.Context) (FeedBatch, error)
	ElectricityTomorrow(ctx context.Context) (FeedBatch, error)
	GasToday(ctx context.Context) (FeedBatch, error)

	// ValidateToken performs a live check of the configured token. Note that
	// it counts towards the request quota.
	ValidateToken(ctx context.Context) error
}

// ClientConfig holds the settings for a Client.
type ClientConfig struct {
	// BaseURL defaults to DefaultBaseURL when empty.
	BaseURL string
	// Token is the API token, sent as a query parameter.
	Token string
	// Resolution is the electricity feed granularity in minutes ("60" or
	// "15"). "60" is the default and is not sent on the wire.
	Resolution string
	// Location is the timezone quote timestamps are interpreted in.
	Location *time.Location
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
}

// Client fetches and parses the Enever price feeds.
type Client struct {
	baseURL    string
	token      string
	resolution string
	location   *time.Location
	httpClient *http.Client
}

// NewClient constructs a Client from the given configuration.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		resolution: cfg.Resolution,
		location:   cfg.Location,
		httpClient: cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.location == nil {
		c.location = time.Local
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return c
}

// ElectricityToday returns the electricity prices for the current day.
func (c *Client) ElectricityToday(ctx context.Context) (FeedBatch, error) {
	return c.fetchParsed(ctx, endpointElectricityToday, true)
}

// ElectricityTomorrow returns the electricity prices for the next day.
func (c *Client) ElectricityTomorrow(ctx context.Context) (FeedBatch, error) {
	return c.fetchParsed(ctx, endpointElectricityTomorrow, true)
}

// GasToday returns the gas prices effective since 06:00 today.
func (c *Client) GasToday(ctx context.Context) (FeedBatch, error) {
	return c.fetchParsed(ctx, endpointGasToday, false)
}

// ValidateToken checks the token against the gas endpoint, which is the
// cheapest feed to request.
func (c *Client) ValidateToken(ctx context.Context) error {
	resp, err := c.fetchRaw(ctx, endpointGasToday, false)
	if err != nil {
		return err
	}
	if resp.Code == apiCodeDenied {
		return ErrInvalidToken
	}
	return nil
}

// apiResponse is the envelope every endpoint returns. Data is a list of
// quote objects on success, or an error detail otherwise.
type apiResponse struct {
	Code string          `json:"code"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) fetchRaw(ctx context.Context, endpoint string, electricity bool) (*apiResponse, error) {
	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint url: %w", err)
	}

	params := url.Values{}
	params.Set("token", c.token)
	if electricity && c.resolution != "" && c.resolution != "60" {
		params.Set("interval", c.resolution)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection failures are both retried the same way,
		// so a single classification suffices.
		return nil, fmt.Errorf("%w: %v", ErrCannotConnect, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var payload apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &payload, nil
}

func (c *Client) fetchParsed(ctx context.Context, endpoint string, electricity bool) (FeedBatch, error) {
	payload, err := c.fetchRaw(ctx, endpoint, electricity)
	if err != nil {
		return nil, err
	}

	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("%w: no data element", ErrMalformedResponse)
	}

	var items []map[string]json.RawMessage
	if err := json.Unmarshal(payload.Data, &items); err != nil {
		// The data element carries an error detail instead of a quote list.
		if payload.Code == apiCodeDenied {
			return nil, ErrInvalidToken
		}
		var detail string
		_ = json.Unmarshal(payload.Data, &detail)
		return nil, fmt.Errorf("%w: code %s: %s", ErrMalformedResponse, payload.Code, detail)
	}

	batch := make(FeedBatch, 0, len(items))
	for _, item := range items {
		quote, err := c.parseQuote(item)
		if err != nil {
			return nil, err
		}
		batch = append(batch, quote)
	}

	sort.Slice(batch, func(i, j int) bool {
		return batch[i].Time.Before(batch[j].Time)
	})
	return batch, nil
}

// quoteTimeLayout is the timestamp format used by the API.
const quoteTimeLayout = "2006-01-02 15:04:05"

func (c *Client) parseQuote(item map[string]json.RawMessage) (PriceQuote, error) {
	rawDatum, ok := item["datum"]
	if !ok {
		return PriceQuote{}, fmt.Errorf("%w: quote without datum", ErrMalformedResponse)
	}
	var datum string
	if err := json.Unmarshal(rawDatum, &datum); err != nil {
		return PriceQuote{}, fmt.Errorf("%w: invalid datum: %v", ErrMalformedResponse, err)
	}

	ts, err := time.ParseInLocation(quoteTimeLayout, datum, c.location)
	if err != nil {
		ts, err = time.Parse(time.RFC3339, datum)
		if err != nil {
			return PriceQuote{}, fmt.Errorf("%w: unparseable datum %q", ErrMalformedResponse, datum)
		}
		ts = ts.In(c.location)
	}

	prices := make(map[string]decimal.Decimal)
	for key, raw := range item {
		if !strings.HasPrefix(key, "prijs") {
			continue
		}
		code := strings.TrimPrefix(key, "prijs")
		if _, known := providerNames[code]; !known {
			continue
		}
		if string(raw) == "null" {
			continue
		}
		// Prices arrive as decimal strings; decimal also accepts bare
		// numbers, should the API ever change that.
		var price decimal.Decimal
		if err := json.Unmarshal(raw, &price); err != nil {
			return PriceQuote{}, fmt.Errorf("%w: invalid price %s for %q", ErrMalformedResponse, raw, key)
		}
		prices[code] = price
	}

	return PriceQuote{Time: ts, Prices: prices}, nil
}
