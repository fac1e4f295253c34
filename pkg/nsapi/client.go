// Package nsapi is a client for the NS (Dutch railways) XML web services.
package nsapi

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultStationsURL   = "https://webservices.ns.nl/ns-api-stations-v2"
	DefaultDeparturesURL = "https://webservices.ns.nl/ns-api-avt"
	DefaultAdviceURL     = "https://webservices.ns.nl/ns-api-treinplanner"
)

const maxResponseSize = 16 << 20

// ErrAPI is wrapped by errors reported in an NS error document
var ErrAPI = errors.New("ns api error")

type Config struct {
	StationsURL   string
	DeparturesURL string
	AdviceURL     string
	Username      string
	Password      string
	Timeout       time.Duration
	// RequestsPerSecond and Burst bound the request rate. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

func New(cfg Config) *Client {
	if cfg.StationsURL == "" {
		cfg.StationsURL = DefaultStationsURL
	}
	if cfg.DeparturesURL == "" {
		cfg.DeparturesURL = DefaultDeparturesURL
	}
	if cfg.AdviceURL == "" {
		cfg.AdviceURL = DefaultAdviceURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		cfg:     cfg,
		limiter: limiter,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Stations returns all stations known to NS
func (c *Client) Stations(ctx context.Context) ([]Station, error) {
	var resp stationsResponse
	if err := c.get(ctx, c.cfg.StationsURL, &resp); err != nil {
		return nil, fmt.Errorf("fetching stations: %w", err)
	}
	return resp.Stations, nil
}

// Departures returns the departure board of a station
func (c *Client) Departures(ctx context.Context, stationCode string) ([]Departure, error) {
	params := url.Values{}
	params.Set("station", stationCode)

	var resp departuresResponse
	if err := c.get(ctx, c.cfg.DeparturesURL+"?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("fetching departures at %s: %w", stationCode, err)
	}
	return resp.Departures, nil
}

// TravelAdvice plans a journey between two stations. When departure is false,
// at is the requested arrival time.
func (c *Client) TravelAdvice(ctx context.Context, fromCode, toCode string, at time.Time, departure bool) ([]TravelOption, error) {
	params := url.Values{}
	params.Set("fromStation", fromCode)
	params.Set("toStation", toCode)
	if !at.IsZero() {
		params.Set("dateTime", at.Format(TimeLayout))
	}
	params.Set("departure", strconv.FormatBool(departure))

	var resp travelAdviceResponse
	if err := c.get(ctx, c.cfg.AdviceURL+"?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("fetching travel advice %s-%s: %w", fromCode, toCode, err)
	}
	return resp.Options, nil
}

func (c *Client) get(ctx context.Context, reqURL string, dest any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	req.Header.Set("Accept", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	root, err := rootElement(body)
	if err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return fmt.Errorf("decoding response: %w", err)
	}
	if root == "error" {
		var apiErr errorResponse
		if err := xml.Unmarshal(body, &apiErr); err != nil {
			return fmt.Errorf("decoding error response: %w", err)
		}
		return fmt.Errorf("%w: %s", ErrAPI, apiErr.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := xml.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// rootElement returns the local name of the document element
func rootElement(body []byte) (string, error) {
	d := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := d.Token()
		if err != nil {
			return "", err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}
