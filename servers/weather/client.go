package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the OpenWeather API root.
const DefaultBaseURL = "http://api.openweathermap.org"

// ErrCityNotFound is returned when OpenWeather does not know the location.
var ErrCityNotFound = errors.New("city not found")

// Report is the subset of the current-weather payload the tool renders.
type Report struct {
	City        string  `json:"city"`
	Country     string  `json:"country"`
	Description string  `json:"description"`
	Temp        float64 `json:"temp"`
	FeelsLike   float64 `json:"feels_like"`
	Humidity    int     `json:"humidity"`
}

// Client is a minimal HTTP client for the OpenWeather current-weather API.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewClient returns a client. If httpClient is nil, a default with a 15s timeout is used.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), APIKey: apiKey, HTTP: httpClient}
}

type currentResponse struct {
	Cod     json.RawMessage `json:"cod"`
	Message string          `json:"message"`
	Name    string          `json:"name"`
	Sys     struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

// Current fetches the current weather for a location in metric units.
func (c *Client) Current(ctx context.Context, location string) (*Report, error) {
	if c.APIKey == "" {
		return nil, errors.New("openweather api key missing")
	}
	reqURL, err := c.currentURL(location)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrCityNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openweather api status %d", resp.StatusCode)
	}

	var body currentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode openweather response: %w", err)
	}
	if codString(body.Cod) == "404" {
		return nil, ErrCityNotFound
	}
	if len(body.Weather) == 0 {
		return nil, errors.New("openweather response has no weather conditions")
	}

	return &Report{
		City:        body.Name,
		Country:     body.Sys.Country,
		Description: body.Weather[0].Description,
		Temp:        body.Main.Temp,
		FeelsLike:   body.Main.FeelsLike,
		Humidity:    body.Main.Humidity,
	}, nil
}

func (c *Client) currentURL(location string) (string, error) {
	u, err := url.Parse(c.BaseURL + "/data/2.5/weather")
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("q", location)
	q.Set("appid", c.APIKey)
	q.Set("units", "metric")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// codString normalizes "cod", which OpenWeather sends as a number or a string.
func codString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
