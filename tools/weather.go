package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mauriffe/mcpbot/errors"
)

// WeatherTool fetches current conditions from the Open-Meteo API, which
// needs no API key. Cities are resolved through the geocoding endpoint
// first and then queried concurrently.
type WeatherTool struct {
	client       *http.Client
	geocodingURL string
	forecastURL  string
}

// NewWeatherTool creates the weather tool with default endpoints.
func NewWeatherTool() *WeatherTool {
	return &WeatherTool{
		client:       &http.Client{Timeout: 15 * time.Second},
		geocodingURL: "https://geocoding-api.open-meteo.com/v1/search",
		forecastURL:  "https://api.open-meteo.com/v1/forecast",
	}
}

func (t *WeatherTool) Name() string { return "get_weather" }

func (t *WeatherTool) Description() string {
	return "Get current weather for one or multiple cities. Args: cities (array of city names)."
}

func (t *WeatherTool) Schema() *Schema {
	return ObjectSchema(map[string]*Schema{
		"cities": {
			Type:        "array",
			Description: "City names, e.g. [\"Paris\", \"London\", \"Tokyo\"]",
			Items:       &Schema{Type: "string"},
		},
	}, "cities")
}

func (t *WeatherTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	cities, err := cityList(args)
	if err != nil {
		return "", err
	}

	reports := make([]string, len(cities))
	var wg sync.WaitGroup
	for i, city := range cities {
		wg.Add(1)
		go func(i int, city string) {
			defer wg.Done()
			report, err := t.fetchCity(ctx, city)
			if err != nil {
				reports[i] = fmt.Sprintf("%s: error: %v", city, err)
				return
			}
			reports[i] = report
		}(i, city)
	}
	wg.Wait()

	return strings.Join(reports, "\n"), nil
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	Current struct {
		Temperature   float64 `json:"temperature_2m"`
		FeelsLike     float64 `json:"apparent_temperature"`
		Humidity      float64 `json:"relative_humidity_2m"`
		WindSpeed     float64 `json:"wind_speed_10m"`
		Precipitation float64 `json:"precipitation"`
	} `json:"current"`
}

func (t *WeatherTool) fetchCity(ctx context.Context, city string) (string, error) {
	var geo geocodingResponse
	geoURL := fmt.Sprintf("%s?name=%s&count=1", t.geocodingURL, url.QueryEscape(city))
	if err := t.getJSON(ctx, geoURL, &geo); err != nil {
		return "", err
	}
	if len(geo.Results) == 0 {
		return "", errors.New("city '%s' not found", city)
	}
	loc := geo.Results[0]

	var fc forecastResponse
	fcURL := fmt.Sprintf(
		"%s?latitude=%g&longitude=%g&current=temperature_2m,relative_humidity_2m,apparent_temperature,precipitation,wind_speed_10m",
		t.forecastURL, loc.Latitude, loc.Longitude)
	if err := t.getJSON(ctx, fcURL, &fc); err != nil {
		return "", err
	}

	cur := fc.Current
	return fmt.Sprintf("%s, %s: %g°C (feels like %g°C), humidity %g%%, wind %g km/h, precipitation %g mm",
		loc.Name, loc.Country, cur.Temperature, cur.FeelsLike, cur.Humidity, cur.WindSpeed, cur.Precipitation), nil
}

func (t *WeatherTool) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrapf(err, "building request")
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "requesting %s", rawURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decoding response from %s", rawURL)
	}
	return nil
}

func cityList(args map[string]interface{}) ([]string, error) {
	raw, ok := args["cities"]
	if !ok {
		return nil, errors.New("missing 'cities' argument")
	}
	items, ok := raw.([]interface{})
	if !ok {
		// Tolerate a single city passed as a plain string.
		if s, ok := raw.(string); ok && s != "" {
			return []string{s}, nil
		}
		return nil, errors.New("invalid 'cities' argument: %v", raw)
	}
	if len(items) == 0 {
		return nil, errors.New("'cities' must not be empty")
	}
	cities := make([]string, 0, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return nil, errors.New("invalid city name: %v", it)
		}
		cities = append(cities, strings.TrimSpace(s))
	}
	return cities, nil
}
