package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/harunnryd/kiki/internal/action"
	kerrors "github.com/harunnryd/kiki/internal/errors"
)

const (
	defaultWeatherBaseURL = "https://wttr.in"
	defaultForecastDays   = 3
	maxForecastDays       = 3
)

type wttrNamedValue struct {
	Value string `json:"value"`
}

type wttrCurrentCondition struct {
	TempC           string           `json:"temp_C"`
	FeelsLikeC      string           `json:"FeelsLikeC"`
	WeatherDesc     []wttrNamedValue `json:"weatherDesc"`
	Humidity        string           `json:"humidity"`
	WindspeedKmph   string           `json:"windspeedKmph"`
	ObservationTime string           `json:"observation_time"`
}

type wttrNearestArea struct {
	AreaName []wttrNamedValue `json:"areaName"`
	Region   []wttrNamedValue `json:"region"`
	Country  []wttrNamedValue `json:"country"`
}

type wttrHourly struct {
	WeatherDesc []wttrNamedValue `json:"weatherDesc"`
}

type wttrWeatherDay struct {
	Date     string       `json:"date"`
	MaxTempC string       `json:"maxtempC"`
	MinTempC string       `json:"mintempC"`
	Hourly   []wttrHourly `json:"hourly"`
}

type wttrResponse struct {
	CurrentCondition []wttrCurrentCondition `json:"current_condition"`
	NearestArea      []wttrNearestArea      `json:"nearest_area"`
	Weather          []wttrWeatherDay       `json:"weather"`
}

func init() {
	action.RegisterBuiltin("getWeather", func(options action.BuiltinOptions) (action.Action, error) {
		baseURL := strings.TrimSpace(options.WeatherBaseURL)
		if baseURL == "" {
			baseURL = defaultWeatherBaseURL
		}
		return &WeatherAction{
			Client:  options.Client(options.WeatherTimeout),
			BaseURL: baseURL,
		}, nil
	})
}

// WeatherAction reports current conditions and a short forecast from wttr.in.
type WeatherAction struct {
	Client  *http.Client
	BaseURL string
}

func (a *WeatherAction) Name() string { return "getWeather" }

func (a *WeatherAction) Aliases() []string { return []string{"weather"} }

func (a *WeatherAction) Description() string {
	return "Get current weather and a short forecast for a city."
}

func (a *WeatherAction) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"city": map[string]interface{}{
				"type":        "string",
				"description": "City name, for example: Jakarta",
			},
			"location": map[string]interface{}{
				"type":        "string",
				"description": "Alternative to city, free text location",
			},
			"days": map[string]interface{}{
				"type":        "integer",
				"description": "Forecast days to include (1-3, default 3)",
			},
		},
	}
}

type weatherArgs struct {
	City     string `json:"city"`
	Location string `json:"location"`
	Days     int    `json:"days"`
}

func (a *WeatherAction) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var args weatherArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, kerrors.InvalidInput(err.Error())
	}

	location := strings.TrimSpace(args.City)
	if location == "" {
		location = strings.TrimSpace(args.Location)
	}
	if location == "" {
		return nil, kerrors.InvalidInput("city is required")
	}

	payload, err := a.fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	if len(payload.CurrentCondition) == 0 {
		return nil, fmt.Errorf("weather response missing current condition")
	}

	days := args.Days
	if days <= 0 {
		days = defaultForecastDays
	}
	if days > maxForecastDays {
		days = maxForecastDays
	}
	if days > len(payload.Weather) {
		days = len(payload.Weather)
	}

	forecast := make([]map[string]string, 0, days)
	for _, day := range payload.Weather[:days] {
		forecast = append(forecast, map[string]string{
			"date":       strings.TrimSpace(day.Date),
			"min_temp_c": strings.TrimSpace(day.MinTempC),
			"max_temp_c": strings.TrimSpace(day.MaxTempC),
			"condition":  firstHourlyDescription(day.Hourly),
		})
	}

	current := payload.CurrentCondition[0]
	return json.Marshal(map[string]interface{}{
		"location": resolveWeatherLocation(payload.NearestArea, location),
		"current": map[string]string{
			"temperature_c":        strings.TrimSpace(current.TempC),
			"feels_like_c":         strings.TrimSpace(current.FeelsLikeC),
			"condition":            firstNamedValue(current.WeatherDesc),
			"humidity_pct":         strings.TrimSpace(current.Humidity),
			"wind_kmph":            strings.TrimSpace(current.WindspeedKmph),
			"observation_time_utc": strings.TrimSpace(current.ObservationTime),
		},
		"forecast": forecast,
	})
}

func (a *WeatherAction) fetch(ctx context.Context, location string) (*wttrResponse, error) {
	endpoint, err := weatherEndpoint(a.BaseURL, location)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	client := a.Client
	if client == nil {
		client = &http.Client{Timeout: action.DefaultBuiltinHTTPTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, kerrors.NotFound(fmt.Sprintf("location %q", location))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("weather request failed: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	var payload wttrResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}
	return &payload, nil
}

func weatherEndpoint(baseURL string, location string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("invalid weather endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid weather endpoint")
	}

	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + "/" + url.PathEscape(location)
	q := parsed.Query()
	q.Set("format", "j1")
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}

func resolveWeatherLocation(nearest []wttrNearestArea, fallback string) string {
	if len(nearest) == 0 {
		return fallback
	}

	parts := make([]string, 0, 3)
	for _, values := range [][]wttrNamedValue{nearest[0].AreaName, nearest[0].Region, nearest[0].Country} {
		if v := firstNamedValue(values); v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, ", ")
}

func firstNamedValue(values []wttrNamedValue) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0].Value)
}

func firstHourlyDescription(hourly []wttrHourly) string {
	if len(hourly) == 0 {
		return ""
	}
	return firstNamedValue(hourly[0].WeatherDesc)
}
