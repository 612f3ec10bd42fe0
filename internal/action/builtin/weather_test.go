package builtin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	kerrors "github.com/harunnryd/kiki/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeatherActionExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "j1", r.URL.Query().Get("format"))
		assert.Equal(t, "/San Francisco", r.URL.Path)
		assert.Contains(t, r.Header.Get("User-Agent"), "Kiki")
		_, _ = io.WriteString(w, weatherFixtureJSON())
	}))
	defer server.Close()

	a := &WeatherAction{Client: server.Client(), BaseURL: server.URL}

	raw, err := a.Execute(context.Background(), json.RawMessage(`{"city":"San Francisco"}`))
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &resp))

	assert.Equal(t, "San Francisco, California, United States", resp["location"])
	current, ok := resp["current"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "12", current["temperature_c"])
	assert.Equal(t, "Partly cloudy", current["condition"])

	forecast, ok := resp["forecast"].([]interface{})
	require.True(t, ok)
	assert.Len(t, forecast, 3)
}

func TestWeatherActionLimitsForecastDaysAndAcceptsLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Tokyo", r.URL.Path)
		_, _ = io.WriteString(w, weatherFixtureJSON())
	}))
	defer server.Close()

	a := &WeatherAction{Client: server.Client(), BaseURL: server.URL}

	raw, err := a.Execute(context.Background(), json.RawMessage(`{"location":"Tokyo","days":1}`))
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &resp))
	forecast := resp["forecast"].([]interface{})
	require.Len(t, forecast, 1)
	assert.Equal(t, "2026-02-27", forecast[0].(map[string]interface{})["date"])
}

func TestWeatherActionRequiresCity(t *testing.T) {
	a := &WeatherAction{}
	_, err := a.Execute(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, kerrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "city is required")
}

func TestWeatherActionUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown location", http.StatusNotFound)
	}))
	defer server.Close()

	a := &WeatherAction{Client: server.Client(), BaseURL: server.URL}
	_, err := a.Execute(context.Background(), json.RawMessage(`{"city":"Atlantis"}`))
	assert.ErrorIs(t, err, kerrors.ErrNotFound)
}

func TestWeatherActionMissingCurrentCondition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"current_condition":[]}`)
	}))
	defer server.Close()

	a := &WeatherAction{Client: server.Client(), BaseURL: server.URL}
	_, err := a.Execute(context.Background(), json.RawMessage(`{"city":"Nowhere"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing current condition")
}

func weatherFixtureJSON() string {
	return `{
  "current_condition": [
    {
      "temp_C": "12",
      "FeelsLikeC": "10",
      "weatherDesc": [{"value":"Partly cloudy"}],
      "humidity": "81",
      "windspeedKmph": "15",
      "observation_time": "04:30 PM"
    }
  ],
  "nearest_area": [
    {
      "areaName": [{"value":"San Francisco"}],
      "region": [{"value":"California"}],
      "country": [{"value":"United States"}]
    }
  ],
  "weather": [
    {"date": "2026-02-27", "maxtempC": "14", "mintempC": "9", "hourly": [{"weatherDesc": [{"value":"Cloudy"}]}]},
    {"date": "2026-02-28", "maxtempC": "15", "mintempC": "10", "hourly": [{"weatherDesc": [{"value":"Sunny"}]}]},
    {"date": "2026-03-01", "maxtempC": "16", "mintempC": "11", "hourly": [{"weatherDesc": [{"value":"Clear"}]}]}
  ]
}`
}
