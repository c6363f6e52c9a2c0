package client

import (
	"context"
	"fmt"
)

// WeatherClient retrieves rainfall and reference-evapotranspiration
// observations used to adjust weekly demand.
type WeatherClient struct {
	*Client
}

// NewWeatherClient creates a WeatherClient.
func NewWeatherClient(cfg Config) *WeatherClient {
	return &WeatherClient{Client: New("weather", cfg)}
}

// WeeklyWeather is the subset of the weather service's response the
// demand aggregator and adjustment accumulator consume.
type WeeklyWeather struct {
	Zone          string  `json:"zone"`
	Week          string  `json:"week"`
	RainfallMM    float64 `json:"rainfall_mm"`
	ReferenceETMM float64 `json:"reference_et_mm"`
}

// GetWeeklyWeather fetches the forecast/observed weather for a zone and
// ISO week (e.g. "2026-W05").
func (c *WeatherClient) GetWeeklyWeather(ctx context.Context, zone, week string) (*WeeklyWeather, error) {
	var out WeeklyWeather
	path := fmt.Sprintf("/zones/%s/weeks/%s/weather", zone, week)
	if err := c.doJSON(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
