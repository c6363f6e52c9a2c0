package client

import (
	"context"
	"fmt"
)

// AgronomyClient retrieves crop-stage and plot-demand data from the
// ROS/agronomy service that owns crop calendars and plot registration.
type AgronomyClient struct {
	*Client
}

// NewAgronomyClient creates an AgronomyClient.
func NewAgronomyClient(cfg Config) *AgronomyClient {
	return &AgronomyClient{Client: New("agronomy", cfg)}
}

// PlotDemand is a single plot's raw, un-weather-adjusted weekly water
// requirement as computed by the agronomy service's crop model.
type PlotDemand struct {
	PlotID        string  `json:"plot_id"`
	ZoneID        string  `json:"zone_id"`
	AreaHa        float64 `json:"area_ha"`
	CropStage     string  `json:"crop_stage"`
	BaseVolumeM3  float64 `json:"base_volume_m3"`
	Priority      int     `json:"priority"`
	LatitudeDeg   float64 `json:"latitude_deg"`
	LongitudeDeg  float64 `json:"longitude_deg"`
	DeliveryNode  string  `json:"delivery_node"`
}

// GetZoneDemands fetches the plot-level demands for every registered
// plot in a zone for the given ISO week.
func (c *AgronomyClient) GetZoneDemands(ctx context.Context, zoneID, week string) ([]PlotDemand, error) {
	var out []PlotDemand
	path := fmt.Sprintf("/zones/%s/weeks/%s/demands", zoneID, week)
	if err := c.doJSON(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
