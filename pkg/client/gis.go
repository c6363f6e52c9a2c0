package client

import (
	"context"
)

// GISClient retrieves canal and node geometry that the hydraulic network
// topology is built from but does not itself own.
type GISClient struct {
	*Client
}

// NewGISClient creates a GISClient.
func NewGISClient(cfg Config) *GISClient {
	return &GISClient{Client: New("gis", cfg)}
}

// ReachGeometry describes a canal reach's surveyed cross-section and
// length, as maintained by the GIS service.
type ReachGeometry struct {
	ReachID        string  `json:"reach_id"`
	LengthM        float64 `json:"length_m"`
	BottomWidthM   float64 `json:"bottom_width_m"`
	SideSlope      float64 `json:"side_slope"`
	ManningN       float64 `json:"manning_n"`
	BedSlope       float64 `json:"bed_slope"`
	UpstreamNode   string  `json:"upstream_node"`
	DownstreamNode string  `json:"downstream_node"`
}

// GetNetworkGeometry fetches every reach geometry record for a zone.
func (c *GISClient) GetNetworkGeometry(ctx context.Context, zoneID string) ([]ReachGeometry, error) {
	var out []ReachGeometry
	if err := c.doJSON(ctx, "GET", "/zones/"+zoneID+"/reaches", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
