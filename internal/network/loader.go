package network

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/munbon/irrigation-control/pkg/apperror"
)

// topologyDoc mirrors the on-disk declarative network topology file
// described in spec.md §6.1.
type topologyDoc struct {
	Source string         `koanf:"source"`
	Nodes  []nodeDoc      `koanf:"nodes"`
	Edges  []edgeDoc      `koanf:"edges"`
	Zones  []zoneDoc      `koanf:"zones"`
	Plots  []plotDoc      `koanf:"plots"`
}

type nodeDoc struct {
	ID               string  `koanf:"id"`
	InvertElevationM float64 `koanf:"invert_elevation_m"`
	SurfaceAreaM2    float64 `koanf:"surface_area_m2"`
	IsSource         bool    `koanf:"is_source"`
	FixedLevelM      float64 `koanf:"fixed_level_m"`
	Class            string  `koanf:"class"` // "main_canal" or "" (default)
}

type edgeDoc struct {
	ID             string  `koanf:"id"`
	Parent         string  `koanf:"parent"`
	Child          string  `koanf:"child"`
	Type           string  `koanf:"type"`
	WidthM         float64 `koanf:"width_m"`
	MaxOpeningM    float64 `koanf:"max_opening_m"`
	MinOpeningM    float64 `koanf:"min_opening_m"`
	SillElevationM float64 `koanf:"sill_elevation_m"`
	MaxFlowM3S     float64 `koanf:"max_flow_m3s"`
	K1             float64 `koanf:"k1"`
	K2             float64 `koanf:"k2"`
	CalMinHsGo     float64 `koanf:"cal_min_hs_go"`
	CalMaxHsGo     float64 `koanf:"cal_max_hs_go"`
	SCADAID        string  `koanf:"scada_id"`

	LengthM      float64 `koanf:"length_m"`
	BottomWidthM float64 `koanf:"bottom_width_m"`
	SideSlope    float64 `koanf:"side_slope"`
	ManningN     float64 `koanf:"manning_n"`
	BedSlope     float64 `koanf:"bed_slope"`
}

type zoneDoc struct {
	ID             string   `koanf:"id"`
	DeliveryGates  []string `koanf:"delivery_gates"`
	CentroidLatDeg float64  `koanf:"centroid_lat_deg"`
	CentroidLonDeg float64  `koanf:"centroid_lon_deg"`
}

type plotDoc struct {
	ID           string  `koanf:"id"`
	ZoneID       string  `koanf:"zone_id"`
	AreaRai      float64 `koanf:"area_rai"`
	DeliveryGate string  `koanf:"delivery_gate"`
}

const (
	defaultMainCanalSurfaceAreaM2 = 5000
	defaultSurfaceAreaM2          = 1000
)

// LoadFromFile reads and validates a declarative network topology file.
func LoadFromFile(path string) (*Network, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeTopologyBroken, fmt.Sprintf("failed to read topology file %s", path))
	}

	var doc topologyDoc
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeTopologyBroken, "failed to parse topology document")
	}

	return buildFromDoc(&doc)
}

func buildFromDoc(doc *topologyDoc) (*Network, error) {
	nodes := make(map[string]*Node, len(doc.Nodes))
	for _, nd := range doc.Nodes {
		area := nd.SurfaceAreaM2
		if area == 0 {
			if nd.Class == "main_canal" {
				area = defaultMainCanalSurfaceAreaM2
			} else {
				area = defaultSurfaceAreaM2
			}
		}
		nodes[nd.ID] = &Node{
			ID:               nd.ID,
			InvertElevationM: nd.InvertElevationM,
			SurfaceAreaM2:    area,
			IsSource:         nd.IsSource,
			FixedLevelM:      nd.FixedLevelM,
		}
	}

	gates := make(map[string]*Gate, len(doc.Edges))
	reaches := make(map[string]*Reach, len(doc.Edges))
	for _, ed := range doc.Edges {
		sill := ed.SillElevationM
		if sill == 0 {
			if parent, ok := nodes[ed.Parent]; ok {
				sill = parent.InvertElevationM
			}
		}
		gates[ed.ID] = &Gate{
			ID:             ed.ID,
			UpstreamNode:   ed.Parent,
			DownstreamNode: ed.Child,
			Type:           GateType(ed.Type),
			WidthM:         ed.WidthM,
			MaxOpeningM:    ed.MaxOpeningM,
			MinOpeningM:    ed.MinOpeningM,
			SillElevationM: sill,
			MaxFlowM3S:     ed.MaxFlowM3S,
			K1:             ed.K1,
			K2:             ed.K2,
			CalMinHsGo:     ed.CalMinHsGo,
			CalMaxHsGo:     ed.CalMaxHsGo,
			SCADAID:        ed.SCADAID,
		}
		reaches[ed.ID] = &Reach{
			GateID:       ed.ID,
			LengthM:      ed.LengthM,
			BottomWidthM: ed.BottomWidthM,
			SideSlope:    ed.SideSlope,
			ManningN:     ed.ManningN,
			BedSlope:     ed.BedSlope,
		}
	}

	zones := make(map[string]*Zone, len(doc.Zones))
	for _, zd := range doc.Zones {
		zones[zd.ID] = &Zone{
			ID:             zd.ID,
			DeliveryGates:  zd.DeliveryGates,
			CentroidLatDeg: zd.CentroidLatDeg,
			CentroidLonDeg: zd.CentroidLonDeg,
		}
	}

	plots := make(map[string]*Plot, len(doc.Plots))
	for _, pd := range doc.Plots {
		plots[pd.ID] = &Plot{
			ID:           pd.ID,
			ZoneID:       pd.ZoneID,
			AreaRai:      pd.AreaRai,
			DeliveryGate: pd.DeliveryGate,
		}
	}

	return Build(doc.Source, nodes, gates, reaches, zones, plots)
}
