package renderer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/pithecene-io/framesync/types"
)

// Aspect ratio limits for map views. Degenerate extents (a single point, a
// horizontal line) fall back to defaultGeoAspect.
const (
	minGeoAspect     = 0.25
	maxGeoAspect     = 2.0
	defaultGeoAspect = 0.5
	maxMercatorLat   = 85.05112878
)

// Geo renders GeoJSON as a map fitted to the container width.
type Geo struct {
	*frame
	bounds *geom.Bounds
}

// GeoBuilder builds Geo renderers.
type GeoBuilder struct{}

// BuildOrUpdate implements Builder.
func (GeoBuilder) BuildOrUpdate(req types.RenderRequest, existing Renderer) (Renderer, error) {
	bounds, err := geoBounds([]byte(req.Data))
	if err != nil {
		return nil, err
	}

	r, ok := existing.(*Geo)
	if !ok {
		r = &Geo{frame: newFrame("geo")}
	}
	r.bounds = bounds
	aspect := mercatorAspect(bounds)
	r.setLayout(func(width int) (float64, error) {
		return float64(width) * aspect, nil
	})
	r.SetWidth(req.Width)
	return r, nil
}

// Bounds returns the extent of the loaded features.
func (r *Geo) Bounds() *geom.Bounds {
	return r.bounds
}

type geoProbe struct {
	Type string `json:"type"`
}

func geoBounds(data []byte) (*geom.Bounds, error) {
	var probe geoProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("geo: parse: %w", err)
	}

	bounds := geom.NewBounds(geom.XY)
	extended := false
	var extend func(g geom.T)
	extend = func(g geom.T) {
		if g == nil {
			return
		}
		// Collections have no flat coordinates of their own.
		if gc, ok := g.(*geom.GeometryCollection); ok {
			for _, child := range gc.Geoms() {
				extend(child)
			}
			return
		}
		if len(g.FlatCoords()) == 0 {
			return
		}
		bounds.Extend(g)
		extended = true
	}

	switch probe.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("geo: feature collection: %w", err)
		}
		for _, f := range fc.Features {
			extend(f.Geometry)
		}
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("geo: feature: %w", err)
		}
		extend(f.Geometry)
	case "":
		return nil, errors.New("geo: missing GeoJSON type")
	default:
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("geo: geometry: %w", err)
		}
		extend(g)
	}

	if !extended {
		return nil, errors.New("geo: no coordinates")
	}
	return bounds, nil
}

// mercatorAspect returns height/width of bounds under Web Mercator.
func mercatorAspect(b *geom.Bounds) float64 {
	dx := b.Max(0) - b.Min(0)
	dy := mercatorY(b.Max(1)) - mercatorY(b.Min(1))
	if dx <= 0 || dy <= 0 {
		return defaultGeoAspect
	}
	// Longitude degrees to the same radian scale as mercatorY.
	aspect := dy / (dx * math.Pi / 180)
	return math.Min(maxGeoAspect, math.Max(minGeoAspect, aspect))
}

func mercatorY(lat float64) float64 {
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	rad := lat * math.Pi / 180
	return math.Log(math.Tan(math.Pi/4 + rad/2))
}
