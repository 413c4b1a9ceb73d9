// Package cluster finds reports that look like part of a spatial-temporal
// group. It never calls a model and never mutates report state.
package cluster

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/citycare/internal/report"
)

const (
	DefaultProximityMeters = 500
	DefaultWindowHours     = 48

	// MaxWindowHours caps the window at ten years, well inside time.Duration.
	MaxWindowHours = 24 * 365 * 10

	earthRadiusMeters = 6371000.0
	metersPerDegree   = 111320.0
)

// Cluster is a report with at least two linked neighbours. Clusters are not
// disjoint: every member of a group appears as its own seed.
type Cluster struct {
	SeedReportID string    `json:"seed_report_id"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	Category     string    `json:"category"`
	Size         int       `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

// Query selects the reports to compare. Zero values take the defaults.
type Query struct {
	Category        string
	ProximityMeters float64
	WindowHours     float64
}

func (q Query) withDefaults() Query {
	if !(q.ProximityMeters > 0) {
		q.ProximityMeters = DefaultProximityMeters
	}
	if !(q.WindowHours > 0) {
		q.WindowHours = DefaultWindowHours
	}
	q.WindowHours = min(q.WindowHours, MaxWindowHours)
	q.Category = strings.TrimSpace(q.Category)
	return q
}

func (q Query) window() time.Duration {
	return time.Duration(q.WindowHours * float64(time.Hour))
}

// PointSource reads report projections created at or after since. An empty
// category means all categories.
type PointSource interface {
	RecentPoints(ctx context.Context, since time.Time, category string) ([]report.Point, error)
}

// Hooks receive detection observations. Nil funcs are skipped.
type Hooks struct {
	OnDetect func(clusters int, duration float64)
}

// Detector runs cluster detection over a PointSource.
type Detector struct {
	source   PointSource
	hooks    Hooks
	logger   log.Logger
	now      func() time.Time
	defaults Query
}

// NewDetector creates a Detector reading from src.
func NewDetector(src PointSource, hooks Hooks, logger log.Logger) *Detector {
	if logger == nil {
		logger = log.Nop()
	}
	return &Detector{source: src, hooks: hooks, logger: logger, now: time.Now}
}

// WithDefaults sets the proximity and window used when a Query leaves them
// zero. Non-positive values keep the package defaults.
func (d *Detector) WithDefaults(proximityMeters, windowHours float64) *Detector {
	d.defaults = Query{ProximityMeters: proximityMeters, WindowHours: windowHours}
	return d
}

// Detect loads the recent window and returns clusters, largest first.
func (d *Detector) Detect(ctx context.Context, q Query) ([]Cluster, error) {
	start := time.Now()
	if q.ProximityMeters <= 0 {
		q.ProximityMeters = d.defaults.ProximityMeters
	}
	if q.WindowHours <= 0 {
		q.WindowHours = d.defaults.WindowHours
	}
	q = q.withDefaults()
	now := d.now()

	points, err := d.source.RecentPoints(ctx, now.Add(-q.window()), q.Category)
	if err != nil {
		return nil, fmt.Errorf("load recent reports: %w", err)
	}

	out := Detect(points, q, now)

	if d.hooks.OnDetect != nil {
		d.hooks.OnDetect(len(out), time.Since(start).Seconds())
	}
	d.logger.Info(ctx, "cluster detection complete",
		"category", q.Category,
		"proximity_m", q.ProximityMeters,
		"window_h", q.WindowHours,
		"reports", len(points),
		"clusters", len(out),
	)
	return out, nil
}

// Detect links every pair of same-category reports created inside the window
// ending at now, whose creation times differ by at most the window and whose
// great-circle distance is within ProximityMeters. A degree bounding box
// derived from the radius discards far pairs before the distance check.
func Detect(points []report.Point, q Query, now time.Time) []Cluster {
	q = q.withDefaults()
	window := q.window()
	since := now.Add(-window)

	recent := make([]report.Point, 0, len(points))
	for _, p := range points {
		if p.CreatedAt.Before(since) {
			continue
		}
		if q.Category != "" && !strings.EqualFold(strings.TrimSpace(p.Category), q.Category) {
			continue
		}
		recent = append(recent, p)
	}

	latTol := q.ProximityMeters / metersPerDegree
	sizes := make([]int, len(recent))
	for i := range recent {
		a := recent[i]
		for j := i + 1; j < len(recent); j++ {
			b := recent[j]
			if !strings.EqualFold(strings.TrimSpace(a.Category), strings.TrimSpace(b.Category)) {
				continue
			}
			if math.Abs(a.Lat-b.Lat) > latTol {
				continue
			}
			if lngDelta(a.Lng, b.Lng) > lngTolerance(q.ProximityMeters, a.Lat, b.Lat) {
				continue
			}
			if absDuration(a.CreatedAt.Sub(b.CreatedAt)) > window {
				continue
			}
			if Haversine(a.Lat, a.Lng, b.Lat, b.Lng) > q.ProximityMeters {
				continue
			}
			sizes[i]++
			sizes[j]++
		}
	}

	out := make([]Cluster, 0)
	for i, p := range recent {
		if sizes[i] < 2 {
			continue
		}
		out = append(out, Cluster{
			SeedReportID: p.ID,
			Lat:          p.Lat,
			Lng:          p.Lng,
			Category:     p.Category,
			Size:         sizes[i],
			CreatedAt:    p.CreatedAt,
		})
	}
	slices.SortFunc(out, func(a, b Cluster) int {
		if c := cmp.Compare(b.Size, a.Size); c != 0 {
			return c
		}
		return cmp.Compare(a.SeedReportID, b.SeedReportID)
	})
	return out
}

// Haversine returns the great-circle distance in meters.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	rlat1 := lat1 * math.Pi / 180
	rlat2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(rlat1)*math.Cos(rlat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// lngTolerance widens with latitude; the pair's higher latitude gives the
// looser box so the prefilter never drops a pair inside the radius.
func lngTolerance(meters, lat1, lat2 float64) float64 {
	lat := math.Max(math.Abs(lat1), math.Abs(lat2))
	c := math.Cos(lat * math.Pi / 180)
	if c < 0.01 {
		return 360
	}
	return meters / (metersPerDegree * c)
}

func lngDelta(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
