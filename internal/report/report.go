// Package report holds the read-only view of citizen reports that the
// triage core consumes. The core never writes report rows.
package report

import (
	"strings"
	"time"
)

// Category is one of the fixed report categories.
type Category string

const (
	CategoryPothole   Category = "pothole"
	CategoryLighting  Category = "lighting"
	CategoryWaterLeak Category = "water-leak"
	CategoryGarbage   Category = "garbage/dumping"
	CategoryTraffic   Category = "traffic"
	CategoryOther     Category = "other"
)

// Categories is the closed set in display order.
var Categories = []Category{
	CategoryPothole,
	CategoryLighting,
	CategoryWaterLeak,
	CategoryGarbage,
	CategoryTraffic,
	CategoryOther,
}

// ParseCategory matches s against the closed set, ignoring case and
// surrounding whitespace. A few common spellings are accepted.
func ParseCategory(s string) (Category, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if norm == string(c) {
			return c, true
		}
	}
	switch norm {
	case "potholes", "road damage":
		return CategoryPothole, true
	case "street lighting", "streetlight", "light":
		return CategoryLighting, true
	case "water leak", "water_leak", "leak":
		return CategoryWaterLeak, true
	case "garbage", "dumping", "trash", "garbage dumping":
		return CategoryGarbage, true
	}
	return "", false
}

// Report is the subset of a report row the triage core reads.
type Report struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category,omitempty"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	CreatedAt   time.Time `json:"created_at"`

	// Located is false when the report has no coordinates; Lat and Lng are
	// then zero and must not be read as a position.
	Located bool `json:"located"`
}

// Point is the projection used by cluster detection.
type Point struct {
	ID        string    `json:"id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// Point projects r for cluster detection.
func (r *Report) Point() Point {
	return Point{
		ID:        r.ID,
		Lat:       r.Lat,
		Lng:       r.Lng,
		Category:  r.Category,
		CreatedAt: r.CreatedAt,
	}
}
