package triageapi

import (
	"math"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/citycare/internal/cluster"
)

func (a *API) handleClusters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := cluster.Query{Category: q.Get("category")}

	var err error
	if query.ProximityMeters, err = positiveParam(q.Get("proximity_m")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid proximity_m")
		return
	}
	if query.WindowHours, err = positiveParam(q.Get("window_h")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid window_h")
		return
	}

	clusters, err := a.clusters.Detect(r.Context(), query)
	if err != nil {
		a.logger.Error(r.Context(), err, "cluster detection failed", "category", query.Category)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if clusters == nil {
		clusters = []cluster.Cluster{}
	}

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("citycare.cluster.category", query.Category),
		attribute.Int("citycare.cluster.count", len(clusters)),
	)
	writeJSON(w, http.StatusOK, clusters)
}

// positiveParam parses an optional positive number. Empty means zero, which
// the detector replaces with its default.
func positiveParam(v string) (float64, error) {
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if f <= 0 || math.IsNaN(f) || f > 1e9 {
		return 0, strconv.ErrRange
	}
	return f, nil
}
