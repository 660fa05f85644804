package metrics

import (
	"net/http"
	"path"
	"strconv"
	"strings"
)

// statusRecorder remembers the status the delivery handler chose.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// AssetKind labels a delivery path as manifest, segment or other.
func AssetKind(urlPath string) string {
	switch strings.ToLower(path.Ext(urlPath)) {
	case ".m3u8":
		return "manifest"
	case ".ts", ".m4s", ".aac":
		return "segment"
	default:
		return "other"
	}
}

// statusClass folds a status code into 2xx, 3xx, 4xx or 5xx.
func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}

// DeliveryMiddleware counts delivery responses by asset kind and status
// class. Player polling of the manifest and segments dominates the counts.
func DeliveryMiddleware(m *Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.ObserveDelivery(AssetKind(r.URL.Path), rec.code)
		})
	}
}
