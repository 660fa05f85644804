package logger

import (
	"log/slog"
	"net/http"
	"time"
)

// deliveryWriter records what the delivery handler sent back.
type deliveryWriter struct {
	http.ResponseWriter
	code  int
	bytes int64
}

func (w *deliveryWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *deliveryWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// DeliveryLogger logs each playlist and segment response. Players poll the
// manifest every segment, so successes go to debug and only failed
// responses reach warn.
func DeliveryLogger(log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			rec := &deliveryWriter{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rec, r)

			level := slog.LevelDebug
			if rec.code >= http.StatusBadRequest {
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("asset", r.URL.Path),
				slog.Int("code", rec.code),
				slog.Int64("bytes", rec.bytes),
				slog.Duration("elapsed", time.Since(began)),
			}
			if rng := r.Header.Get("Range"); rng != "" {
				attrs = append(attrs, slog.String("range", rng))
			}
			log.LogAttrs(r.Context(), level, "delivery", attrs...)
		})
	}
}
