package metrics

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// Middleware counts bridge requests and response bytes. Requests are
// labeled by their route template so IDs do not explode cardinality.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, req)

		route := req.URL.Path
		if current := mux.CurrentRoute(req); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		r.httpRequests.WithLabelValues(req.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		if rw.bytesWritten > 0 {
			r.httpResponseBytes.WithLabelValues(req.Method, route).Add(float64(rw.bytesWritten))
		}
	})
}

type responseWriter struct {
	http.ResponseWriter
	bytesWritten int
	statusCode   int
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}
