package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/srinipal/filesearch/pkg/logger"
)

// Timeout bounds the request context by d. If the handler has written
// nothing when d expires the client gets 504; anything the handler writes
// afterwards is dropped.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			gw := newGatedWriter(w)
			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(gw, r.WithContext(ctx))
			}()

			select {
			case <-done:
				gw.finish()
				return
			case <-ctx.Done():
			}
			if untouched := gw.close(); untouched && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				logger.FromContext(r.Context()).Warn("request timed out",
					"method", r.Method, "path", r.URL.Path, "timeout", d)
				writeError(w, http.StatusGatewayTimeout, "request timed out")
			}
		})
	}
}

// gatedWriter forwards writes until it is closed. The handler fills its own
// header map, which is copied to the real writer on the first write.
type gatedWriter struct {
	w      http.ResponseWriter
	header http.Header

	mu      sync.Mutex
	started bool
	closed  bool
}

func newGatedWriter(w http.ResponseWriter) *gatedWriter {
	return &gatedWriter{w: w, header: w.Header().Clone()}
}

func (g *gatedWriter) Header() http.Header { return g.header }

func (g *gatedWriter) WriteHeader(code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.start()
	g.w.WriteHeader(code)
}

func (g *gatedWriter) Write(b []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, http.ErrHandlerTimeout
	}
	g.start()
	return g.w.Write(b)
}

// start copies the handler's headers out. mu must be held.
func (g *gatedWriter) start() {
	if g.started {
		return
	}
	g.started = true
	dst := g.w.Header()
	for k, v := range g.header {
		dst[k] = slices.Clone(v)
	}
}

// finish publishes the headers of a handler that returned without writing.
func (g *gatedWriter) finish() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.start()
	}
}

// close stops forwarding and reports whether the response is still untouched.
func (g *gatedWriter) close() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return !g.started
}
