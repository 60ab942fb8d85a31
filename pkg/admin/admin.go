package admin

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/amargherio/linkerd2-proxy/pkg/prom"
)

type handler struct {
	metrics     prom.FmtMetrics
	promHandler http.Handler
	enablePprof bool
}

// NewServer returns an initialized `http.Server`, configured to listen
// on an address. The /metrics endpoint renders the given exposition
// tree followed by the process-wide prometheus registry.
func NewServer(addr string, metrics prom.FmtMetrics, enablePprof bool) *http.Server {
	if metrics == nil {
		metrics = prom.NoMetrics{}
	}
	h := &handler{
		metrics: metrics,
		// The registry's output is appended to the hand-rendered tree on
		// the same response, so it must not be compressed independently.
		promHandler: promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{DisableCompression: true},
		),
		enablePprof: enablePprof,
	}

	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 15 * time.Second,
	}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	debugPathPrefix := "/debug/pprof/"
	if h.enablePprof && strings.HasPrefix(req.URL.Path, debugPathPrefix) {
		switch req.URL.Path {
		case fmt.Sprintf("%scmdline", debugPathPrefix):
			pprof.Cmdline(w, req)
		case fmt.Sprintf("%sprofile", debugPathPrefix):
			pprof.Profile(w, req)
		case fmt.Sprintf("%strace", debugPathPrefix):
			pprof.Trace(w, req)
		case fmt.Sprintf("%ssymbol", debugPathPrefix):
			pprof.Symbol(w, req)
		default:
			pprof.Index(w, req)
		}
		return
	}
	switch req.URL.Path {
	case "/metrics":
		h.serveMetrics(w, req)
	case "/ping":
		h.servePing(w)
	case "/ready":
		h.serveReady(w)
	default:
		http.NotFound(w, req)
	}
}

func (h *handler) serveMetrics(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if err := h.metrics.FmtMetrics(w); err != nil {
		log.Errorf("Failed to render metrics: %s", err)
		return
	}
	h.promHandler.ServeHTTP(w, req)
}

func (h *handler) servePing(w http.ResponseWriter) {
	w.Write([]byte("pong\n"))
}

func (h *handler) serveReady(w http.ResponseWriter) {
	w.Write([]byte("ok\n"))
}
