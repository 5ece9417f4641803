package system

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/OpenPrinting/goipp"

	"ippd/internal/eventbus"
	"ippd/internal/ipp"
	"ippd/internal/logger"
)

// Supervisor owns the listening HTTP(S) server and the scheduler/cleanup
// background loops, grounded on the teacher's main.go runInteractive: one
// mux, one TLS listener, a context cancel tied to signal handling, and a
// handful of background tickers started alongside it.
type Supervisor struct {
	sys    *System
	engine *ipp.Engine
	log    *logger.Logger
	srv    *http.Server

	stopTickers chan struct{}
	runCtx      context.Context
}

// NewSupervisor wires an HTTP server that accepts IPP requests (RFC 8010
// "application/ipp" framing over HTTP POST to the system's resource paths);
// Run starts the server and the scheduler/cleanup loops.
func NewSupervisor(sys *System, log *logger.Logger, addr string) *Supervisor {
	sup := &Supervisor{
		sys:         sys,
		engine:      ipp.NewEngine(sys),
		log:         log,
		stopTickers: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ipp/", sup.handleIPP)
	mux.HandleFunc("/", sup.handleIPP)
	mux.HandleFunc("/health", sup.handleHealth)
	mux.HandleFunc("/notifications", sup.handleNotifications)

	sup.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return sup
}

func (sup *Supervisor) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// handleIPP decodes an IPP request, dispatches it through the engine, and
// writes the framed response, per spec.md §4.2's HTTP transport binding:
// request body is [IPP header][attribute groups][optional document data],
// response body is [IPP header][attribute groups] with no trailing data.
func (sup *Supervisor) handleIPP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "IPP requires POST", http.StatusMethodNotAllowed)
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && ct != "application/ipp" {
		http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
		return
	}

	var req goipp.Message
	if err := req.Decode(r.Body); err != nil {
		http.Error(w, "malformed IPP request", http.StatusBadRequest)
		return
	}

	resp := sup.engine.Dispatch(&req, io.Reader(r.Body))
	sup.sys.Tick()

	w.Header().Set("Content-Type", "application/ipp")
	if err := resp.Encode(w); err != nil {
		sup.log.Warn("failed to encode IPP response", "error", err.Error())
	}
}

// handleNotifications upgrades to a websocket and streams the system's
// event bus to an admin/monitoring client, the push-delivery half of
// spec.md §3's Subscription object (IPP's own Get-Notifications operation
// only covers pull). Connections are dropped once Run's ctx is canceled.
func (sup *Supervisor) handleNotifications(w http.ResponseWriter, r *http.Request) {
	var done <-chan struct{}
	if sup.runCtx != nil {
		done = sup.runCtx.Done()
	}
	if err := eventbus.ServeWS(sup.sys.bus, w, r, done); err != nil {
		sup.log.Debug("notifications connection closed", "remote", r.RemoteAddr, "error", err.Error())
	}
}

// Run starts the HTTP(S) listener and background tickers, blocking until
// ctx is canceled, at which point it drains active jobs for up to the
// system's shutdown grace period before returning, per spec.md §4.4's
// "Supervisor" description ("graceful shutdown with ~60s grace").
func (sup *Supervisor) Run(ctx context.Context, certFile, keyFile string) error {
	sup.runCtx = ctx
	go sup.tickLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			err = sup.srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = sup.srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	close(sup.stopTickers)
	sup.drainActiveJobs()
	sup.sys.shutdownDNSSD()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	return sup.srv.Shutdown(shutdownCtx)
}

// drainActiveJobs blocks until every printer's active-job count reaches
// zero or the system's shutdown deadline elapses, per spec.md §4.4's
// graceful-shutdown description and §8 scenario 5 ("Shutdown grace").
func (sup *Supervisor) drainActiveJobs() {
	deadline := sup.sys.shutdownDeadlineOrDefault()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		active := sup.sys.activeJobCount()
		if active == 0 {
			return
		}
		if !time.Now().Before(deadline) {
			sup.log.Warn("shutdown grace period elapsed with active jobs remaining", "active", active)
			return
		}
		<-ticker.C
	}
}

// tickLoop drives the per-printer scheduler and cleanup passes, per
// spec.md §4.3's "runs ... periodically" and §4.3's cleanup policy; the
// teacher's agent runs its own set of ~1s/periodic background goroutines
// off runInteractive in exactly this shape.
func (sup *Supervisor) tickLoop(ctx context.Context) {
	scheduler := time.NewTicker(time.Second)
	cleanup := time.NewTicker(time.Minute)
	dnssd := time.NewTicker(30 * time.Second)
	defer scheduler.Stop()
	defer cleanup.Stop()
	defer dnssd.Stop()

	sup.sys.reconcileDNSSD()
	for {
		select {
		case <-scheduler.C:
			sup.sys.Tick()
		case <-cleanup.C:
			sup.sys.Clean()
		case <-dnssd.C:
			sup.sys.reconcileDNSSD()
		case <-sup.stopTickers:
			return
		case <-ctx.Done():
			return
		}
	}
}
