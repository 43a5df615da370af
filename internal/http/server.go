// Package http serves the dashboard: the full page, htmx partials, the
// chart image, a JSON summary and the statement upload endpoint.
package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"finbot/internal/cache"
	"finbot/internal/core"
	"finbot/internal/log"
	"finbot/internal/middleware/ratelimit"
	"finbot/internal/middleware/security"
	"finbot/internal/middleware/trace"
	"finbot/internal/upload"
	"finbot/internal/view"
	appweb "finbot/web"
)

// HistoryReader returns the most recent accepted upload, or nil.
type HistoryReader interface {
	LastUpload(ctx context.Context) (*core.UploadRecord, error)
}

// Pinger reports whether a dependency is usable. Used by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the server's collaborators. View and Trigger are required.
type Options struct {
	Addr    string
	View    *view.View
	Trigger *upload.Trigger
	History HistoryReader
	Charts  *cache.ChartCache
	Limiter *ratelimit.Limiter
	Ready   []Pinger
	Logger  *log.Logger
}

type Server struct {
	http.Server
	templates *template.Template
	view      *view.View
	trigger   *upload.Trigger
	history   HistoryReader
	charts    *cache.ChartCache
	limiter   *ratelimit.Limiter
	ready     []Pinger
	logger    *log.Logger
	tracer    *trace.Middleware
	detector  *security.Detector
}

const (
	partialTimeout = 20 * time.Second
	maxUploadBytes = 32 << 20
)

// NewServer parses the embedded templates and mounts every route.
func NewServer(opts Options) (*Server, error) {
	if opts.View == nil || opts.Trigger == nil {
		return nil, errors.New("http server needs a view and an upload trigger")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	charts := opts.Charts
	if charts == nil {
		charts = cache.NewChartCache(16, 10*time.Minute)
	}

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		templates: t,
		view:      opts.View,
		trigger:   opts.Trigger,
		history:   opts.History,
		charts:    charts,
		limiter:   opts.Limiter,
		ready:     opts.Ready,
		logger:    logger.WithComponent(log.ComponentHTTP),
		tracer:    trace.NewMiddleware(),
		detector:  security.NewDetector(logger),
	}

	mux := http.NewServeMux()
	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(
		http.StripPrefix("/static/", http.FileServer(http.FS(sub)))))

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /ui/stats", s.handleStats)
	mux.HandleFunc("GET /ui/categories", s.handleCategories)
	mux.HandleFunc("GET /ui/movements", s.handleMovements)
	mux.HandleFunc("GET /ui/chart.png", s.handleChart)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)

	var uploadHandler http.Handler = http.HandlerFunc(s.handleUpload)
	if opts.Limiter != nil {
		uploadHandler = opts.Limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
			ErrorResponse(http.StatusTooManyRequests, "Demasiadas cargas seguidas. Espera un momento.").Write(w)
		})(uploadHandler)
	}
	mux.Handle("POST /upload", uploadHandler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.chain(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
		// uploads wait for the extraction backend
		WriteTimeout:   3 * time.Minute,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
	return s, nil
}

// chain wraps h so that tracing runs first and security headers last.
func (s *Server) chain(h http.Handler, logger *log.Logger) http.Handler {
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.detector.Middleware(h)
	h = log.AccessLog(s.detector.ExtractClientIP)(h)
	h = log.Middleware(logger, trace.RequestID)(h)
	return s.tracer.Middleware(h)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, p := range s.ready {
		if err := p.Ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// current returns the view state, loading it first if nothing was fetched
// yet.
func (s *Server) current(ctx context.Context) view.State {
	st := s.view.State()
	if st.Phase != view.Idle {
		return st
	}
	ctx, cancel := context.WithTimeout(ctx, partialTimeout)
	defer cancel()
	return s.view.Reload(ctx, st.Reload)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			log.FieldError, err.Error(), "template", name)
		http.Error(w, "Error al generar la página.", http.StatusInternalServerError)
	}
}

func (s *Server) lastUpload(ctx context.Context) *core.UploadRecord {
	if s.history == nil {
		return nil
	}
	rec, err := s.history.LastUpload(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read upload history", log.FieldError, err.Error())
		return nil
	}
	return rec
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	st := s.current(r.Context())
	s.render(w, r, "dashboard_page", pageData{
		dashboardData: newDashboardData(st, s.lastUpload(r.Context())),
		Accept:        strings.Join(s.trigger.Accepted(), ","),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.current(r.Context())
	s.render(w, r, "stats", newDashboardData(st, s.lastUpload(r.Context())))
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "categories", newDashboardData(s.current(r.Context()), nil))
}

// handleMovements renders the table. A categoria parameter different from
// the active filter switches the view filter first and tells the page to
// refresh the other partials.
func (s *Server) handleMovements(w http.ResponseWriter, r *http.Request) {
	st := s.current(r.Context())
	if filter, ok := ParseFilter(r.URL.Query()); ok && filter != st.Filter {
		ctx, cancel := context.WithTimeout(r.Context(), partialTimeout)
		st = s.view.SetFilter(ctx, filter)
		cancel()
		log.FromContext(r.Context()).InfoContext(r.Context(), "Filter changed",
			log.FieldOperation, log.OpFilter, log.FieldFilter, filter, log.FieldGeneration, st.Generation)
		NewHTMXResponse().TriggerViewChanged().ApplyHeaders(w)
	}
	s.render(w, r, "movements", newDashboardData(st, nil))
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	st := s.current(r.Context())
	if st.Phase != view.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	size := ParseChartSize(r.URL.Query())
	key := cache.ChartKey(st.Committed, size.Width, size.Height)
	img, hit, err := s.charts.GetOrRender(key, func() ([]byte, error) {
		return renderChart(st.Summary, size)
	})
	switch {
	case errors.Is(err, errNoChartData):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Chart rendering failed",
			log.FieldOperation, log.OpRender, log.FieldError, err.Error(), log.FieldGeneration, st.Committed)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if hit {
		w.Header().Set("X-Cache", "hit")
	}
	_, _ = w.Write(img)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSummaryResponse(s.current(r.Context())))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContext(ctx).WithComponent(log.ComponentUpload)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	st, password, closeFile, err := ParseStatementForm(r)
	if err != nil {
		logger.WarnContext(ctx, "Invalid upload form", log.FieldError, err.Error())
		ErrorResponse(http.StatusBadRequest, core.MsgNoFile).Write(w)
		return
	}
	defer closeFile()

	res, err := s.trigger.Upload(ctx, st, password)
	if err != nil {
		ErrorResponse(uploadStatus(err), core.UserMessage(err)).
			TriggerErrorNotification(core.UserMessage(err)).
			Write(w)
		return
	}

	// Commit the new data before the client asks for fresh partials.
	s.view.Reload(ctx, res.Reload)

	var body strings.Builder
	if err := s.templates.ExecuteTemplate(&body, "upload_result", newUploadData(st.Filename, res)); err != nil {
		logger.ErrorContext(ctx, "Template execution failed", log.FieldError, err.Error(), "template", "upload_result")
	}
	NewHTMXResponse().
		TriggerStatementUploaded(res.Reload).
		TriggerSuccessNotification(fmt.Sprintf("Cartola procesada: %d movimientos nuevos.", res.Inserted)).
		BodyHTML(body.String()).
		Write(w)
}

// uploadStatus maps Upload errors to response codes.
func uploadStatus(err error) int {
	var ve *core.ValidationError
	var ue *core.UploadError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrUploadBusy):
		return http.StatusConflict
	case errors.As(err, &ue) && ue.StatusCode >= 400 && ue.StatusCode < 500:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
