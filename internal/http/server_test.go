package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbot/internal/core"
	"finbot/internal/middleware/ratelimit"
	"finbot/internal/reload"
	"finbot/internal/source"
	"finbot/internal/source/memory"
	"finbot/internal/upload"
	"finbot/internal/view"
)

type fixedHistory struct{ rec *core.UploadRecord }

func (h fixedHistory) LastUpload(context.Context) (*core.UploadRecord, error) { return h.rec, nil }

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type failingFetcher struct{}

func (failingFetcher) FetchTransactions(context.Context, string) (core.Snapshot, error) {
	return nil, &core.FetchError{StatusCode: 500, Err: errors.New("boom")}
}

type testEnv struct {
	srv    *Server
	store  *memory.Store
	signal *reload.Signal
	view   *view.View
}

func seedSnapshot() core.Snapshot {
	return core.Snapshot{
		{ID: "1", Date: "01-03-2024", Description: "Lider", Debit: core.Money{Cents: 100000}, Category: "Super"},
		{ID: "2", Date: "02-03-2024", Description: "Sueldo", Credit: core.Money{Cents: 500000}},
		{ID: "3", Date: "03-03-2024", Description: "Metro", Debit: core.Money{Cents: 20000}, Category: "Transporte"},
	}
}

func newTestEnv(t *testing.T, seed core.Snapshot, opts Options) *testEnv {
	t.Helper()
	store := memory.New(seed)
	sig := &reload.Signal{}
	if opts.View == nil {
		opts.View = view.New(store, nil)
	}
	opts.Trigger = upload.New(store, sig, upload.Options{})
	srv, err := NewServer(opts)
	require.NoError(t, err)
	return &testEnv{srv: srv, store: store, signal: sig, view: opts.View}
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func (e *testEnv) upload(t *testing.T, filename, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, _ = part.Write([]byte(body))
	require.NoError(t, mw.WriteField("password", ""))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func triggers(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	raw := rec.Header().Get("HX-Trigger")
	if raw == "" {
		return nil
	}
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func TestNewServerRequiresViewAndTrigger(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}

func TestIndexRendersDashboard(t *testing.T) {
	uploaded := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	env := newTestEnv(t, seedSnapshot(), Options{History: fixedHistory{&core.UploadRecord{
		Filename: "marzo.pdf", Inserted: 3, UploadedAt: uploaded,
	}}})

	rec := env.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	body := rec.Body.String()
	assert.Contains(t, body, "FinBot")
	assert.Contains(t, body, `name="file"`)
	assert.Contains(t, body, "$1.000")
	assert.Contains(t, body, "$5.000")
	assert.Contains(t, body, "marzo.pdf")
	assert.Contains(t, body, "Lider")
	assert.Equal(t, view.Ready, env.view.State().Phase, "first page load fetches")
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	rec := env.get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, http.StatusOK, env.get("/readyz").Code)

	down := newTestEnv(t, nil, Options{Ready: []Pinger{pinger{}, pinger{errors.New("db closed")}}})
	assert.Equal(t, http.StatusServiceUnavailable, down.get("/readyz").Code)
}

func TestUnknownRouteIs404(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	assert.Equal(t, http.StatusNotFound, env.get("/nope").Code)
}

func TestStaticAssetsAreServed(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	rec := env.get("/static/app.css")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age=3600")
}

func TestStatsPartial(t *testing.T) {
	env := newTestEnv(t, seedSnapshot(), Options{})
	rec := env.get("/ui/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `id="stats"`)
	assert.Contains(t, body, "$1.200")
	assert.Contains(t, body, "$5.000")
	assert.Contains(t, body, "statement:uploaded from:body")
}

func TestCategoriesPartialListsShares(t *testing.T) {
	env := newTestEnv(t, seedSnapshot(), Options{})
	rec := env.get("/ui/categories")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Super")
	assert.Contains(t, body, "83.3%")
	assert.Contains(t, body, "Transporte")
	assert.Contains(t, body, "/ui/chart.png?g=1")
}

func TestMovementsFilterSwitchesView(t *testing.T) {
	env := newTestEnv(t, seedSnapshot(), Options{})

	rec := env.get("/ui/movements?categoria=Super")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, triggers(t, rec), "view:changed")
	body := rec.Body.String()
	assert.Contains(t, body, "Lider")
	assert.NotContains(t, body, "Metro")
	assert.Equal(t, "Super", env.view.State().Filter)

	// Same filter again: nothing changes, no trigger.
	rec = env.get("/ui/movements?categoria=Super")
	assert.Empty(t, rec.Header().Get("HX-Trigger"))

	// No parameter keeps the active filter.
	rec = env.get("/ui/movements")
	assert.NotContains(t, rec.Body.String(), "Metro")

	// Empty value clears it.
	rec = env.get("/ui/movements?categoria=")
	assert.Contains(t, triggers(t, rec), "view:changed")
	assert.Contains(t, rec.Body.String(), "Metro")
	assert.Equal(t, "", env.view.State().Filter)
}

func TestFilterIsSharedAcrossClients(t *testing.T) {
	env := newTestEnv(t, seedSnapshot(), Options{})
	fetch := func(path, addr string) string {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		env.srv.Handler.ServeHTTP(rec, req)
		return rec.Body.String()
	}

	assert.Contains(t, fetch("/ui/stats", "10.0.0.2:5000"), "$1.200")
	fetch("/ui/movements?categoria=Super", "10.0.0.1:4000")

	// One dashboard, one view: another browser sees the same filter.
	assert.Contains(t, fetch("/ui/stats", "10.0.0.2:5000"), "$1.000")
	assert.NotContains(t, fetch("/ui/movements", "10.0.0.2:5000"), "Metro")
}

func TestCategorySelectorOnlyOffersMatchableValues(t *testing.T) {
	env := newTestEnv(t, seedSnapshot(), Options{})
	body := env.get("/ui/movements").Body.String()
	assert.Contains(t, body, `<option value="Super"`)
	assert.Contains(t, body, `<option value="Transporte"`)
	// Sueldo has no category: it is charted under Otros but a filter on
	// "Otros" would not match it, so it is not offered.
	assert.NotContains(t, body, `<option value="`+core.OtherCategory+`"`)

	for _, c := range env.view.State().Categories {
		rec := env.get("/ui/movements?categoria=" + url.QueryEscape(c))
		assert.NotContains(t, rec.Body.String(), "No hay movimientos", c)
	}
}

func TestMovementsEmptyFilterResult(t *testing.T) {
	env := newTestEnv(t, seedSnapshot(), Options{})
	rec := env.get("/ui/movements?categoria=Viajes")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No hay movimientos en Viajes")
}

func TestFailedFetchRendersError(t *testing.T) {
	env := newTestEnv(t, nil, Options{View: view.New(failingFetcher{}, nil)})

	rec := env.get("/ui/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `role="alert"`)
	assert.Contains(t, rec.Body.String(), core.MsgFetchFailed)

	assert.Equal(t, http.StatusServiceUnavailable, env.get("/ui/chart.png").Code)

	var sum summaryResponse
	rec = env.get("/api/summary")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, "failed", sum.Phase)
	assert.Equal(t, core.MsgFetchFailed, sum.Error)
}

func TestChartImage(t *testing.T) {
	env := newTestEnv(t, seedSnapshot(), Options{})

	rec := env.get("/ui/chart.png?w=300&h=300")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
	assert.Empty(t, rec.Header().Get("X-Cache"))

	rec = env.get("/ui/chart.png?w=300&h=300")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hit", rec.Header().Get("X-Cache"))
}

func TestMetricsJSON(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 1})
	env := newTestEnv(t, seedSnapshot(), Options{Limiter: limiter})

	env.get("/ui/chart.png")
	env.get("/ui/chart.png")
	env.get("/?q=%3Cscript%3Ealert(1)%3C%2Fscript%3E")
	movs := `[{"id":1,"fecha":"05-03-2024","detalle":"Cine","cargos":9000,"abonos":0,"categoria":"Ocio"}]`
	require.Equal(t, http.StatusOK, env.upload(t, "movs.json", "application/json", movs).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.upload(t, "movs.json", "application/json", movs).Code)

	rec := env.get("/api/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	var m metricsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, uint64(1), m.ChartCacheHits)
	assert.Equal(t, uint64(1), m.ChartCacheMisses)
	assert.Equal(t, 1, m.ChartCacheSize)
	assert.Equal(t, int64(1), m.BlockedRequests)
	assert.Equal(t, int64(1), m.RateLimited)
	assert.Equal(t, 1, m.RateLimitClients)
	assert.GreaterOrEqual(t, m.Requests, int64(5))
}

func TestChartWithoutDebitsIsEmpty(t *testing.T) {
	env := newTestEnv(t, core.Snapshot{{ID: "1", Credit: core.Money{Cents: 100}}}, Options{})
	rec := env.get("/ui/chart.png")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestSummaryJSON(t *testing.T) {
	env := newTestEnv(t, seedSnapshot(), Options{})
	rec := env.get("/api/summary")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var sum summaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, "ready", sum.Phase)
	assert.Equal(t, 3, sum.Count)
	assert.Equal(t, int64(120000), sum.TotalDebit)
	assert.Equal(t, int64(500000), sum.TotalCredit)
	require.Len(t, sum.Categories, 2)
	assert.Equal(t, "Super", sum.Categories[0].Category)
	assert.Equal(t, "$1.000", sum.Categories[0].Total)
	assert.True(t, sum.Categories[0].ShowLabel)
	assert.NotEmpty(t, sum.Categories[0].Color)
}

func TestUploadSuccessReloadsView(t *testing.T) {
	env := newTestEnv(t, seedSnapshot(), Options{})
	env.get("/")

	rec := env.upload(t, "movs.json", source.TypeJSON,
		`[{"id":9,"fecha":"10-03-2024","detalle":"Cine","cargos":8000,"abonos":0,"categoria":"Ocio"}]`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "movs.json")
	assert.Contains(t, rec.Body.String(), "1 movimientos nuevos")

	trig := triggers(t, rec)
	require.Contains(t, trig, "statement:uploaded")
	assert.JSONEq(t, `{"reload":1}`, string(trig["statement:uploaded"]))
	assert.Contains(t, trig, "show-notification")

	assert.Equal(t, uint64(1), env.signal.Value())
	st := env.view.State()
	assert.Equal(t, uint64(1), st.Reload)
	require.Len(t, st.Snapshot, 1)
	assert.Equal(t, "Cine", st.Snapshot[0].Description)
}

func TestUploadRejectedByBackend(t *testing.T) {
	env := newTestEnv(t, seedSnapshot(), Options{})
	rec := env.upload(t, "cartola.pdf", source.TypePDF, "%PDF-1.7")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `role="alert"`)
	assert.Contains(t, triggers(t, rec), "show-notification")
	assert.NotContains(t, triggers(t, rec), "statement:uploaded")
	assert.Equal(t, uint64(0), env.signal.Value())
}

func TestUploadWrongTypeIsValidationError(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	rec := env.upload(t, "foto.png", "image/png", "x")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), core.MsgBadFileType)
}

func TestUploadWithoutFile(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("password", "secret"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), core.MsgNoFile)
}

func TestUploadRequiresPost(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	assert.Equal(t, http.StatusMethodNotAllowed, env.get("/upload").Code)
}

func TestUploadStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &core.ValidationError{Message: core.MsgNoFile}, http.StatusUnprocessableEntity},
		{"busy", core.ErrUploadBusy, http.StatusConflict},
		{"backend 4xx", &core.UploadError{StatusCode: 400}, http.StatusUnprocessableEntity},
		{"backend 5xx", &core.UploadError{StatusCode: 503}, http.StatusBadGateway},
		{"transport", &core.UploadError{Err: errors.New("refused")}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, uploadStatus(tt.err))
		})
	}
}

func TestSuspiciousRequestsAreHidden(t *testing.T) {
	env := newTestEnv(t, nil, Options{})
	rec := env.get("/?q=%3Cscript%3Ealert(1)%3C%2Fscript%3E")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
