package http

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"finbot/internal/chart"
	"finbot/internal/core"
	"finbot/internal/view"
)

var errNoChartData = chart.ErrNoData

var templateFuncs = template.FuncMap{
	"pesos": core.FormatPesos,
	"pesosPtr": func(m *core.Money) string {
		if m == nil {
			return "-"
		}
		return core.FormatPesos(*m)
	},
	"share": func(f float64) string { return fmt.Sprintf("%.1f%%", f) },
	"when":  func(t time.Time) string { return t.Local().Format("02-01-2006 15:04") },
}

type movementRow struct {
	ID          string
	Date        string
	Description string
	Debit       string
	Credit      string
	Category    string
	Color       core.Color
}

// dashboardData feeds every dashboard template.
type dashboardData struct {
	Phase      string
	Ready      bool
	Failed     bool
	Error      string
	Filter     string
	Categories []string
	Stats      core.AggregateStats
	Groups     []core.ColoredCategory
	Rows       []movementRow
	Generation uint64
	UpdatedAt  time.Time
	LastUpload *core.UploadRecord
}

type pageData struct {
	dashboardData
	Accept string
}

func newDashboardData(st view.State, last *core.UploadRecord) dashboardData {
	d := dashboardData{
		Phase:      st.Phase.String(),
		Ready:      st.Phase == view.Ready,
		Failed:     st.Phase == view.Failed,
		Filter:     st.Filter,
		Categories: st.Categories,
		Stats:      st.Summary.Stats,
		Groups:     st.Summary.Categories,
		Generation: st.Committed,
		UpdatedAt:  st.UpdatedAt,
		LastUpload: last,
	}
	if st.Err != nil {
		d.Error = core.UserMessage(st.Err)
	}
	d.Rows = make([]movementRow, 0, len(st.Snapshot))
	for _, t := range st.Snapshot {
		cat := core.NormalizeCategory(t.Category)
		row := movementRow{
			ID:          t.ID,
			Date:        t.Date,
			Description: t.Description,
			Category:    cat,
			Color:       core.ColorFor(cat),
		}
		if t.Debit.Cents > 0 {
			row.Debit = core.FormatPesos(t.Debit)
		}
		if t.Credit.Cents > 0 {
			row.Credit = core.FormatPesos(t.Credit)
		}
		d.Rows = append(d.Rows, row)
	}
	return d
}

type uploadData struct {
	Filename string
	Inserted int
	Opening  *core.Money
	Closing  *core.Money
}

func newUploadData(filename string, res core.UploadResult) uploadData {
	return uploadData{
		Filename: filename,
		Inserted: res.Inserted,
		Opening:  res.OpeningBalance,
		Closing:  res.ClosingBalance,
	}
}

type categoryJSON struct {
	Category   string  `json:"categoria"`
	TotalDebit int64   `json:"total_cents"`
	Total      string  `json:"total"`
	Share      float64 `json:"porcentaje"`
	Color      string  `json:"color"`
	ShowLabel  bool    `json:"etiqueta"`
}

type summaryResponse struct {
	Phase       string         `json:"phase"`
	Filter      string         `json:"categoria"`
	Generation  uint64         `json:"generation"`
	Reload      uint64         `json:"reload"`
	Count       int            `json:"count"`
	TotalDebit  int64          `json:"total_cargos_cents"`
	TotalCredit int64          `json:"total_abonos_cents"`
	Categories  []categoryJSON `json:"categorias"`
	Error       string         `json:"error,omitempty"`
}

func newSummaryResponse(st view.State) summaryResponse {
	s := st.Summary
	out := summaryResponse{
		Phase:       st.Phase.String(),
		Filter:      st.Filter,
		Generation:  st.Committed,
		Reload:      st.Reload,
		Count:       s.Stats.Count,
		TotalDebit:  s.Stats.TotalDebit.Cents,
		TotalCredit: s.Stats.TotalCredit.Cents,
		Categories:  make([]categoryJSON, 0, len(s.Categories)),
	}
	if st.Err != nil {
		out.Error = core.UserMessage(st.Err)
	}
	for _, c := range s.Categories {
		out.Categories = append(out.Categories, categoryJSON{
			Category:   c.Category,
			TotalDebit: c.TotalDebit.Cents,
			Total:      core.FormatPesos(c.TotalDebit),
			Share:      c.Share,
			Color:      string(c.Color),
			ShowLabel:  c.ShowLabel(),
		})
	}
	return out
}

type metricsResponse struct {
	Requests         int64   `json:"requests"`
	AvgResponseMs    float64 `json:"avg_response_ms"`
	BlockedRequests  int64   `json:"blocked_requests"`
	RateLimited      int64   `json:"rate_limited"`
	RateLimitClients int     `json:"rate_limit_clients"`
	ChartCacheHits   uint64  `json:"chart_cache_hits"`
	ChartCacheMisses uint64  `json:"chart_cache_misses"`
	ChartCacheSize   int     `json:"chart_cache_size"`
}

func (s *Server) metrics() metricsResponse {
	tm := s.tracer.GetMetrics()
	hits, misses := s.charts.Stats()
	out := metricsResponse{
		Requests:         tm.TotalRequests,
		AvgResponseMs:    float64(tm.AverageResponseTime) / float64(time.Millisecond),
		BlockedRequests:  s.detector.Blocked(),
		ChartCacheHits:   hits,
		ChartCacheMisses: misses,
		ChartCacheSize:   s.charts.Size(),
	}
	if s.limiter != nil {
		rm := s.limiter.GetMetrics()
		out.RateLimited, out.RateLimitClients = rm.Rejected, rm.ClientCount
	}
	return out
}

func renderChart(s core.Summary, size chart.Options) ([]byte, error) {
	return chart.PNG(s, size)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
