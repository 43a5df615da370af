package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"finbot/internal/chart"
	"finbot/internal/source"
)

// FilterParam is the query parameter carrying the category filter.
const FilterParam = "categoria"

const maxFilterLength = 100

// ParseFilter returns the category filter and whether the parameter was
// present at all. An empty value means "all movements".
func ParseFilter(q url.Values) (string, bool) {
	if _, ok := q[FilterParam]; !ok {
		return "", false
	}
	f := sanitizeInput(q.Get(FilterParam))
	if utf8.RuneCountInString(f) > maxFilterLength {
		f = string([]rune(f)[:maxFilterLength])
	}
	return f, true
}

// Chart sizes outside these bounds are clamped.
const (
	minChartSide = 100
	maxChartSide = 1200
)

// ParseChartSize reads w and h, falling back to the chart defaults.
func ParseChartSize(q url.Values) chart.Options {
	return chart.Options{
		Width:  clampSide(q.Get("w"), chart.DefaultWidth),
		Height: clampSide(q.Get("h"), chart.DefaultHeight),
	}
}

func clampSide(v string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return min(max(n, minChartSide), maxChartSide)
}

// ParseStatementForm extracts the "file" part and the "password" field of
// a multipart upload. The returned close function releases the file.
func ParseStatementForm(r *http.Request) (source.Statement, string, func(), error) {
	noop := func() {}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return source.Statement{}, "", noop, fmt.Errorf("parse multipart form: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return source.Statement{}, "", noop, errors.New("missing file part")
		}
		return source.Statement{}, "", noop, fmt.Errorf("read file part: %w", err)
	}
	st := source.Statement{
		Filename:    sanitizeFilename(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		Content:     io.Reader(file),
	}
	// password is sent as typed; trimming could corrupt it
	return st, r.FormValue("password"), func() { _ = file.Close() }, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' {
			return -1
		}
		return r
	}, s))
}

// sanitizeFilename keeps only the base name of a client-supplied path.
func sanitizeFilename(name string) string {
	name = sanitizeInput(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}
