package http

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"

	"finbot/internal/chart"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		query   string
		want    string
		present bool
	}{
		{"", "", false},
		{"categoria=", "", true},
		{"categoria=Supermercado", "Supermercado", true},
		{"categoria=%20Caf%C3%A9%20", "Café", true},
		{"categoria=a%0Ab", "ab", true},
		{"categoria=" + strings.Repeat("x", 150), strings.Repeat("x", 100), true},
	}
	for _, tt := range tests {
		q, _ := url.ParseQuery(tt.query)
		got, ok := ParseFilter(q)
		if got != tt.want || ok != tt.present {
			t.Errorf("ParseFilter(%q) = %q, %v; want %q, %v", tt.query, got, ok, tt.want, tt.present)
		}
	}
}

func TestParseChartSize(t *testing.T) {
	tests := []struct {
		query string
		want  chart.Options
	}{
		{"", chart.Options{Width: chart.DefaultWidth, Height: chart.DefaultHeight}},
		{"w=300&h=200", chart.Options{Width: 300, Height: 200}},
		{"w=5&h=99999", chart.Options{Width: minChartSide, Height: maxChartSide}},
		{"w=abc", chart.Options{Width: chart.DefaultWidth, Height: chart.DefaultHeight}},
	}
	for _, tt := range tests {
		q, _ := url.ParseQuery(tt.query)
		if got := ParseChartSize(q); got != tt.want {
			t.Errorf("ParseChartSize(%q) = %+v, want %+v", tt.query, got, tt.want)
		}
	}
}

func multipartRequest(t *testing.T, filename, contentType, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write([]byte(content))
	}
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestParseStatementForm(t *testing.T) {
	req := multipartRequest(t, `C:\docs\cartola.pdf`, "application/pdf", "%PDF-1.7", map[string]string{"password": " 1234 "})
	st, pw, closeFile, err := ParseStatementForm(req)
	if err != nil {
		t.Fatalf("ParseStatementForm: %v", err)
	}
	defer closeFile()

	if st.Filename != "cartola.pdf" {
		t.Errorf("Filename = %q", st.Filename)
	}
	if st.ContentType != "application/pdf" {
		t.Errorf("ContentType = %q", st.ContentType)
	}
	data, _ := io.ReadAll(st.Content)
	if string(data) != "%PDF-1.7" {
		t.Errorf("Content = %q", data)
	}
	if pw != " 1234 " {
		t.Errorf("password = %q, must be passed through untouched", pw)
	}
}

func TestParseStatementFormMissingFile(t *testing.T) {
	req := multipartRequest(t, "", "", "", map[string]string{"password": ""})
	if _, _, closeFile, err := ParseStatementForm(req); err == nil {
		t.Error("expected error for missing file")
	} else {
		closeFile()
	}

	req = httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if _, _, _, err := ParseStatementForm(req); err == nil {
		t.Error("expected error for non-multipart body")
	}
}
