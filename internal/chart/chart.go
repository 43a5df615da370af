// Package chart renders the debit distribution as a PNG pie chart.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"finbot/internal/core"
)

// ErrNoData is returned when there is no positive debit to draw.
var ErrNoData = errors.New("chart: no debit data")

// Default image size in pixels.
const (
	DefaultWidth  = 480
	DefaultHeight = 480
)

// Options controls the rendered image.
type Options struct {
	Width  int
	Height int
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	return o
}

// Values converts category groups into pie slices. Groups without debit
// are skipped and slices under the label threshold are left unlabeled.
func Values(cats []core.ColoredCategory) []chart.Value {
	values := make([]chart.Value, 0, len(cats))
	for _, c := range cats {
		if c.TotalDebit.Cents <= 0 {
			continue
		}
		label := ""
		if c.ShowLabel() {
			label = fmt.Sprintf("%s %.1f%%", c.Category, c.Share)
		}
		values = append(values, chart.Value{
			Value: float64(c.TotalDebit.Cents),
			Label: label,
			Style: chart.Style{
				FillColor:   drawing.ColorFromHex(c.Color.Hex()),
				StrokeColor: drawing.ColorWhite,
				StrokeWidth: 2,
				FontColor:   drawing.ColorWhite,
			},
		})
	}
	return values
}

// RenderPie writes a PNG pie chart of the summary's category debits to w.
func RenderPie(w io.Writer, s core.Summary, opts Options) error {
	values := Values(s.Categories)
	if len(values) == 0 {
		return ErrNoData
	}
	opts = opts.withDefaults()
	pie := chart.PieChart{
		Width:  opts.Width,
		Height: opts.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 10, Left: 10, Right: 10, Bottom: 10},
		},
		Values: values,
	}
	if err := pie.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render pie chart: %w", err)
	}
	return nil
}

// PNG renders the pie chart into a byte slice.
func PNG(s core.Summary, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderPie(&buf, s, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
