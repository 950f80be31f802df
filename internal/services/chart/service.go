package chart

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/moverwatch/internal/interfaces"
	"github.com/ternarybob/moverwatch/internal/models"
)

// Chart kinds
const (
	KindLine        = "line"
	KindCandlestick = "candlestick"
)

// Plot area on a landscape A4 page, in mm
const (
	plotLeft   = 25.0
	plotTop    = 25.0
	plotWidth  = 250.0
	plotHeight = 110.0
	volTop     = plotTop + plotHeight + 10
	volHeight  = 35.0
	gridLines  = 5
)

// Service renders price series to PDF files
type Service struct {
	dir    string
	logger arbor.ILogger
}

// Compile-time assertion
var _ interfaces.ChartService = (*Service)(nil)

// NewService creates a chart service writing to dir, or the system temp dir when empty
func NewService(dir string, logger arbor.ILogger) *Service {
	return &Service{dir: dir, logger: logger}
}

// Render draws history as a line or candlestick chart with a volume panel and
// returns the path of the temp file. The caller owns the file.
func (s *Service) Render(ctx context.Context, history *models.HistoryResult, kind, title string) (string, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = KindLine
	}
	if kind != KindLine && kind != KindCandlestick {
		return "", fmt.Errorf("unsupported chart type %q (valid: %s, %s)", kind, KindLine, KindCandlestick)
	}
	if history == nil || len(history.Data) == 0 {
		return "", fmt.Errorf("chart data is empty")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dates := history.Dates()
	bars := make([]models.Bar, len(dates))
	for i, d := range dates {
		bars[i] = history.Data[d]
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.SetXY(plotLeft, 10)
	pdf.CellFormat(plotWidth, 8, pdf.UnicodeTranslatorFromDescriptor("")(title), "", 0, "L", false, 0, "")

	low, high := priceRange(bars, kind)
	drawGrid(pdf, low, high)

	step := plotWidth / float64(len(bars))
	y := func(v float64) float64 {
		return plotTop + plotHeight - (v-low)/(high-low)*plotHeight
	}

	switch kind {
	case KindCandlestick:
		drawCandles(pdf, bars, step, y)
	default:
		drawLine(pdf, bars, step, y)
	}
	drawVolume(pdf, bars, step)
	drawDateLabels(pdf, dates, step)

	if err := pdf.Error(); err != nil {
		return "", fmt.Errorf("failed to draw chart: %w", err)
	}

	f, err := os.CreateTemp(s.dir, "chart-*.pdf")
	if err != nil {
		return "", fmt.Errorf("failed to create chart file: %w", err)
	}
	if err := pdf.Output(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write chart: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write chart: %w", err)
	}

	s.logger.Info().
		Str("symbol", history.Symbol).
		Str("kind", kind).
		Int("bars", len(bars)).
		Str("path", f.Name()).
		Msg("Chart rendered")
	return f.Name(), nil
}

// priceRange returns a padded [low, high] covering the plotted values
func priceRange(bars []models.Bar, kind string) (float64, float64) {
	low, high := math.Inf(1), math.Inf(-1)
	for _, b := range bars {
		if kind == KindCandlestick {
			low = math.Min(low, b.Low)
			high = math.Max(high, b.High)
		} else {
			low = math.Min(low, b.Close)
			high = math.Max(high, b.Close)
		}
	}
	pad := (high - low) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(high)*0.01, 0.01)
	}
	return low - pad, high + pad
}

func drawGrid(pdf *fpdf.Fpdf, low, high float64) {
	pdf.SetDrawColor(220, 220, 220)
	pdf.SetLineWidth(0.1)
	pdf.SetFont("Arial", "", 7)
	pdf.SetTextColor(90, 90, 90)
	for i := 0; i <= gridLines; i++ {
		frac := float64(i) / gridLines
		gy := plotTop + plotHeight - frac*plotHeight
		pdf.Line(plotLeft, gy, plotLeft+plotWidth, gy)
		pdf.SetXY(5, gy-2)
		pdf.CellFormat(18, 4, fmt.Sprintf("%.2f", low+frac*(high-low)), "", 0, "R", false, 0, "")
	}
	pdf.SetDrawColor(0, 0, 0)
	pdf.Rect(plotLeft, plotTop, plotWidth, plotHeight, "D")
}

func drawLine(pdf *fpdf.Fpdf, bars []models.Bar, step float64, y func(float64) float64) {
	pdf.SetDrawColor(30, 90, 200)
	pdf.SetLineWidth(0.5)
	for i := 1; i < len(bars); i++ {
		x0 := plotLeft + step*(float64(i-1)+0.5)
		x1 := plotLeft + step*(float64(i)+0.5)
		pdf.Line(x0, y(bars[i-1].Close), x1, y(bars[i].Close))
	}
	if len(bars) == 1 {
		pdf.SetFillColor(30, 90, 200)
		pdf.Circle(plotLeft+step*0.5, y(bars[0].Close), 0.8, "F")
	}
}

func drawCandles(pdf *fpdf.Fpdf, bars []models.Bar, step float64, y func(float64) float64) {
	body := math.Max(step*0.6, 0.3)
	pdf.SetLineWidth(0.2)
	for i, b := range bars {
		cx := plotLeft + step*(float64(i)+0.5)
		if b.Close >= b.Open {
			pdf.SetDrawColor(20, 140, 60)
			pdf.SetFillColor(20, 140, 60)
		} else {
			pdf.SetDrawColor(200, 40, 40)
			pdf.SetFillColor(200, 40, 40)
		}
		pdf.Line(cx, y(b.High), cx, y(b.Low))
		top := y(math.Max(b.Open, b.Close))
		height := math.Max(y(math.Min(b.Open, b.Close))-top, 0.2)
		pdf.Rect(cx-body/2, top, body, height, "F")
	}
}

func drawVolume(pdf *fpdf.Fpdf, bars []models.Bar, step float64) {
	var maxVol int64
	for _, b := range bars {
		if b.Volume > maxVol {
			maxVol = b.Volume
		}
	}
	pdf.SetDrawColor(0, 0, 0)
	pdf.Rect(plotLeft, volTop, plotWidth, volHeight, "D")
	if maxVol == 0 {
		return
	}
	pdf.SetFillColor(150, 150, 170)
	width := math.Max(step*0.6, 0.3)
	for i, b := range bars {
		h := float64(b.Volume) / float64(maxVol) * volHeight
		cx := plotLeft + step*(float64(i)+0.5)
		pdf.Rect(cx-width/2, volTop+volHeight-h, width, h, "F")
	}
	pdf.SetFont("Arial", "", 7)
	pdf.SetTextColor(90, 90, 90)
	pdf.SetXY(5, volTop-2)
	pdf.CellFormat(18, 4, formatVolume(maxVol), "", 0, "R", false, 0, "")
}

// drawDateLabels writes at most eight evenly spaced dates under the volume panel
func drawDateLabels(pdf *fpdf.Fpdf, dates []string, step float64) {
	every := int(math.Ceil(float64(len(dates)) / 8))
	pdf.SetFont("Arial", "", 7)
	pdf.SetTextColor(90, 90, 90)
	for i := 0; i < len(dates); i += every {
		cx := plotLeft + step*(float64(i)+0.5)
		pdf.SetXY(cx-10, volTop+volHeight+1)
		pdf.CellFormat(20, 4, dates[i], "", 0, "C", false, 0, "")
	}
}

func formatVolume(v int64) string {
	switch {
	case v >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(v)/1e9)
	case v >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(v)/1e6)
	case v >= 1_000:
		return fmt.Sprintf("%.1fK", float64(v)/1e3)
	}
	return fmt.Sprintf("%d", v)
}
