package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "order-analyst/errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

const ChartToolName = "data_vizualization"

// ChartInputSchema describes the chart tool input for prompts.
const ChartInputSchema = `{
  "input": {
    "type": "one of line, bar, scatter, pie",
    "x": "label for the x-axis",
    "y": "label for the y-axis",
    "x_data": ["x values, or slice labels for pie"],
    "y_data": ["numbers for one series", "or a list of number lists for several series"],
    "labels": ["optional series names"]
  }
}`

// ChartInput is the JSON accepted by the chart tool, optionally wrapped as
// {"input": {...}}. YData is either one series or a list of series.
type ChartInput struct {
	Type   string            `json:"type" validate:"required"`
	X      string            `json:"x" validate:"required"`
	Y      string            `json:"y" validate:"required"`
	XData  []any             `json:"x_data" validate:"required,min=1"`
	YData  []json.RawMessage `json:"y_data" validate:"required,min=1"`
	Labels []string          `json:"labels"`
}

// ChartRenderer draws charts to PNG files under a static directory.
type ChartRenderer struct {
	dir      string
	baseURL  string
	validate *validator.Validate
	logger   *zap.Logger
}

func NewChartRenderer(dir, baseURL string, logger *zap.Logger) *ChartRenderer {
	return &ChartRenderer{
		dir:      dir,
		baseURL:  strings.TrimRight(baseURL, "/"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

func (c *ChartRenderer) Descriptor() Descriptor {
	return Descriptor{
		Name: ChartToolName,
		Description: "Generates a chart from structured JSON input. Supports 'line', 'bar', 'scatter' and 'pie'. " +
			"Input: {\"input\": {\"type\": ..., \"x\": x-axis label, \"y\": y-axis label, \"x_data\": [...], " +
			"\"y_data\": [...] or [[...], [...]] for several series, \"labels\": optional series names}}. " +
			"Line, bar and scatter accept one or several series; pie accepts a single series and uses x_data as slice labels. " +
			"The chart is saved as a PNG and its URL is returned.",
		InputContract: ChartInputSchema,
		ProgressLabel: "Visualizing data",
	}
}

func (c *ChartRenderer) Run(ctx context.Context, input string) string {
	in, err := c.decode(input)
	if err != nil {
		return fmt.Sprintf("Failed to render chart: %v", err)
	}
	url, err := c.Render(in)
	if err != nil {
		var rejected ChartRejected
		if apperrors.As(err, &rejected) {
			return rejected.Error()
		}
		c.logger.Warn("Chart rendering failed", zap.String("type", in.Type), zap.Error(err))
		return fmt.Sprintf("Failed to render chart: %v", err)
	}
	return fmt.Sprintf("Image saved to %s", url)
}

func (c *ChartRenderer) decode(input string) (*ChartInput, error) {
	var wrapper struct {
		Input *ChartInput `json:"input"`
	}
	raw := []byte(strings.TrimSpace(input))
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, err.Error())
	}
	in := wrapper.Input
	if in == nil {
		in = &ChartInput{}
		if err := json.Unmarshal(raw, in); err != nil {
			return nil, apperrors.WrapError(apperrors.ErrInvalidInput, err.Error())
		}
	}
	if err := c.validate.Struct(in); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInvalidInput, err.Error())
	}
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	return in, nil
}

// ChartRejected is a chart request the renderer does not support. Its text is
// shown to the agent as is.
type ChartRejected string

func (r ChartRejected) Error() string { return string(r) }

// Render draws the chart and returns its public URL.
func (c *ChartRenderer) Render(in *ChartInput) (string, error) {
	series, multi, err := parseSeries(in.YData)
	if err != nil {
		return "", err
	}
	switch in.Type {
	case "line", "scatter", "bar":
	case "pie":
		if multi {
			return "", ChartRejected("Pie chart does not support multiple data series.")
		}
	default:
		return "", ChartRejected("Unsupported plot type: " + in.Type)
	}
	for i, s := range series {
		if len(s) != len(in.XData) {
			return "", apperrors.WrapErrorf(apperrors.ErrInvalidInput,
				"series %d has %d values for %d x values", i+1, len(s), len(in.XData))
		}
	}

	p := plot.New()
	switch in.Type {
	case "line", "scatter":
		err = addPoints(p, in, series, multi)
	case "bar":
		err = addBars(p, in, series, multi)
	case "pie":
		p.HideAxes()
		p.Add(&pieChart{values: series[0], labels: xLabels(in.XData)})
	}
	if err != nil {
		return "", err
	}

	if in.Type != "pie" {
		p.Title.Text = fmt.Sprintf("%s Plot of %s vs %s", cases.Title(language.English).String(in.Type), in.Y, in.X)
		p.X.Label.Text = in.X
		p.Y.Label.Text = in.Y
		p.Add(plotter.NewGrid())
		p.Legend.Top = true
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", apperrors.WrapError(apperrors.ErrFileOperation, err.Error())
	}
	name := uuid.NewString() + ".png"
	if err := p.Save(12*vg.Inch, 7*vg.Inch, filepath.Join(c.dir, name)); err != nil {
		return "", apperrors.WrapError(apperrors.ErrFileOperation, err.Error())
	}
	c.logger.Info("Chart saved", zap.String("type", in.Type), zap.String("file", name))
	return c.baseURL + "/" + name, nil
}

// parseSeries reports multi when the first y_data element is itself a list.
func parseSeries(yData []json.RawMessage) ([][]float64, bool, error) {
	first := strings.TrimSpace(string(yData[0]))
	if !strings.HasPrefix(first, "[") {
		var values []any
		for _, raw := range yData {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, false, apperrors.WrapError(apperrors.ErrInvalidInput, err.Error())
			}
			values = append(values, v)
		}
		s, err := toFloats(values)
		return [][]float64{s}, false, err
	}
	out := make([][]float64, 0, len(yData))
	for _, raw := range yData {
		var values []any
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, true, apperrors.WrapError(apperrors.ErrInvalidInput, "mixed series and scalars in y_data")
		}
		s, err := toFloats(values)
		if err != nil {
			return nil, true, err
		}
		out = append(out, s)
	}
	return out, true, nil
}

func toFloats(values []any) ([]float64, error) {
	out := make([]float64, len(values))
	for i, v := range values {
		f, ok := toFloat(v)
		if !ok {
			return nil, apperrors.WrapErrorf(apperrors.ErrInvalidInput, "non-numeric value %v", v)
		}
		out[i] = f
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func xLabels(xData []any) []string {
	out := make([]string, len(xData))
	for i, v := range xData {
		if f, ok := v.(float64); ok {
			out[i] = strconv.FormatFloat(f, 'f', -1, 64)
			continue
		}
		out[i] = fmt.Sprint(v)
	}
	return out
}

// xPositions returns numeric x values, falling back to indexes with nominal
// tick labels when any x value is not a number.
func xPositions(p *plot.Plot, xData []any) []float64 {
	pos := make([]float64, len(xData))
	for i, v := range xData {
		f, ok := v.(float64)
		if !ok {
			for j := range pos {
				pos[j] = float64(j)
			}
			p.NominalX(xLabels(xData)...)
			return pos
		}
		pos[i] = f
	}
	return pos
}

func seriesLabel(in *ChartInput, idx int, multi bool) string {
	if idx < len(in.Labels) && in.Labels[idx] != "" {
		return in.Labels[idx]
	}
	if multi {
		return fmt.Sprintf("Series %d", idx+1)
	}
	return in.Y
}

func addPoints(p *plot.Plot, in *ChartInput, series [][]float64, multi bool) error {
	xs := xPositions(p, in.XData)
	for idx, s := range series {
		pts := make(plotter.XYs, len(s))
		for i := range s {
			pts[i].X, pts[i].Y = xs[i], s[i]
		}
		col := plotutil.Color(idx)
		label := seriesLabel(in, idx, multi)
		if in.Type == "scatter" {
			sc, err := plotter.NewScatter(pts)
			if err != nil {
				return apperrors.WrapError(apperrors.ErrInvalidInput, err.Error())
			}
			sc.GlyphStyle.Color = col
			sc.GlyphStyle.Radius = vg.Points(4)
			sc.GlyphStyle.Shape = draw.CircleGlyph{}
			p.Add(sc)
			p.Legend.Add(label, sc)
			continue
		}
		line, marks, err := plotter.NewLinePoints(pts)
		if err != nil {
			return apperrors.WrapError(apperrors.ErrInvalidInput, err.Error())
		}
		line.LineStyle.Color = col
		line.LineStyle.Width = vg.Points(2)
		marks.GlyphStyle.Color = col
		marks.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(line, marks)
		p.Legend.Add(label, line, marks)
	}
	return nil
}

// addBars groups the bars of several series side by side around each x.
func addBars(p *plot.Plot, in *ChartInput, series [][]float64, multi bool) error {
	groupWidth := vg.Points(40)
	width := groupWidth / vg.Length(len(series))
	for idx, s := range series {
		bars, err := plotter.NewBarChart(plotter.Values(s), width)
		if err != nil {
			return apperrors.WrapError(apperrors.ErrInvalidInput, err.Error())
		}
		bars.Color = plotutil.Color(idx)
		bars.LineStyle.Width = 0
		bars.Offset = width*vg.Length(idx) - groupWidth/2 + width/2
		p.Add(bars)
		p.Legend.Add(seriesLabel(in, idx, multi), bars)
	}
	p.NominalX(xLabels(in.XData)...)
	return nil
}

// pieChart draws labelled wedges with percentage and absolute value.
type pieChart struct {
	values []float64
	labels []string
}

func (pc *pieChart) Plot(c draw.Canvas, plt *plot.Plot) {
	total := 0.0
	for _, v := range pc.values {
		total += math.Abs(v)
	}
	if total == 0 {
		return
	}
	center := c.Center()
	radius := 0.4 * min(c.Max.X-c.Min.X, c.Max.Y-c.Min.Y)

	sty := plt.X.Tick.Label
	sty.XAlign = text.XCenter
	sty.YAlign = text.YCenter
	sty.Color = color.Black

	angle := math.Pi * 140 / 180
	for i, v := range pc.values {
		sweep := 2 * math.Pi * math.Abs(v) / total
		var path vg.Path
		path.Move(center)
		path.Arc(center, radius, angle, sweep)
		path.Close()
		c.SetColor(plotutil.Color(i))
		c.Fill(path)

		mid := angle + sweep/2
		at := vg.Point{
			X: center.X + vg.Length(math.Cos(mid))*radius*1.2,
			Y: center.Y + vg.Length(math.Sin(mid))*radius*1.2,
		}
		label := ""
		if i < len(pc.labels) {
			label = pc.labels[i] + " "
		}
		c.FillText(sty, at, fmt.Sprintf("%s%.1f%% (%d)", label, 100*math.Abs(v)/total, int(math.Round(v))))
		angle += sweep
	}
}
