package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/ground.control/internal/httputil"
	"github.com/banshee-data/ground.control/internal/series"
)

// DefaultChartWindow is how many trailing samples per series /charts draws
// when ?window is not given.
const DefaultChartWindow = 600

// showCharts renders one line chart per sensor group (acceleration, angular
// rate, magnetic field) against seconds since boot.
func (s *Server) showCharts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}

	window := DefaultChartWindow
	if v := r.URL.Query().Get("window"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "window must be a non-negative integer")
			return
		}
		window = n
	}

	page := components.NewPage()
	for _, g := range s.store.Groups() {
		page.AddCharts(groupChart(g, window, s.link.Config().Port))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		logf("render charts: %v", err)
		httputil.InternalServerError(w, "failed to render charts")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func groupChart(g series.Group, window int, port string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Ground Control", Theme: "dark", Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: g.Title, Subtitle: fmt.Sprintf("port=%s window=%d", port, window)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: g.Unit}),
	)
	for _, sr := range g.Series {
		pts := sr.Points()
		if window > 0 && len(pts) > window {
			pts = pts[len(pts)-window:]
		}
		data := make([]opts.LineData, 0, len(pts))
		for _, p := range pts {
			data = append(data, opts.LineData{Value: []interface{}{p.Time, p.Value}})
		}
		line.AddSeries(sr.Name, data)
	}
	return line
}
