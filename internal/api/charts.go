package api

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/kmeans.visualiser/internal/httputil"
	"github.com/banshee-data/kmeans.visualiser/internal/kmeans"
)

// echartsAssetsHost serves the echarts JavaScript for rendered pages.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleClustersChart renders the current dataset, partition and centroids
// as an HTML scatter plot. A session that has not stepped yet shows the raw
// dataset in a single series.
func (s *Server) handleClustersChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	s.mu.Lock()
	snap := s.session.Snapshot()
	points := s.session.Points()
	s.mu.Unlock()

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:  "k-means clustering",
			Theme:      s.cfg.GetChartTheme(),
			Width:      "900px",
			Height:     "900px",
			AssetsHost: echartsAssetsHost,
		}),
		charts.WithTitleOpts(opts.Title{Title: chartTitle(snap), Subtitle: chartSubtitle(snap)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "x", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "y", NameLocation: "middle", NameGap: 30}),
	)

	palette := hexColors(generateColors(len(snap.Partition)))
	if snap.Partition == nil {
		scatter.AddSeries("Data Points", scatterData(points),
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	} else {
		for i, group := range snap.Partition {
			scatter.AddSeries(fmt.Sprintf("Cluster %d", i+1), scatterData(group),
				charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
				charts.WithItemStyleOpts(opts.ItemStyle{Color: palette[i]}),
			)
		}
	}
	if len(snap.Centroids) > 0 {
		scatter.AddSeries("Centroids", scatterData(snap.Centroids),
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 16}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#000000"}),
		)
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleClustersPNG renders the same view as handleClustersChart to a PNG.
// Query params:
//   - size (optional; default 6) edge length in inches, between 2 and 20
func (s *Server) handleClustersPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	size := 6.0
	if v := r.URL.Query().Get("size"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed < 2 || parsed > 20 {
			httputil.BadRequest(w, "Invalid 'size' parameter")
			return
		}
		size = parsed
	}

	s.mu.Lock()
	snap := s.session.Snapshot()
	points := s.session.Points()
	s.mu.Unlock()

	p, err := clusterPlot(snap, points)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to build plot: %v", err))
		return
	}

	wt, err := p.WriterTo(vg.Length(size)*vg.Inch, vg.Length(size)*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to encode plot: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

// clusterPlot draws one scatter per cluster, or the whole dataset before
// the first step, with the centroids on top.
func clusterPlot(snap kmeans.Snapshot, points []kmeans.Point) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = chartTitle(snap)
	p.X.Label.Text = "x"
	p.Y.Label.Text = "y"
	p.Add(plotter.NewGrid())

	if snap.Partition == nil {
		sc, err := plotter.NewScatter(toXYs(points))
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)
		p.Legend.Add("Data Points", sc)
	} else {
		colors := generateColors(len(snap.Partition))
		for i, group := range snap.Partition {
			// plotter.NewScatter rejects empty input
			if len(group) == 0 {
				continue
			}
			sc, err := plotter.NewScatter(toXYs(group))
			if err != nil {
				return nil, err
			}
			sc.GlyphStyle.Color = colors[i]
			sc.GlyphStyle.Radius = vg.Points(2)
			p.Add(sc)
			p.Legend.Add(fmt.Sprintf("Cluster %d", i+1), sc)
		}
	}

	if len(snap.Centroids) > 0 {
		sc, err := plotter.NewScatter(toXYs(snap.Centroids))
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = color.Black
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Radius = vg.Points(6)
		p.Add(sc)
		p.Legend.Add("Centroids", sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func chartTitle(snap kmeans.Snapshot) string {
	return fmt.Sprintf("KMeans Clustering - Step %d", snap.Step)
}

func chartSubtitle(snap kmeans.Snapshot) string {
	sub := fmt.Sprintf("state=%s n=%d k=%d", snap.State, snap.N, snap.K)
	if snap.Method != "" {
		sub += " method=" + string(snap.Method)
	}
	if snap.Inertia != nil {
		sub += fmt.Sprintf(" inertia=%.4f", *snap.Inertia)
	}
	return sub
}

func scatterData(points []kmeans.Point) []opts.ScatterData {
	data := make([]opts.ScatterData, len(points))
	for i, p := range points {
		data[i] = opts.ScatterData{Value: []interface{}{p.X, p.Y}}
	}
	return data
}

func toXYs(points []kmeans.Point) plotter.XYs {
	xys := make(plotter.XYs, len(points))
	for i, p := range points {
		xys[i] = plotter.XY{X: p.X, Y: p.Y}
	}
	return xys
}

// generateColors creates a palette of n distinct colors spread around the
// hue circle.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hexColors(colors []color.Color) []string {
	out := make([]string, len(colors))
	for i, c := range colors {
		r, g, b, _ := c.RGBA()
		out[i] = fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
	}
	return out
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
