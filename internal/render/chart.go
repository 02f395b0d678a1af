package render

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

// MaxChartPoints caps the points per series; longer sessions are strided.
const MaxChartPoints = 2000

// FrameStats is one charted frame.
type FrameStats struct {
	FrameNumber int
	Timestamp   int64
	Vehicles    int
	MeanSpeed   float64
}

// CollectFrameStats summarises frames, keeping at most MaxChartPoints.
func CollectFrameStats(frames trajectory.FrameBuffer) []FrameStats {
	stride := 1
	if len(frames) > MaxChartPoints {
		stride = int(math.Ceil(float64(len(frames)) / MaxChartPoints))
	}
	out := make([]FrameStats, 0, len(frames)/stride+1)
	for i := 0; i < len(frames); i += stride {
		f := frames[i]
		st := FrameStats{FrameNumber: i, Timestamp: f.Timestamp, Vehicles: len(f.Vehicles)}
		if n := len(f.Vehicles); n > 0 {
			sum := 0.0
			for _, v := range f.Vehicles {
				sum += math.Hypot(v.VX, v.VY)
			}
			st.MeanSpeed = math.Round(sum/float64(n)*100) / 100
		}
		out = append(out, st)
	}
	return out
}

// VehicleChart renders an HTML line chart of vehicles and mean speed per frame.
func VehicleChart(w io.Writer, sessionID string, frames trajectory.FrameBuffer) error {
	stats := CollectFrameStats(frames)
	x := make([]string, len(stats))
	counts := make([]opts.LineData, len(stats))
	speeds := make([]opts.LineData, len(stats))
	for i, s := range stats {
		x[i] = strconv.Itoa(s.FrameNumber)
		counts[i] = opts.LineData{Value: s.Vehicles}
		speeds[i] = opts.LineData{Value: s.MeanSpeed}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Session " + sessionID, Theme: "dark", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Vehicles per frame", Subtitle: fmt.Sprintf("session=%s frames=%d", sessionID, len(frames))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	line.SetXAxis(x).
		AddSeries("vehicles", counts).
		AddSeries("mean speed (m/s)", speeds)

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
