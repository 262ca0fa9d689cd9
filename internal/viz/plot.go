package viz

import (
	"github.com/guptarohit/asciigraph"
)

// PlotSeries renders values as an ASCII line chart. Long series are
// averaged down to width points.
func PlotSeries(values []float64, caption string, width, height int) string {
	if len(values) == 0 {
		return caption + ": no data"
	}
	if width > 0 && len(values) > width {
		values = downsample(values, width)
	}
	return asciigraph.Plot(values,
		asciigraph.Height(height),
		asciigraph.Caption(caption),
		asciigraph.Precision(2),
	)
}

// PlotMany overlays several equally long series.
func PlotMany(series [][]float64, caption string, width, height int) string {
	if len(series) == 0 || len(series[0]) == 0 {
		return caption + ": no data"
	}
	data := make([][]float64, len(series))
	for i, s := range series {
		if width > 0 && len(s) > width {
			s = downsample(s, width)
		}
		data[i] = s
	}
	colors := []asciigraph.AnsiColor{asciigraph.Green, asciigraph.Yellow, asciigraph.Cyan, asciigraph.Red, asciigraph.Blue}
	opts := []asciigraph.Option{
		asciigraph.Height(height),
		asciigraph.Caption(caption),
		asciigraph.Precision(2),
	}
	if len(data) <= len(colors) {
		opts = append(opts, asciigraph.SeriesColors(colors[:len(data)]...))
	}
	return asciigraph.PlotMany(data, opts...)
}

func downsample(values []float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		lo := i * len(values) / n
		hi := (i + 1) * len(values) / n
		sum := 0.0
		for _, v := range values[lo:hi] {
			sum += v
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}
