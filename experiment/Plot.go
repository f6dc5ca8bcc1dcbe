package experiment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samuelfneumann/lrl/agent"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Plot saves one line plot per non-empty channel of logger to
// dir/<channel>.png, using the channel's axis labels. It returns the
// paths of the saved plots.
func Plot(logger *agent.Logger, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("plot: %w", err)
	}

	var paths []string
	for i, channel := range logger.Channels() {
		series := logger.Channel(channel)
		if len(series) == 0 {
			continue
		}

		p := plot.New()
		p.Title.Text = channel
		labels := logger.Labels[channel]
		p.X.Label.Text = labels.X
		p.Y.Label.Text = labels.Y

		points := make(plotter.XYs, len(series))
		for j, v := range series {
			points[j] = plotter.XY{X: float64(j), Y: v}
		}
		line, err := plotter.NewLine(points)
		if err != nil {
			return paths, fmt.Errorf("plot: %v: %v", channel, err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)

		path := filepath.Join(dir, channel+".png")
		if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
			return paths, fmt.Errorf("plot: %v: %w", channel, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
