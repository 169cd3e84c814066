package chart

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"PopulationAnalysis/src/processor"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// XYGroup 散点图中的一组点
type XYGroup struct {
	Name   string
	Points []processor.Point
}

// ScatterByGroup 按组着色的散点图，fit为true时叠加全部点的最小二乘直线
func ScatterByGroup(path string, groups []XYGroup, fit bool, opts Options) error {
	p := newPlot(opts)

	var xs, ys []float64
	for i, g := range groups {
		pts := toXYs(g.Points)
		if len(pts) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("创建散点图失败: %w", err)
		}
		sc.Shape = draw.CircleGlyph{}
		sc.Radius = vg.Points(5)
		sc.Color = seriesColor(i, nil)
		p.Add(sc)
		p.Legend.Add(g.Name, sc)
		for _, pt := range pts {
			xs = append(xs, pt.X)
			ys = append(ys, pt.Y)
		}
	}
	if len(xs) == 0 {
		return fmt.Errorf("图表 %q 没有数据", opts.Title)
	}

	if fit {
		alpha, beta, err := processor.FitLinear(xs, ys)
		if err != nil {
			return fmt.Errorf("拟合回归线失败: %w", err)
		}
		line := plotter.NewFunction(func(x float64) float64 { return alpha + beta*x })
		line.XMin, line.XMax = minMax(xs)
		line.Color = color.RGBA{R: 220, A: 255}
		line.Width = vg.Points(2)
		p.Add(line)
	}

	w, h := opts.size()
	return savePlot(p, w, h, path)
}

// Forecast 原始数据散点、测试集预测线与未来预测虚线
func Forecast(path string, f *processor.Forecast, opts Options) error {
	if f == nil || len(f.Observed) == 0 {
		return fmt.Errorf("没有预测结果")
	}
	p := newPlot(opts)

	observed, err := plotter.NewScatter(toXYs(f.Observed))
	if err != nil {
		return fmt.Errorf("创建散点图失败: %w", err)
	}
	observed.Shape = draw.CircleGlyph{}
	observed.Color = color.RGBA{B: 255, A: 255}
	p.Add(observed)
	p.Legend.Add("Observed", observed)

	if len(f.Test) > 0 {
		test, err := plotter.NewLine(toXYs(f.Test))
		if err != nil {
			return fmt.Errorf("创建预测线失败: %w", err)
		}
		test.Color = color.RGBA{R: 255, A: 255}
		test.Width = vg.Points(2)
		p.Add(test)
		p.Legend.Add("Predicted", test)
	}

	if len(f.Future) > 0 {
		future, err := plotter.NewLine(toXYs(f.Future))
		if err != nil {
			return fmt.Errorf("创建未来预测线失败: %w", err)
		}
		future.Color = color.RGBA{G: 128, A: 255}
		future.Width = vg.Points(2)
		future.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
		p.Add(future)
		p.Legend.Add("Future", future)
	}

	w, h := opts.size()
	return savePlot(p, w, h, path)
}

// Stacked 上下排列的两个面板，共享同一组分类标签
func Stacked(path string, top, bottom Panel, opts Options) error {
	return Dashboard(path, []Panel{top, bottom}, 2, 1, opts)
}

// Dashboard rows x cols 网格排列多个面板
func Dashboard(path string, panels []Panel, rows, cols int, opts Options) error {
	if rows*cols < len(panels) || len(panels) == 0 {
		return fmt.Errorf("面板数量 %d 与网格 %dx%d 不匹配", len(panels), rows, cols)
	}

	plots := make([][]*plot.Plot, rows)
	for r := range plots {
		plots[r] = make([]*plot.Plot, cols)
		for c := range plots[r] {
			i := r*cols + c
			if i >= len(panels) {
				continue
			}
			p, err := panels[i].Plot()
			if err != nil {
				return err
			}
			plots[r][c] = p
		}
	}

	// 与plot.Save一致，按扩展名选择输出格式
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	w, h := opts.size()
	img, err := draw.NewFormattedCanvas(w, h, format)
	if err != nil {
		return fmt.Errorf("不支持的图片格式 %q: %w", format, err)
	}
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: rows, Cols: cols,
		PadX: vg.Millimeter * 4, PadY: vg.Millimeter * 4,
		PadTop: vg.Millimeter * 2, PadBottom: vg.Millimeter * 2,
		PadLeft: vg.Millimeter * 2, PadRight: vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, tiles, dc)
	for r := range plots {
		for c := range plots[r] {
			if plots[r][c] != nil {
				plots[r][c].Draw(canvases[r][c])
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建文件 %s 失败: %w", path, err)
	}
	defer out.Close()
	if _, err := img.WriteTo(out); err != nil {
		return fmt.Errorf("保存图表 %s 失败: %w", path, err)
	}
	return nil
}

func toXYs(points []processor.Point) plotter.XYs {
	xys := make(plotter.XYs, 0, len(points))
	for _, p := range points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			continue
		}
		xys = append(xys, plotter.XY{X: p.X, Y: p.Y})
	}
	return xys
}

func minMax(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
