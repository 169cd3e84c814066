// chart.go
package chart

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"PopulationAnalysis/src/utils"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// LabelWidth 分类标签折行宽度
const LabelWidth = 15

// Kind 面板类型
type Kind int

const (
	KindBar Kind = iota
	KindLine
)

// Options 图表标题、坐标轴与尺寸
type Options struct {
	Title  string
	XLabel string
	YLabel string
	Width  vg.Length // 默认10英寸
	Height vg.Length // 默认6英寸

	LegendTitle string
	RotateX     bool // X轴标签倾斜45度
	Color       color.Color
}

func (o Options) size() (vg.Length, vg.Length) {
	w, h := o.Width, o.Height
	if w == 0 {
		w = 10 * vg.Inch
	}
	if h == 0 {
		h = 6 * vg.Inch
	}
	return w, h
}

// Series 一条数据序列，Values与分类标签一一对应，缺失为NaN
type Series struct {
	Name   string
	Values []float64
}

// Panel 一个分类坐标的柱状图或折线图
type Panel struct {
	Kind    Kind
	Labels  []string
	Series  []Series
	Options Options
}

// Bar 单序列柱状图
func Bar(path string, labels []string, values []float64, opts Options) error {
	return Save(path, Panel{Kind: KindBar, Labels: labels, Series: []Series{{Values: values}}, Options: opts})
}

// GroupedBar 多序列分组柱状图，每个分类下并排显示各序列
func GroupedBar(path string, labels []string, series []Series, opts Options) error {
	return Save(path, Panel{Kind: KindBar, Labels: labels, Series: series, Options: opts})
}

// Lines 多序列折线图(带点)
func Lines(path string, labels []string, series []Series, opts Options) error {
	return Save(path, Panel{Kind: KindLine, Labels: labels, Series: series, Options: opts})
}

// Save 渲染单个面板并保存，格式由扩展名决定
func Save(path string, panel Panel) error {
	p, err := panel.Plot()
	if err != nil {
		return err
	}
	w, h := panel.Options.size()
	return savePlot(p, w, h, path)
}

// Plot 构建面板对应的plot
func (pn Panel) Plot() (*plot.Plot, error) {
	if len(pn.Labels) == 0 {
		return nil, fmt.Errorf("图表 %q 没有数据", pn.Options.Title)
	}
	for _, s := range pn.Series {
		if len(s.Values) != len(pn.Labels) {
			return nil, fmt.Errorf("序列 %q 长度 %d 与标签数量 %d 不一致", s.Name, len(s.Values), len(pn.Labels))
		}
	}

	p := newPlot(pn.Options)
	switch pn.Kind {
	case KindBar:
		if err := addBars(p, pn.Series, pn.Options.Color); err != nil {
			return nil, err
		}
	case KindLine:
		if err := addLines(p, pn.Series, pn.Options.Color); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("未知的面板类型: %d", pn.Kind)
	}

	labels := make([]string, len(pn.Labels))
	for i, l := range pn.Labels {
		labels[i] = utils.WrapText(l, LabelWidth)
	}
	p.NominalX(labels...)
	if pn.Options.RotateX {
		p.X.Tick.Label.Rotation = math.Pi / 4
		p.X.Tick.Label.XAlign = draw.XRight
		p.X.Tick.Label.YAlign = draw.YCenter
	}
	return p, nil
}

func newPlot(opts Options) *plot.Plot {
	p := plot.New()
	p.Title.Text = opts.Title
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = opts.XLabel
	p.Y.Label.Text = opts.YLabel

	// 只画Y方向的虚线网格
	grid := plotter.NewGrid()
	grid.Vertical.Color = nil
	grid.Horizontal.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	grid.Horizontal.Color = color.Gray{Y: 180}
	p.Add(grid)

	p.Legend.Top = true
	if opts.LegendTitle != "" {
		p.Legend.Add(opts.LegendTitle)
	}
	return p
}

func seriesColor(i int, fixed color.Color) color.Color {
	if fixed != nil {
		return fixed
	}
	return plotutil.Color(i)
}

func addBars(p *plot.Plot, series []Series, fixed color.Color) error {
	n := len(series)
	width := vg.Points(40)
	if n > 1 {
		width = vg.Points(math.Max(6, 60/float64(n)))
	}

	for i, s := range series {
		// 柱状图不接受NaN，缺失值画为0高度
		values := make(plotter.Values, len(s.Values))
		for j, v := range s.Values {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				values[j] = v
			}
		}
		bars, err := plotter.NewBarChart(values, width)
		if err != nil {
			return fmt.Errorf("创建柱状图失败: %w", err)
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = seriesColor(i, fixed)
		bars.Offset = vg.Length(float64(i)-float64(n-1)/2) * width
		p.Add(bars)
		if s.Name != "" {
			p.Legend.Add(s.Name, bars)
		}
	}
	return nil
}

func addLines(p *plot.Plot, series []Series, fixed color.Color) error {
	for i, s := range series {
		var xys plotter.XYs
		for j, v := range s.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			xys = append(xys, plotter.XY{X: float64(j), Y: v})
		}
		if len(xys) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(xys)
		if err != nil {
			return fmt.Errorf("创建折线图失败: %w", err)
		}
		c := seriesColor(i, fixed)
		line.Color = c
		line.Width = vg.Points(2)
		points.Shape = draw.CircleGlyph{}
		points.Color = c
		points.Radius = vg.Points(3)
		p.Add(line, points)
		if s.Name != "" {
			p.Legend.Add(s.Name, line, points)
		}
	}
	return nil
}

func savePlot(p *plot.Plot, w, h vg.Length, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	if err := p.Save(w, h, path); err != nil {
		return fmt.Errorf("保存图表 %s 失败: %w", path, err)
	}
	return nil
}
