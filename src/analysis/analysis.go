// analysis.go
package analysis

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"PopulationAnalysis/src/chart"
	"PopulationAnalysis/src/config"
	"PopulationAnalysis/src/datasource/file"
	"PopulationAnalysis/src/processor"

	"github.com/go-gota/gota/dataframe"
)

// Logger 分析过程使用的日志接口，storage.Logger实现了它
type Logger interface {
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Analyzer 读取清洗后的数据并生成图表
type Analyzer struct {
	DataConfig *config.DataConfig
	Logger     Logger
	Forecast   processor.ForecastOptions
}

// New 创建分析器
func New(dcfg *config.DataConfig, logger Logger, forecast processor.ForecastOptions) *Analyzer {
	if dcfg == nil {
		dcfg = config.DefaultDataConfig()
	}
	return &Analyzer{DataConfig: dcfg, Logger: logger, Forecast: forecast}
}

func (a *Analyzer) col(key string) string { return a.DataConfig.Column(key) }

// load 读取数据并检查必需的逻辑列
func (a *Analyzer) load(input string, keys ...string) (dataframe.DataFrame, error) {
	df, err := file.ReadTable(input, file.ReadOptions{})
	if err != nil {
		return df, fmt.Errorf("读取数据失败: %w", err)
	}
	a.Logger.Infof("读取数据成功: %s (%d 行)", input, df.Nrow())
	if err := processor.RequireColumns(df, a.cols(keys...)...); err != nil {
		return df, err
	}
	return df, nil
}

func (a *Analyzer) cols(keys ...string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = a.col(k)
	}
	return out
}

type step struct {
	name string
	run  func(df dataframe.DataFrame, outDir string) ([]string, error)
}

// runSteps 依次执行各个分析步骤，单个步骤失败记录日志后继续
func (a *Analyzer) runSteps(df dataframe.DataFrame, outDir string, steps []step) ([]string, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	var files []string
	var errs []error
	for _, s := range steps {
		written, err := s.run(df, outDir)
		files = append(files, written...)
		if err != nil {
			a.Logger.Errorf("%s分析失败: %v", s.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		a.Logger.Infof("%s分析完成，生成 %d 个图表", s.name, len(written))
	}
	return files, errors.Join(errs...)
}

// fileName 将地区名等转换为可用的文件名
func fileName(prefix, name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_")
	return fmt.Sprintf("%s_%s.png", prefix, r.Replace(name))
}

// tableSeries 透视表每一列作为一个序列
func tableSeries(t *processor.Table) []chart.Series {
	series := make([]chart.Series, len(t.Cols))
	for i, c := range t.Cols {
		series[i] = chart.Series{Name: c, Values: t.Column(c)}
	}
	return series
}

func groupLabels(groups []processor.Group) ([]string, []float64) {
	labels := make([]string, len(groups))
	values := make([]float64, len(groups))
	for i, g := range groups {
		labels[i] = g.Key()
		values[i] = g.Value
	}
	return labels, values
}

// perColumnBars 透视表每一列单独输出一张柱状图
func perColumnBars(t *processor.Table, outDir, prefix string, opts func(col string) chart.Options) ([]string, error) {
	var files []string
	for _, c := range t.Cols {
		path := filepath.Join(outDir, fileName(prefix, c))
		if err := chart.Bar(path, t.Rows, t.Column(c), opts(c)); err != nil {
			return files, err
		}
		files = append(files, path)
	}
	return files, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
