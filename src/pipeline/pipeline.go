// pipeline.go
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"PopulationAnalysis/src/analysis"
	"PopulationAnalysis/src/config"
	"PopulationAnalysis/src/datapush"
	"PopulationAnalysis/src/datasource/email"
	"PopulationAnalysis/src/processor"
	"PopulationAnalysis/src/utils"
)

// Report 一次完整运行的结果
type Report struct {
	Started      time.Time
	Finished     time.Time
	Clean        processor.CleanReport
	FilteredRows int
	Files        []string // 生成的图表
	Workbook     string   // 汇总工作簿，导出失败时为空
	Forecast     *processor.Forecast
	Failures     []string // 失败的步骤
}

// Pipeline 清洗 -> 过滤 -> 各项分析 -> 导出 -> 通知
type Pipeline struct {
	Config     *config.Config
	DataConfig *config.DataConfig
	Logger     analysis.Logger
}

// New 创建流水线
func New(cfg *config.Config, dcfg *config.DataConfig, logger analysis.Logger) *Pipeline {
	return &Pipeline{Config: cfg, DataConfig: dcfg, Logger: logger}
}

// Analyzer 按配置创建分析器
func (p *Pipeline) Analyzer() *analysis.Analyzer {
	return analysis.New(p.DataConfig, p.Logger, processor.ForecastOptions{
		Horizon:  p.Config.Forecast.Horizon,
		TestSize: p.Config.Forecast.TestSize,
		Seed:     p.Config.Forecast.Seed,
	})
}

// Clean 清洗原始数据并记录缺失值统计
func (p *Pipeline) Clean(in, out string) (processor.CleanReport, error) {
	report, err := processor.CleanFile(in, out, p.Config.SheetName, p.DataConfig)
	if err != nil {
		return report, err
	}
	p.Logger.Infof("清洗完成: %d 行, 填充缺失值 %d 个, 年份非数值 %d 个, 已保存到 %s",
		report.Rows, report.TotalMissing(), report.Coerced, out)
	for _, c := range report.Columns {
		if n := report.Missing[c]; n > 0 {
			p.Logger.Infof("  列 %s 缺失 %d 个", c, n)
		}
	}
	return report, nil
}

// Filter 按配置的条件过滤清洗后的数据
func (p *Pipeline) Filter(in, out string, filters []processor.Filter) (int, error) {
	for _, f := range filters {
		p.Logger.Infof("过滤条件: %s", f)
	}
	n, err := processor.FilterFile(in, out, filters, p.DataConfig)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		p.Logger.Warningf("过滤后没有数据: %s", out)
	}
	p.Logger.Infof("过滤完成: 剩余 %d 行, 已保存到 %s", n, out)
	return n, nil
}

// Run 执行完整流程，清洗失败时中止，其余步骤失败记录后继续
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	cfg := p.Config
	report := &Report{Started: time.Now()}

	p.Logger.Infof("步骤1: 清洗数据...")
	clean, err := p.Clean(cfg.RawPath, cfg.CleanedPath)
	if err != nil {
		err = fmt.Errorf("清洗数据失败: %w", err)
		p.Alert(ctx, fmt.Sprintf("人口数据分析中止: %v", err))
		return report, err
	}
	report.Clean = clean

	a := p.Analyzer()
	outDir := cfg.OutputDir
	steps := []struct {
		name string
		run  func() error
	}{
		{"过滤数据", func() error {
			n, err := p.Filter(cfg.CleanedPath, cfg.FilteredPath, processor.ParseFilters(cfg.Filters))
			report.FilteredRows = n
			return err
		}},
		{"趋势分析", func() error {
			files, err := a.Trends(cfg.CleanedPath, filepath.Join(outDir, "trends"))
			report.Files = append(report.Files, files...)
			return err
		}},
		{"人口结构分析", func() error {
			files, err := a.Demographics(cfg.CleanedPath, filepath.Join(outDir, "demographics"))
			report.Files = append(report.Files, files...)
			return err
		}},
		{"经济影响分析", func() error {
			files, err := a.Economy(cfg.CleanedPath, filepath.Join(outDir, "economy"))
			report.Files = append(report.Files, files...)
			return err
		}},
		{"年度对比分析", func() error {
			files, err := a.Compare(cfg.CleanedPath, filepath.Join(outDir, "compare"))
			report.Files = append(report.Files, files...)
			return err
		}},
		{"人口预测", func() error {
			f, files, err := a.Predict(cfg.CleanedPath, filepath.Join(outDir, "predict"))
			report.Forecast = f
			report.Files = append(report.Files, files...)
			return err
		}},
		{"导出汇总工作簿", func() error {
			sheets, err := a.Workbook(cfg.CleanedPath, report.Forecast)
			if err != nil {
				return err
			}
			if err := utils.ExportWorkbook(sheets, cfg.WorkbookPath); err != nil {
				return err
			}
			report.Workbook = cfg.WorkbookPath
			p.Logger.Infof("汇总工作簿已保存到 %s", cfg.WorkbookPath)
			return nil
		}},
	}

	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		p.Logger.Infof("步骤%d: %s...", i+2, s.name)
		if err := s.run(); err != nil {
			p.Logger.Errorf("%s失败: %v", s.name, err)
			report.Failures = append(report.Failures, s.name)
		}
	}

	report.Finished = time.Now()
	p.Logger.Infof("人口数据分析完成: 生成 %d 个图表, 失败步骤 %d 个, 耗时 %v",
		len(report.Files), len(report.Failures), report.Finished.Sub(report.Started))

	p.Notify(ctx, report)
	return report, nil
}

// Alert 推送钉钉文本告警，未配置webhook时跳过
func (p *Pipeline) Alert(ctx context.Context, msg string) {
	if p.Config.Webhook.URL == "" {
		return
	}
	robot := datapush.NewRobot(p.Config.Webhook.URL, p.Config.Webhook.Keyword)
	if err := robot.SendText(ctx, msg); err != nil {
		p.Logger.Errorf("推送钉钉告警失败: %v", err)
	}
}

// Notify 推送钉钉消息并发送报告邮件，未配置的渠道跳过
func (p *Pipeline) Notify(ctx context.Context, report *Report) {
	cfg := p.Config
	if cfg.Webhook.URL != "" {
		robot := datapush.NewRobot(cfg.Webhook.URL, cfg.Webhook.Keyword)
		if err := robot.SendMarkdown(ctx, "人口数据分析报告", report.Markdown()); err != nil {
			p.Logger.Errorf("推送钉钉消息失败: %v", err)
		} else {
			p.Logger.Infof("钉钉消息推送成功")
		}
	}

	if len(cfg.SendEmail.Recipients) > 0 {
		settings := email.SMTPSettings{
			Server:     cfg.SendEmail.Server,
			Username:   cfg.SendEmail.Username,
			Password:   cfg.SendEmail.Password,
			Subject:    cfg.SendEmail.Subject,
			Recipients: cfg.SendEmail.Recipients,
		}
		var attachments []string
		if report.Workbook != "" {
			attachments = append(attachments, report.Workbook)
		}
		if err := email.SendReport(settings, report.Markdown(), attachments, p.Logger); err != nil {
			p.Logger.Errorf("发送报告邮件失败: %v", err)
		}
	}
}

// Markdown 报告摘要
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("### 人口数据分析报告\n\n")
	fmt.Fprintf(&b, "- 数据行数: %d, 填充缺失值: %d\n", r.Clean.Rows, r.Clean.TotalMissing())
	fmt.Fprintf(&b, "- 过滤后行数: %d\n", r.FilteredRows)
	fmt.Fprintf(&b, "- 生成图表: %d 个\n", len(r.Files))
	if r.Forecast != nil && len(r.Forecast.Future) > 0 {
		last := r.Forecast.Future[len(r.Forecast.Future)-1]
		fmt.Fprintf(&b, "- 预测 %.0f 年平均人口: %.1f (测试集MSE %.2f)\n", last.X, last.Y, r.Forecast.MSE)
	}
	if r.Workbook != "" {
		fmt.Fprintf(&b, "- 汇总工作簿: %s\n", r.Workbook)
	}
	if len(r.Failures) > 0 {
		fmt.Fprintf(&b, "- 失败步骤: %s\n", strings.Join(r.Failures, ", "))
	}
	if !r.Finished.IsZero() {
		fmt.Fprintf(&b, "- 耗时: %v\n", r.Finished.Sub(r.Started).Round(time.Millisecond))
	}
	return b.String()
}
