package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"PopulationAnalysis/src/config"
	"PopulationAnalysis/src/datasource/email"
	"PopulationAnalysis/src/datasource/file"
	"PopulationAnalysis/src/processor"
	"PopulationAnalysis/src/utils"

	"github.com/robfig/cron"
	"github.com/spf13/cobra"
)

func (a *app) cleanCmd() *cobra.Command {
	var in, out string
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "清洗原始数据: 去除列名空白、填充缺失值",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out = orDefault(in, a.cfg.RawPath), orDefault(out, a.cfg.CleanedPath)
			if _, err := a.pipeline().Clean(in, out); err != nil {
				a.logger.Errorf("清洗数据失败: %v", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "原始数据文件(csv/xlsx)")
	cmd.Flags().StringVar(&out, "out", "", "清洗后的csv")
	return cmd
}

func (a *app) filterCmd() *cobra.Command {
	var in, out string
	var where []string
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "按条件过滤清洗后的数据",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out = orDefault(in, a.cfg.CleanedPath), orDefault(out, a.cfg.FilteredPath)
			filters := processor.ParseFilters(a.cfg.Filters)
			if len(where) > 0 {
				filters = filters[:0]
				for _, w := range where {
					f, err := processor.ParseFilterExpr(w)
					if err != nil {
						return err
					}
					filters = append(filters, f)
				}
			}
			if _, err := a.pipeline().Filter(in, out, filters); err != nil {
				a.logger.Errorf("过滤数据失败: %v", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "清洗后的csv")
	cmd.Flags().StringVar(&out, "out", "", "过滤结果csv")
	cmd.Flags().StringArrayVar(&where, "where", nil, "过滤条件，如 Year=2016 或 Region=A,B，可重复")
	return cmd
}

func (a *app) aggregateCmd() *cobra.Command {
	var in, out, column, fn string
	var by []string
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "按年份和/或地区分组聚合，结果保存为csv或xlsx",
		RunE: func(cmd *cobra.Command, args []string) error {
			in = orDefault(in, a.cfg.CleanedPath)
			agg, err := processor.ParseAggFunc(fn)
			if err != nil {
				return err
			}
			df, err := file.ReadTable(in, file.ReadOptions{
				SheetName: a.cfg.SheetName,
				Encoding:  a.dcfg.Encoding,
				NaNValues: a.dcfg.MissingTokens,
			})
			if err != nil {
				a.logger.Errorf("读取数据失败: %v", err)
				return err
			}
			if len(by) == 0 {
				by = []string{a.dcfg.Column(config.ColYear)}
			}
			column = orDefault(column, a.dcfg.Column(config.ColPopulation))

			groups, err := processor.GroupAggregate(df, by, column, agg)
			if err != nil {
				a.logger.Errorf("分组聚合失败: %v", err)
				return err
			}
			result := processor.GroupsToDataFrame(groups, by, fmt.Sprintf("%s %s", column, agg))
			if out == "" {
				fmt.Print(result)
				return nil
			}
			if strings.EqualFold(filepath.Ext(out), ".xlsx") {
				err = utils.SaveToExcel(result, out)
			} else {
				err = file.WriteCSV(result, out)
			}
			if err != nil {
				a.logger.Errorf("保存聚合结果失败: %v", err)
				return err
			}
			a.logger.Infof("聚合完成: %d 组, 已保存到 %s", len(groups), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "清洗后的csv")
	cmd.Flags().StringVar(&out, "out", "", "结果文件(.csv/.xlsx)，为空时打印")
	cmd.Flags().StringSliceVar(&by, "by", nil, "分组列(默认为年份列)")
	cmd.Flags().StringVar(&column, "column", "", "聚合列(默认为平均人口列)")
	cmd.Flags().StringVar(&fn, "func", "mean", "mean|sum|min|max|median|count")
	return cmd
}

func (a *app) analysisCmd(name, short string) *cobra.Command {
	var in, out string
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			in = orDefault(in, a.cfg.CleanedPath)
			out = orDefault(out, filepath.Join(a.cfg.OutputDir, name))
			an := a.pipeline().Analyzer()

			var files []string
			var err error
			switch name {
			case "trends":
				files, err = an.Trends(in, out)
			case "demographics":
				files, err = an.Demographics(in, out)
			case "economy":
				files, err = an.Economy(in, out)
			case "compare":
				files, err = an.Compare(in, out)
			default:
				return fmt.Errorf("未知的分析: %s", name)
			}
			for _, f := range files {
				a.logger.Infof("已保存: %s", f)
			}
			if err != nil {
				a.logger.Errorf("%s分析失败: %v", name, err)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "清洗后的csv")
	cmd.Flags().StringVar(&out, "out", "", "图表输出目录")
	return cmd
}

func (a *app) predictCmd() *cobra.Command {
	var in, out string
	var horizon int
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "线性回归预测未来的平均人口",
		RunE: func(cmd *cobra.Command, args []string) error {
			in = orDefault(in, a.cfg.CleanedPath)
			out = orDefault(out, filepath.Join(a.cfg.OutputDir, "predict"))
			p := a.withConfig(func(c *config.Config) {
				if horizon > 0 {
					c.Forecast.Horizon = horizon
				}
			})
			f, _, err := p.Analyzer().Predict(in, out)
			if err != nil {
				a.logger.Errorf("预测失败: %v", err)
				return err
			}
			for _, pt := range f.Future {
				fmt.Printf("%.0f\t%.1f\n", pt.X, pt.Y)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "清洗后的csv")
	cmd.Flags().StringVar(&out, "out", "", "图表输出目录")
	cmd.Flags().IntVar(&horizon, "horizon", 0, "预测年数(默认取配置)")
	return cmd
}

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "执行完整流程: 清洗、过滤、分析、导出与通知",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := daemonContext()
			defer cancel()
			if _, err := a.pipeline().Run(ctx); err != nil {
				a.logger.Errorf("运行失败: %v", err)
				return err
			}
			return nil
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "监控数据目录，有新的csv/xlsx时重新执行完整流程",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir = orDefault(dir, rawDir(a.cfg))
			if err := file.EnsureDir(dir); err != nil {
				return err
			}
			monitor, err := file.NewFileMonitor(dir)
			if err != nil {
				return err
			}
			defer monitor.Close()

			ctx, cancel := daemonContext()
			defer cancel()
			startWebUI(ctx, a.logger, a.cfg.LogHTTPAddr)

			a.logger.Infof("开始监控目录 %s，按Ctrl+C退出", dir)
			return monitor.Watch(ctx, func(path string) {
				a.logger.Infof("检测到数据文件更新: %s", path)
				p := a.withConfig(func(c *config.Config) { c.RawPath = path })
				if _, err := p.Run(ctx); err != nil {
					a.logger.Errorf("运行失败: %v", err)
				}
			})
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "监控的目录(默认为原始数据所在目录)")
	return cmd
}

func (a *app) scheduleCmd() *cobra.Command {
	var fetch bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "按check_interval定时执行完整流程",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := daemonContext()
			defer cancel()
			startWebUI(ctx, a.logger, a.cfg.LogHTTPAddr)

			interval := time.Duration(a.cfg.CheckInterval).String() // 例如 "1h0m0s"
			cronSpec := fmt.Sprintf("@every %s", interval)

			c := cron.New()
			err := c.AddFunc(cronSpec, func() {
				a.logger.Infof("开始定时执行(间隔: %v)...", interval)
				a.scheduledRun(ctx, fetch)
			})
			if err != nil {
				a.logger.Errorf("创建定时任务失败: %v", err)
				return err
			}

			c.Start()
			defer c.Stop()

			a.logger.Infof("定时任务已启动(间隔: %v)，按Ctrl+C退出", interval)
			<-ctx.Done()
			a.logger.Infof("收到退出信号，停止定时任务")
			return nil
		},
	}
	cmd.Flags().BoolVar(&fetch, "fetch", false, "每次执行前先从邮箱获取最新数据")
	return cmd
}

// scheduledRun 上一次执行未结束时跳过本次，返回是否执行
func (a *app) scheduledRun(ctx context.Context, fetch bool) bool {
	if !a.runMu.TryLock() {
		a.logger.Warningf("上一次执行尚未结束，跳过本次")
		return false
	}
	defer a.runMu.Unlock()

	raw := a.cfg.RawPath
	if fetch {
		if saved, err := a.fetch(); err != nil {
			a.logger.Errorf("检查处理邮件失败: %v", err)
		} else if len(saved) > 0 {
			raw = saved[0]
		}
	}
	p := a.withConfig(func(c *config.Config) { c.RawPath = raw })
	if _, err := p.Run(ctx); err != nil {
		a.logger.Errorf("运行失败: %v", err)
	}
	return true
}

func (a *app) fetchCmd() *cobra.Command {
	var run bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "从邮箱获取最新的数据附件",
		RunE: func(cmd *cobra.Command, args []string) error {
			saved, err := a.fetch()
			if err != nil {
				a.logger.Errorf("检查处理邮件失败: %v", err)
				return err
			}
			if len(saved) == 0 || !run {
				return nil
			}
			ctx, cancel := daemonContext()
			defer cancel()
			p := a.withConfig(func(c *config.Config) { c.RawPath = saved[0] })
			_, err = p.Run(ctx)
			return err
		},
	}
	cmd.Flags().BoolVar(&run, "run", false, "获取到数据后执行完整流程")
	return cmd
}

// fetch 复用同一个处理器，定时执行时不会重复保存已处理的邮件
func (a *app) fetch() ([]string, error) {
	if a.handler == nil {
		a.handler = email.NewAttachmentHandler(a.cfg.Email.TargetSubject, rawDir(a.cfg))
	}
	mailbox := email.NewMailbox(a.cfg.Email.Server, a.cfg.Email.Username, a.cfg.Email.Password)
	return email.Fetch(mailbox, a.handler, a.logger)
}

// reopenLogsCmd 向运行中的守护进程发送SIGHUP，使其重新打开日志文件
func reopenLogsCmd() *cobra.Command {
	var pid int
	cmd := &cobra.Command{
		Use:   "reopen-logs",
		Short: "通知运行中的进程重新打开日志文件",
		// 不需要加载配置
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			if pid <= 0 {
				return fmt.Errorf("需要指定 --pid")
			}
			if err := syscall.Kill(pid, syscall.SIGHUP); err != nil {
				return fmt.Errorf("发送SIGHUP失败: %w", err)
			}
			fmt.Fprintf(os.Stdout, "已向进程 %d 发送SIGHUP\n", pid)
			return nil
		},
	}
	cmd.Flags().IntVar(&pid, "pid", 0, "目标进程ID")
	return cmd
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
