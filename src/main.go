package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"PopulationAnalysis/src/config"
	"PopulationAnalysis/src/datasource/email"
	"PopulationAnalysis/src/pipeline"
	"PopulationAnalysis/src/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// app 命令共享的配置与日志
type app struct {
	configDir string
	cfg       *config.Config
	dcfg      *config.DataConfig
	logger    *storage.Logger
	handler   *email.AttachmentHandler
	runMu     sync.Mutex // 定时任务互斥
}

func main() {
	a := &app{}
	if err := a.rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "popstat",
		Short:         "人口统计数据清洗、分析与可视化",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				a.logger.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "./config", "配置文件目录")

	root.AddCommand(
		a.cleanCmd(),
		a.filterCmd(),
		a.aggregateCmd(),
		a.analysisCmd("trends", "人口密度、平均人口、增长率与劳动力趋势"),
		a.analysisCmd("demographics", "性别比与人口密度"),
		a.analysisCmd("economy", "劳动力、人口增长与地区汇总"),
		a.analysisCmd("compare", "年度对比与经济指标"),
		a.predictCmd(),
		a.runCmd(),
		a.watchCmd(),
		a.scheduleCmd(),
		a.fetchCmd(),
		reopenLogsCmd(),
	)
	return root
}

// setup 加载.env、配置文件并初始化日志
func (a *app) setup() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("加载.env失败: %w", err)
	}

	cfg, dcfg, err := config.LoadConfig(a.configDir, "config.json", "dataconfig.json")
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	a.cfg, a.dcfg = cfg, dcfg

	logger, err := storage.NewLogger(cfg.LogName)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	if cfg.LogMaxSize != "" {
		logger.WithMaxSize(cfg.LogMaxSize)
	}
	if cfg.LogConsole {
		logger.WithConsole(os.Stdout)
	}
	a.logger = logger
	go a.handleReopen()
	return nil
}

// handleReopen 收到SIGHUP时重新打开日志文件，配合外部logrotate
func (a *app) handleReopen() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	for range sigChan {
		if err := a.logger.Reopen(); err != nil {
			fmt.Fprintln(os.Stderr, "重新打开日志失败:", err)
			continue
		}
		a.logger.Info("收到SIGHUP，日志文件已重新打开")
	}
}

func (a *app) pipeline() *pipeline.Pipeline {
	return pipeline.New(a.cfg, a.dcfg, a.logger)
}

// withConfig 以修改后的配置副本创建流水线
func (a *app) withConfig(modify func(c *config.Config)) *pipeline.Pipeline {
	c := *a.cfg
	modify(&c)
	return pipeline.New(&c, a.dcfg, a.logger)
}

// daemonContext SIGINT/SIGTERM时取消
func daemonContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// logsHandler 将日志以chunked方式实时推送给客户端
func logsHandler(logger *storage.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Transfer-Encoding", "chunked")

		logChan := logger.Subscribe()
		defer logger.Unsubscribe(logChan)

		for {
			select {
			case msg, ok := <-logChan:
				if !ok {
					return
				}
				if _, err := fmt.Fprintln(w, msg); err != nil {
					// 客户端断开连接
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			case <-r.Context().Done():
				return
			}
		}
	}
}

// startWebUI 启动/logs日志流服务，ctx取消时关闭
func startWebUI(ctx context.Context, logger *storage.Logger, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/logs", logsHandler(logger))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	go func() {
		logger.Infof("日志流服务已启动: http://%s/logs", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("日志流服务异常: %v", err)
		}
	}()
}

func rawDir(cfg *config.Config) string {
	return filepath.Dir(cfg.RawPath)
}
