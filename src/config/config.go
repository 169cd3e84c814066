package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Config 结构体定义了应用程序的配置结构
type Config struct {
	RawPath       string   `json:"raw_path"`       // 原始数据文件
	CleanedPath   string   `json:"cleaned_path"`   // 清洗后的数据文件
	FilteredPath  string   `json:"filtered_path"`  // 过滤后的数据文件
	OutputDir     string   `json:"output_dir"`     // 图表输出目录
	WorkbookPath  string   `json:"workbook_path"`  // 汇总工作簿
	SheetName     string   `json:"sheet_name"`     // xlsx输入的工作表名称
	LogName       string   `json:"log_name"`       // 日志文件
	LogMaxSize    string   `json:"log_max_size"`   // 例如 "10 * 1024 * 1024"
	LogConsole    bool     `json:"log_console"`    // 日志同时输出到终端
	LogHTTPAddr   string   `json:"log_http_addr"`  // 守护模式下的日志流地址
	CheckInterval Duration `json:"check_interval"` // schedule模式的执行间隔

	// 过滤条件: 列名 -> 值 或 值列表
	Filters map[string]any `json:"filters"`

	Forecast struct {
		Horizon  int     `json:"horizon"`   // 预测年数
		TestSize float64 `json:"test_size"` // 测试集比例
		Seed     int64   `json:"seed"`      // 随机种子
	} `json:"forecast"`

	Email struct {
		Server        string   `json:"server"`         // IMAP服务器地址
		Username      string   `json:"username"`       // 邮箱用户名
		Password      string   `json:"password"`       // 邮箱密码
		TargetSubject string   `json:"target_subject"` // 需要匹配的邮件主题
		CheckInterval Duration `json:"check_interval"` // 检查新邮件的间隔时间
	} `json:"email"`

	SendEmail struct {
		Server     string   `json:"server"`     // SMTP服务器地址
		Username   string   `json:"username"`   // 发件人
		Password   string   `json:"password"`   // 密码/授权码
		Subject    string   `json:"subject"`    // 报告邮件主题
		Recipients []string `json:"recipients"` // 收件人
	} `json:"send_email"`

	Webhook struct {
		URL     string `json:"url"`     // 钉钉机器人webhook
		Keyword string `json:"keyword"` // 机器人安全关键词
	} `json:"webhook"`
}

// DataConfig 数据列与清洗相关配置
type DataConfig struct {
	Columns         map[string]string `json:"columns"`          // 逻辑列名 -> 数据集中的列名
	MissingTokens   []string          `json:"missing_tokens"`   // 视为缺失值的字符串
	EconomicColumns []string          `json:"economic_columns"` // 可选的经济指标列
	Encoding        string            `json:"encoding"`         // 输入文件编码
}

// 逻辑列名
const (
	ColYear       = "year"
	ColRegion     = "region"
	ColPopulation = "population"
	ColDensity    = "density"
	ColLabor      = "labor"
	ColSexRatio   = "sex_ratio"
	ColGrowth     = "growth"
)

var defaultColumns = map[string]string{
	ColYear:       "Year",
	ColRegion:     "Region",
	ColPopulation: "Average population",
	ColDensity:    "Population density",
	ColLabor:      "15+ labor",
	ColSexRatio:   "Sex ratio",
	ColGrowth:     "Population grow ratio",
}

// loader 只加载一次，之后的调用返回同样的结果(包括错误)
type loader struct {
	once     sync.Once
	instance *Config
	data     *DataConfig
	err      error
}

func (l *loader) load(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	l.once.Do(func() {
		l.instance, l.data, l.err = loadConfigs(jsonFolder, jsonFile, dataJsonFile)
	})
	return l.instance, l.data, l.err
}

var defaultLoader loader

// LoadConfig 加载配置，进程内只加载一次
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	return defaultLoader.load(jsonFolder, jsonFile, dataJsonFile)
}

// Load 不经过缓存直接加载配置
func Load(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	return loadConfigs(jsonFolder, jsonFile, dataJsonFile)
}

func loadConfigs(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	dataConfigFile := filepath.Join(jsonFolder, dataJsonFile)

	configData, err := readFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	dataConfigData, err := readFile(dataConfigFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取数据配置文件失败: %w", err)
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parseDataConfig(dataConfigData, dcfgChan, errChan)

	cfg, dcfg, err := waitForResults(cfgChan, dcfgChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	dcfg.applyDefaults()
	return cfg, dcfg, nil
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		errChan <- fmt.Errorf("解析Config失败: %w", err)
		return
	}
	resultChan <- &cfg
}

func parseDataConfig(data []byte, resultChan chan<- *DataConfig, errChan chan<- error) {
	var dcfg DataConfig
	if err := json.Unmarshal(data, &dcfg); err != nil {
		errChan <- fmt.Errorf("解析DataConfig失败: %w", err)
		return
	}
	resultChan <- &dcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg    *Config
		dcfg   *DataConfig
		errors []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return nil, nil, combineErrors(errors)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	msg := "配置加载遇到多个错误:"
	for _, err := range errs {
		msg = fmt.Sprintf("%s\n- %v", msg, err)
	}
	return fmt.Errorf("%s", msg)
}

func (c *Config) applyDefaults() {
	if c.RawPath == "" {
		c.RawPath = filepath.Join("data", "raw", "vietnam_population_2011_2016.csv")
	}
	if c.CleanedPath == "" {
		c.CleanedPath = filepath.Join("data", "cleaned", "cleaned_population.csv")
	}
	if c.FilteredPath == "" {
		c.FilteredPath = filepath.Join("data", "filtered", "filtered_population.csv")
	}
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join("outputs", "visualizations")
	}
	if c.WorkbookPath == "" {
		c.WorkbookPath = filepath.Join("outputs", "summary.xlsx")
	}
	if c.LogName == "" {
		c.LogName = "app.log"
	}
	if c.Filters == nil {
		c.Filters = map[string]any{"Year": 2016}
	}
	if c.Forecast.Horizon <= 0 {
		c.Forecast.Horizon = 10
	}
	if c.Forecast.TestSize <= 0 || c.Forecast.TestSize >= 1 {
		c.Forecast.TestSize = 0.2
	}
	if c.Forecast.Seed == 0 {
		c.Forecast.Seed = 42
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = Duration(time.Hour)
	}
	if c.Email.CheckInterval <= 0 {
		c.Email.CheckInterval = Duration(5 * time.Minute)
	}
}

// applyEnv 环境变量覆盖敏感配置
func (c *Config) applyEnv() {
	if v := os.Getenv("POPSTAT_EMAIL_PASSWORD"); v != "" {
		c.Email.Password = v
	}
	if v := os.Getenv("POPSTAT_SMTP_PASSWORD"); v != "" {
		c.SendEmail.Password = v
	}
	if v := os.Getenv("POPSTAT_WEBHOOK_URL"); v != "" {
		c.Webhook.URL = v
	}
}

func (dc *DataConfig) applyDefaults() {
	if dc.Columns == nil {
		dc.Columns = make(map[string]string, len(defaultColumns))
	}
	for k, v := range defaultColumns {
		if _, ok := dc.Columns[k]; !ok {
			dc.Columns[k] = v
		}
	}
	if len(dc.MissingTokens) == 0 {
		dc.MissingTokens = []string{"", "NA", "NaN", "nan", "null", "N/A"}
	}
	if len(dc.EconomicColumns) == 0 {
		dc.EconomicColumns = []string{"gdp", "unemployment_rate"}
	}
	if dc.Encoding == "" {
		dc.Encoding = "utf-8"
	}
}

// DefaultDataConfig 返回默认数据配置
func DefaultDataConfig() *DataConfig {
	dc := &DataConfig{}
	dc.applyDefaults()
	return dc
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON序列化和反序列化
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON 实现json.Marshaler接口
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Column 返回逻辑列对应的数据集列名
func (dc *DataConfig) Column(key string) string {
	if name, ok := dc.Columns[key]; ok {
		return name
	}
	return defaultColumns[key]
}
