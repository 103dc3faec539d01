package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/PortalExtract/internal/models"
	"github.com/RecoveryAshes/PortalExtract/internal/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Portal    PortalConfig    `mapstructure:"portal"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Files     FilesConfig     `mapstructure:"files"`
	Wait      WaitConfig      `mapstructure:"wait"`
	Resources ResourcesConfig `mapstructure:"resources"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Output    OutputConfig    `mapstructure:"output"`
}

// PortalConfig 门户配置
type PortalConfig struct {
	URL      string `mapstructure:"url"`
	QueryURL string `mapstructure:"query_url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	ControlURL  string `mapstructure:"control_url"`
	Bin         string `mapstructure:"bin"`
	Headless    bool   `mapstructure:"headless"`
	Stealth     bool   `mapstructure:"stealth"`
	HeadersFile string `mapstructure:"headers_file"`
}

// FilesConfig 输入输出文件
type FilesConfig struct {
	Selectors        string `mapstructure:"selectors"`
	Input            string `mapstructure:"input"`
	IdentifierColumn string `mapstructure:"identifier_column"`
	Checkpoint       string `mapstructure:"checkpoint"`
	Output           string `mapstructure:"output"`
}

// WaitConfig 等待与重试
type WaitConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxRetries   int           `mapstructure:"max_retries"`
	AuthAttempts int           `mapstructure:"auth_attempts"`
}

// ResourcesConfig 资源预检
type ResourcesConfig struct {
	MinFreeMemoryMB int `mapstructure:"min_free_memory_mb"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 报告输出配置
type OutputConfig struct {
	ReportDir string `mapstructure:"report_dir"`
}

// envBindings 配置键与环境变量的对应关系
var envBindings = map[string]string{
	"portal.url":          "PORTAL_URL",
	"portal.query_url":    "PORTAL_QUERY_URL",
	"portal.user":         "PORTAL_USER",
	"portal.password":     "PORTAL_PASSWORD",
	"browser.bin":         "DRIVER_PATH",
	"browser.control_url": "CONTROL_URL",
	"files.selectors":     "SELECTORS_FILE",
	"files.checkpoint":    "STREAMING_OUTPUT_PATH",
	"files.output":        "OUTPUT_PATH",
	"logging.level":       "LOG_LEVEL",
}

// LoadConfig 加载配置文件
// 优先级: 默认值 < 配置文件 < 环境变量(含 .env)
func LoadConfig(configPath string) (*Config, error) {
	// .env 不覆盖已存在的环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		utils.Warnf("加载 .env 失败: %v", err)
	}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".portalextract"))
		}
	}

	setDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
	} else {
		utils.Debugf("使用配置文件: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, &models.ConfigError{FilePath: v.ConfigFileUsed(), Cause: fmt.Errorf("解析配置失败: %w", err)}
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	d := models.DefaultExtractionConfig()

	v.SetDefault("browser.headless", d.Headless)
	v.SetDefault("browser.stealth", d.Stealth)

	v.SetDefault("files.selectors", d.SelectorsPath)
	v.SetDefault("files.identifier_column", d.IdentifierColumn)
	v.SetDefault("files.checkpoint", d.CheckpointPath)
	v.SetDefault("files.output", d.OutputPath)

	v.SetDefault("wait.timeout", d.WaitTimeout)
	v.SetDefault("wait.poll_interval", d.PollInterval)
	v.SetDefault("wait.max_retries", d.MaxRetries)
	v.SetDefault("wait.auth_attempts", d.AuthAttempts)

	v.SetDefault("resources.min_free_memory_mb", d.MinFreeMemoryMB)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("output.report_dir", "reports")
}

// ExtractionConfig 从配置中提取运行配置
func (c *Config) ExtractionConfig() models.ExtractionConfig {
	return models.ExtractionConfig{
		PortalURL:        c.Portal.URL,
		QueryURL:         c.Portal.QueryURL,
		User:             c.Portal.User,
		Password:         c.Portal.Password,
		ControlURL:       c.Browser.ControlURL,
		BrowserBin:       c.Browser.Bin,
		Headless:         c.Browser.Headless,
		Stealth:          c.Browser.Stealth,
		SelectorsPath:    c.Files.Selectors,
		InputPath:        c.Files.Input,
		IdentifierColumn: c.Files.IdentifierColumn,
		CheckpointPath:   c.Files.Checkpoint,
		OutputPath:       c.Files.Output,
		WaitTimeout:      c.Wait.Timeout,
		PollInterval:     c.Wait.PollInterval,
		MaxRetries:       c.Wait.MaxRetries,
		AuthAttempts:     c.Wait.AuthAttempts,
		MinFreeMemoryMB:  c.Resources.MinFreeMemoryMB,
	}
}

// LogConfig 从配置中提取日志配置
func (c *Config) LogConfig() utils.LogConfig {
	lc := utils.DefaultLogConfig()
	if c.Logging.Level != "" {
		lc.Level = c.Logging.Level
	}
	if c.Logging.LogDir != "" {
		lc.LogDir = c.Logging.LogDir
	}
	if c.Logging.Rotation.MaxSize > 0 {
		lc.MaxSize = c.Logging.Rotation.MaxSize
	}
	if c.Logging.Rotation.MaxBackups > 0 {
		lc.MaxBackups = c.Logging.Rotation.MaxBackups
	}
	if c.Logging.Rotation.MaxAge > 0 {
		lc.MaxAge = c.Logging.Rotation.MaxAge
	}
	lc.Compress = c.Logging.Rotation.Compress
	return lc
}
