package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DaemonPort      int            `mapstructure:"daemon_port"`
	DBPath          string         `mapstructure:"db_path"`
	MediaRoot       string         `mapstructure:"media_root"`
	StagingDir      string         `mapstructure:"staging_dir"`
	IgnoreList      []string       `mapstructure:"ignore_list"`
	MediaExtensions []string       `mapstructure:"media_extensions"`
	Scan            ScanConfig     `mapstructure:"scan"`
	Engine          EngineConfig   `mapstructure:"engine"`
	FTP             FTPConfig      `mapstructure:"ftp"`
	Download        DownloadConfig `mapstructure:"download"`
	FFmpeg          FFmpegConfig   `mapstructure:"ffmpeg"`
}

type ScanConfig struct {
	MaxDepth   int `mapstructure:"max_depth"`
	MaxEntries int `mapstructure:"max_entries"`
}

type EngineConfig struct {
	ItemTimeout time.Duration  `mapstructure:"item_timeout"`
	ItemRetries int            `mapstructure:"item_retries"`
	ETAWindow   int            `mapstructure:"eta_window"`
	Concurrency map[string]int `mapstructure:"concurrency"`
}

type FTPConfig struct {
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type DownloadConfig struct {
	Backend   string `mapstructure:"backend"`
	UserAgent string `mapstructure:"user_agent"`
	YTDLPPath string `mapstructure:"ytdlp_path"`
	MaxURLs   int    `mapstructure:"max_urls"`
}

type FFmpegConfig struct {
	Binary      string `mapstructure:"binary"`
	ProbeBinary string `mapstructure:"probe_binary"`
}

var Default = Config{
	DaemonPort: 9101,
	DBPath:     "streamjobs.db",
	MediaRoot:  "media",
	StagingDir: "staging",
	IgnoreList: []string{".git", ".DS_Store", "*.tmp", "*.swp"},
	MediaExtensions: []string{
		"mp4", "avi", "mov", "wmv", "flv", "webm", "mkv", "m4v",
		"mpg", "mpeg", "3gp", "ts", "m2ts", "ogv", "f4v",
	},
	Scan: ScanConfig{
		MaxDepth:   32,
		MaxEntries: 50000,
	},
	Engine: EngineConfig{
		ItemTimeout: 2 * time.Hour,
		ItemRetries: 1,
		ETAWindow:   5,
		Concurrency: map[string]int{
			"migration":  1,
			"download":   2,
			"conversion": 1,
		},
	},
	FTP: FTPConfig{
		DialTimeout: 15 * time.Second,
	},
	Download: DownloadConfig{
		Backend:   "http",
		UserAgent: "streamjobs/1.0",
		YTDLPPath: "yt-dlp",
		MaxURLs:   50,
	},
	FFmpeg: FFmpegConfig{
		Binary:      "ffmpeg",
		ProbeBinary: "ffprobe",
	},
}

var (
	mu sync.Mutex
	v  *viper.Viper
)

func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}

	return filepath.Join(home, ".streamjobs"), nil
}

func Load() (*Config, error) {
	configDir, err := Dir()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config dir: %w", err)
	}

	nv := viper.New()
	nv.SetConfigName("config")
	nv.SetConfigType("yaml")
	nv.AddConfigPath(configDir)

	nv.SetDefault("daemon_port", Default.DaemonPort)
	nv.SetDefault("db_path", filepath.Join(configDir, Default.DBPath))
	nv.SetDefault("media_root", filepath.Join(configDir, Default.MediaRoot))
	nv.SetDefault("staging_dir", filepath.Join(configDir, Default.StagingDir))
	nv.SetDefault("ignore_list", Default.IgnoreList)
	nv.SetDefault("media_extensions", Default.MediaExtensions)
	nv.SetDefault("scan.max_depth", Default.Scan.MaxDepth)
	nv.SetDefault("scan.max_entries", Default.Scan.MaxEntries)
	nv.SetDefault("engine.item_timeout", Default.Engine.ItemTimeout)
	nv.SetDefault("engine.item_retries", Default.Engine.ItemRetries)
	nv.SetDefault("engine.eta_window", Default.Engine.ETAWindow)
	nv.SetDefault("engine.concurrency", Default.Engine.Concurrency)
	nv.SetDefault("ftp.dial_timeout", Default.FTP.DialTimeout)
	nv.SetDefault("download.backend", Default.Download.Backend)
	nv.SetDefault("download.user_agent", Default.Download.UserAgent)
	nv.SetDefault("download.ytdlp_path", Default.Download.YTDLPPath)
	nv.SetDefault("download.max_urls", Default.Download.MaxURLs)
	nv.SetDefault("ffmpeg.binary", Default.FFmpeg.Binary)
	nv.SetDefault("ffmpeg.probe_binary", Default.FFmpeg.ProbeBinary)

	// Variables already set in the environment win over the .env file.
	if err := godotenv.Load(filepath.Join(configDir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	nv.SetEnvPrefix("STREAMJOBS")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()

	if err := nv.ReadInConfig(); err != nil {
		if _, ok := errors.AsType[viper.ConfigFileNotFoundError](err); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := decode(nv)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	v = nv
	mu.Unlock()

	return cfg, nil
}

// Watch re-reads the config file on every change and hands the new values to
// onChange. It only works after Load found a config file on disk.
func Watch(onChange func(*Config, fsnotify.Event)) {
	mu.Lock()
	nv := v
	mu.Unlock()

	if nv == nil || nv.ConfigFileUsed() == "" {
		return
	}

	nv.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		cfg, err := decode(nv)
		if err != nil {
			return
		}

		onChange(cfg, e)
	})
	nv.WatchConfig()
}

func decode(nv *viper.Viper) (*Config, error) {
	var cfg Config
	if err := nv.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ConcurrencyFor returns the configured parallelism for a job kind, never below 1.
func (c *Config) ConcurrencyFor(kind string) int {
	if n := c.Engine.Concurrency[kind]; n > 0 {
		return n
	}

	return 1
}
