package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL       = "http://localhost:8000"
	DefaultListPageSize = 100
	MaxListPageSize     = 100
	DefaultGridPageSize = 60
)

type Config struct {
	APIURL          string        `yaml:"api_url"`
	CredentialsPath string        `yaml:"credentials_path"`
	DownloadDir     string        `yaml:"download_dir"`
	TokenRequired   bool          `yaml:"token_required"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	ListPageSize    int           `yaml:"list_page_size"`
	GridPageSize    int           `yaml:"grid_page_size"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	LogFile         string        `yaml:"log_file"`
	Stub            Stub          `yaml:"stub"`
}

// Stub configures the in-memory stand-in backend.
type Stub struct {
	ListenAddr string   `yaml:"listen_addr"`
	Templates  []string `yaml:"templates"`
	Token      string   `yaml:"token"`
	Workers    int      `yaml:"workers"`
	Questions  int      `yaml:"questions"`
}

func Defaults() Config {
	dir := stateDir()
	return Config{
		APIURL:          DefaultAPIURL,
		CredentialsPath: filepath.Join(dir, "credentials.json"),
		DownloadDir:     ".",
		RequestTimeout:  30 * time.Second,
		CacheTTL:        30 * time.Second,
		ListPageSize:    DefaultListPageSize,
		GridPageSize:    DefaultGridPageSize,
		LogLevel:        "info",
		LogFormat:       "text",
		LogFile:         filepath.Join(dir, "review.log"),
		Stub: Stub{
			ListenAddr: ":8000",
			Templates:  []string{"default"},
			Workers:    4,
			Questions:  10,
		},
	}
}

func stateDir() string {
	if d, err := os.UserConfigDir(); err == nil {
		return filepath.Join(d, "omr-review")
	}
	return ".omr-review"
}

// Load layers defaults, the optional YAML file at path, a .env file in the
// working directory and OMR_* environment variables, in that order.
// A missing .env is not an error; a missing explicit config file is.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := loadYAML(path, &cfg); err != nil {
			return cfg, err
		}
	}
	// godotenv.Load never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(&cfg)
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.ListPageSize = ClampPageSize(cfg.ListPageSize)
	return cfg, cfg.Validate()
}

func loadYAML(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.APIURL = getenv("OMR_API_URL", cfg.APIURL)
	cfg.CredentialsPath = getenv("OMR_CREDENTIALS_PATH", cfg.CredentialsPath)
	cfg.DownloadDir = getenv("OMR_DOWNLOAD_DIR", cfg.DownloadDir)
	cfg.TokenRequired = getenvBool("OMR_TOKEN_REQUIRED", cfg.TokenRequired)
	cfg.RequestTimeout = getenvDuration("OMR_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.CacheTTL = getenvDuration("OMR_CACHE_TTL", cfg.CacheTTL)
	cfg.ListPageSize = getenvInt("OMR_LIST_PAGE_SIZE", cfg.ListPageSize)
	cfg.GridPageSize = getenvInt("OMR_GRID_PAGE_SIZE", cfg.GridPageSize)
	cfg.LogLevel = getenv("OMR_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenv("OMR_LOG_FORMAT", cfg.LogFormat)
	cfg.LogFile = getenv("OMR_LOG_FILE", cfg.LogFile)
	cfg.Stub.ListenAddr = getenv("OMR_STUB_LISTEN_ADDR", cfg.Stub.ListenAddr)
	cfg.Stub.Token = getenv("OMR_STUB_TOKEN", cfg.Stub.Token)
	cfg.Stub.Workers = getenvInt("OMR_STUB_WORKERS", cfg.Stub.Workers)
	cfg.Stub.Questions = getenvInt("OMR_STUB_QUESTIONS", cfg.Stub.Questions)
	if v := os.Getenv("OMR_STUB_TEMPLATES"); v != "" {
		cfg.Stub.Templates = splitList(v)
	}
}

func (c Config) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api_url %q is not an absolute URL", c.APIURL)
	}
	if c.GridPageSize < 1 {
		return fmt.Errorf("grid_page_size must be positive, got %d", c.GridPageSize)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must not be negative, got %s", c.CacheTTL)
	}
	if c.CredentialsPath == "" {
		return errors.New("credentials_path is required")
	}
	return nil
}

// ClampPageSize bounds a list page size to 1..100; non-positive means default.
func ClampPageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultListPageSize
	case n > MaxListPageSize:
		return MaxListPageSize
	default:
		return n
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
