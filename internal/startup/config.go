package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"clypse/internal/logging"
)

// containerDataDir marks a container deployment when it exists.
const containerDataDir = "/data"

// Config holds all application configuration
type Config struct {
	Port            string
	DataDir         string
	UploadsDir      string
	VideosDir       string
	MaxUploadSize   int64 // 0 = unlimited
	MaxUploadCount  int   // 0 = unlimited
	WatchDebounce   time.Duration
	CleanupInterval time.Duration
	CleanupMaxAge   time.Duration
	ToolTimeout     time.Duration
	QueueSize       int
	MetricsEnabled  bool
	LogStaticFiles  bool
	LogHealthChecks bool

	// Derived paths
	ThumbnailsDir string
	DatabasePath  string
}

// MaxUploadSizeString is the human readable upload limit.
func (c *Config) MaxUploadSizeString() string {
	return FormatSize(c.MaxUploadSize)
}

// LoadConfig reads configuration from the environment, seeded from a .env
// file in the working directory when one exists, and prepares the working
// directories. Directory failures are returned as errors; the caller treats
// them as fatal.
func LoadConfig() (*Config, error) {
	loadDotEnv()

	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	logging.Info("  PORT:              %s", cfg.Port)
	logging.Info("  DATA_DIR:          %s", cfg.DataDir)
	logging.Info("  UPLOADS_DIR:       %s", cfg.UploadsDir)
	logging.Info("  VIDEOS_DIR:        %s", cfg.VideosDir)
	logging.Info("  MAX_UPLOAD_SIZE:   %s", cfg.MaxUploadSizeString())
	logging.Info("  MAX_UPLOAD_COUNT:  %s", formatCount(cfg.MaxUploadCount))
	logging.Info("  WATCH_DEBOUNCE:    %v", cfg.WatchDebounce)
	logging.Info("  CLEANUP_INTERVAL:  %v", cfg.CleanupInterval)
	logging.Info("  CLEANUP_MAX_AGE:   %v", cfg.CleanupMaxAge)
	logging.Info("  TOOL_TIMEOUT:      %v", cfg.ToolTimeout)
	logging.Info("  QUEUE_SIZE:        %d", cfg.QueueSize)
	logging.Info("  METRICS_ENABLED:   %v", cfg.MetricsEnabled)
	logging.Info("  LOG_STATIC_FILES:  %v", cfg.LogStaticFiles)
	logging.Info("  LOG_HEALTH_CHECKS: %v", cfg.LogHealthChecks)
	logging.Info("  LOG_LEVEL:         %s", logging.GetLevel())

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	for _, d := range []struct{ path, name string }{
		{cfg.DataDir, "data"},
		{cfg.UploadsDir, "uploads"},
		{cfg.VideosDir, "videos"},
		{cfg.ThumbnailsDir, "thumbnails"},
	} {
		if err := ensureDirectory(d.path, d.name); err != nil {
			return nil, fmt.Errorf("%s directory error: %w", d.name, err)
		}
		if err := testWriteAccess(d.path); err != nil {
			return nil, fmt.Errorf("%s directory is not writable: %w", d.name, err)
		}
		logging.Info("  [OK] %-10s %s", d.name, d.path)
	}

	return cfg, nil
}

// Resolve loads a .env file if present and builds the Config without logging
// or creating directories. Offline tools use it to share the server's view of
// the filesystem.
func Resolve() (*Config, error) {
	loadDotEnv()
	return FromEnv()
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Warn("Failed to load .env file: %v", err)
	}
}

// FromEnv builds a Config from environment variables without touching the
// filesystem beyond resolving defaults.
func FromEnv() (*Config, error) {
	dataDir, uploadsDir, videosDir := defaultDirs()

	cfg := &Config{
		Port:            getEnv("PORT", "3000"),
		DataDir:         getEnv("DATA_DIR", dataDir),
		UploadsDir:      getEnv("UPLOADS_DIR", uploadsDir),
		VideosDir:       getEnv("VIDEOS_DIR", videosDir),
		WatchDebounce:   getEnvDuration("WATCH_DEBOUNCE", 2*time.Second),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", time.Hour),
		CleanupMaxAge:   getEnvDuration("CLEANUP_MAX_AGE", time.Hour),
		ToolTimeout:     getEnvDuration("TOOL_TIMEOUT", 5*time.Minute),
		QueueSize:       getEnvInt("QUEUE_SIZE", 1024),
		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		LogStaticFiles:  getEnvBool("LOG_STATIC_FILES", false),
		LogHealthChecks: getEnvBool("LOG_HEALTH_CHECKS", true),
	}

	if size, ok := ParseSize(os.Getenv("MAX_UPLOAD_SIZE")); ok {
		cfg.MaxUploadSize = size
	} else if v := os.Getenv("MAX_UPLOAD_SIZE"); v != "" {
		logging.Warn("  Invalid MAX_UPLOAD_SIZE %q, uploads are unlimited", v)
	}
	if n := getEnvInt("MAX_UPLOAD_COUNT", 0); n > 0 {
		cfg.MaxUploadCount = n
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}

	for _, p := range []*string{&cfg.DataDir, &cfg.UploadsDir, &cfg.VideosDir} {
		abs, err := filepath.Abs(*p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve directory path %s: %w", *p, err)
		}
		*p = abs
	}
	cfg.ThumbnailsDir = filepath.Join(cfg.VideosDir, "thumbnails")
	cfg.DatabasePath = filepath.Join(cfg.DataDir, "clypse.db")

	return cfg, nil
}

// defaultDirs returns absolute root-level directories inside a container and
// working-directory relative ones otherwise.
func defaultDirs() (data, uploads, videos string) {
	if info, err := os.Stat(containerDataDir); err == nil && info.IsDir() {
		return "/data", "/uploads", "/videos"
	}
	return "data", "uploads", "videos"
}

var sizeRe = regexp.MustCompile(`^(\d+)([BKMGT])?$`)

var sizeUnits = map[string]int64{
	"":  1,
	"B": 1,
	"K": 1 << 10,
	"M": 1 << 20,
	"G": 1 << 30,
	"T": 1 << 40,
}

// ParseSize parses sizes such as "500M" or "2G". ok is false for empty or
// malformed input, which callers treat as unlimited.
func ParseSize(s string) (int64, bool) {
	m := sizeRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n * sizeUnits[m[2]], true
}

// FormatSize renders a byte count with binary units, or "Unlimited" for 0.
func FormatSize(bytes int64) string {
	if bytes <= 0 {
		return "Unlimited"
	}
	units := []string{"Bytes", "KB", "MB", "GB", "TB"}
	v := float64(bytes)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	rounded, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	return strconv.FormatFloat(rounded, 'f', -1, 64) + " " + units[i]
}

func formatCount(n int) string {
	if n <= 0 {
		return "Unlimited"
	}
	return strconv.Itoa(n)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		logging.Warn("Invalid duration for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
