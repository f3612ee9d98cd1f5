package startup

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"clypse/internal/logging"
	"clypse/internal/media"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

func section(title string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("%s", title)
	logging.Info("------------------------------------------------------------")
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration, videos int) {
	section("DATABASE INITIALIZATION")
	logging.Info("  [OK] Database initialized in %v", duration)
	logging.Info("  Catalog entries: %d", videos)
}

// LogToolsInit reports whether the external media tools are on PATH.
// Missing tools are not fatal; ingests fail until they are installed.
func LogToolsInit(names ...string) []media.ToolStatus {
	section("MEDIA TOOLS")
	statuses := media.CheckTools(names...)
	for _, s := range statuses {
		if s.Available {
			logging.Info("  [OK] %-8s %s", s.Name, s.Path)
			continue
		}
		logging.Warn("  %s not found in PATH, uploads will fail to ingest", s.Name)
	}
	return statuses
}

// LogReconcile logs the outcome of the startup reconciliation pass.
func LogReconcile(orphans, artifacts, requeued, failures int) {
	section("STARTUP RECONCILIATION")
	logging.Info("  Orphaned catalog rows removed: %d", orphans)
	logging.Info("  Partial uploads removed:       %d", artifacts)
	logging.Info("  Landing files requeued:        %d", requeued)
	if failures > 0 {
		logging.Warn("  %d step(s) failed, see warnings above", failures)
	}
}

// LogWatcherInit logs filesystem watcher configuration
func LogWatcherInit(debounce time.Duration, dirs ...string) {
	section("WATCHER INITIALIZATION")
	logging.Info("  Settle window: %v", debounce)
	for _, d := range dirs {
		logging.Info("  Watching: %s", d)
	}
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			// Prefix-only routes have no template
			pathTemplate, err = route.GetPathRegexp()
			if err != nil {
				return nil
			}
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs the route count, the routes themselves at debug level,
// and which request classes the access log records.
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	section("HTTP SERVER SETUP")

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("  Failed to walk routes: %v", err)
	}
	logging.Info("  Registered routes: %d", len(routes))

	if logging.IsDebugEnabled() {
		sort.SliceStable(routes, func(i, j int) bool {
			return getRouteGroup(routes[i].Path) < getRouteGroup(routes[j].Path)
		})
		current := "\x00"
		for _, route := range routes {
			if g := getRouteGroup(route.Path); g != current {
				current = g
				if g == "" {
					g = "root"
				}
				logging.Debug("  [%s]", g)
			}
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}

	logging.Info("  Access log: static files %s, health checks %s", onOff(logStaticFiles), onOff(logHealthChecks))
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")
	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		sub := strings.SplitN(parts[1], "/", 2)
		return "api/" + sub[0]
	}
	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs the listen address and the main entry points.
func LogServerStarted(config ServerConfig) {
	section("SERVER STARTED")
	base := "http://localhost:" + config.Port
	logging.Info("  Startup time:  %v", config.StartupDuration.Round(time.Millisecond))
	logging.Info("  Listening on:  0.0.0.0:%s", config.Port)
	logging.Info("  Web client:    %s/", base)
	logging.Info("  Upload API:    %s/api/upload", base)
	logging.Info("  Realtime:      %s/ws", base)
	if config.MetricsEnabled {
		logging.Info("  Metrics:       %s/metrics", base)
	} else {
		logging.Info("  Metrics:       DISABLED")
	}
	logging.Info("------------------------------------------------------------")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	section(fmt.Sprintf("SHUTDOWN INITIATED (received %s)", signal))
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
        __
  _____/ /_  ______  ________
 / ___/ / / / / __ \/ ___/ _ \
/ /__/ / /_/ / /_/ (__  )  __/
\___/_/\__, / .___/____/\___/
      /____/_/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}
	return nil
}

func testWriteAccess(dir string) error {
	f, err := os.CreateTemp(dir, ".clypse-write-test-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_, werr := f.WriteString("ok")
	cerr := f.Close()
	if err := os.Remove(name); err != nil {
		logging.Warn("Failed to remove write probe %s: %v", name, err)
	}
	if werr != nil {
		return werr
	}
	return cerr
}
