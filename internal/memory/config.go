package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"github.com/dustin/go-humanize"

	"clypse/internal/logging"
)

// DefaultMemoryRatio is the share of the container limit given to the Go
// heap. The rest is left for ffmpeg and ffprobe.
const DefaultMemoryRatio = 0.75

// ConfigResult describes how GOMEMLIMIT was resolved.
type ConfigResult struct {
	Configured     bool
	Source         string // "GOMEMLIMIT", "MEMORY_LIMIT" or "none"
	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// ConfigureFromEnv sets GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO unless
// GOMEMLIMIT is already set. Call it before significant allocations.
func ConfigureFromEnv() ConfigResult {
	return configure(os.Getenv, debug.SetMemoryLimit)
}

func configure(getenv func(string) string, setLimit func(int64) int64) ConfigResult {
	if raw := getenv("GOMEMLIMIT"); raw != "" {
		res := ConfigResult{Source: "GOMEMLIMIT"}
		if l := setLimit(-1); l > 0 && l < math.MaxInt64 {
			res.Configured = true
			res.GoMemLimit = l
		}
		logging.Info("GOMEMLIMIT set via environment: %s", raw)
		return res
	}

	raw := getenv("MEMORY_LIMIT")
	if raw == "" {
		return ConfigResult{Source: "none"}
	}
	limit, err := humanize.ParseBytes(raw)
	if err != nil || limit == 0 || limit > math.MaxInt64 {
		logging.Warn("Invalid MEMORY_LIMIT %q, GOMEMLIMIT not configured", raw)
		return ConfigResult{Source: "none"}
	}

	ratio := DefaultMemoryRatio
	if r := getenv("MEMORY_RATIO"); r != "" {
		parsed, err := strconv.ParseFloat(r, 64)
		switch {
		case err != nil:
			logging.Warn("Invalid MEMORY_RATIO %q, using %.2f", r, DefaultMemoryRatio)
		case parsed <= 0 || parsed > 1:
			logging.Warn("MEMORY_RATIO %q out of range (0-1], using %.2f", r, DefaultMemoryRatio)
		default:
			ratio = parsed
		}
	}

	goLimit := int64(float64(limit) * ratio)
	setLimit(goLimit)

	logging.Info("Configured GOMEMLIMIT: %s (%.0f%% of %s)",
		humanize.IBytes(uint64(goLimit)), ratio*100, humanize.IBytes(limit))

	return ConfigResult{
		Configured:     true,
		Source:         "MEMORY_LIMIT",
		ContainerLimit: int64(limit),
		GoMemLimit:     goLimit,
		Ratio:          ratio,
	}
}
