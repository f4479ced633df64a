// Package hints provides actionable error hints for common failure scenarios.
// Hints are formatted consistently as "\n  hint: <text>" for appending to error messages.
package hints

import (
	"os"
	"strings"

	"github.com/alnah/go-site2pdf/internal/fileutil"
)

// IsInContainer detects if running inside a Docker container or similar.
// Checks for /.dockerenv file which Docker creates automatically.
var IsInContainer = func() bool {
	return fileutil.FileExists("/.dockerenv")
}

// inCI reports whether a known CI runner is driving the process.
func inCI() bool {
	for _, name := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"} {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// ForBrowserConnect returns hints for browser connection errors.
// Detects CI/Docker environment and suggests relevant environment variables.
func ForBrowserConnect() string {
	var hints []string

	sandboxOff := os.Getenv("SITE2PDF_NO_SANDBOX") == "1" || os.Getenv("ROD_NO_SANDBOX") == "1"
	if (inCI() || IsInContainer()) && !sandboxOff {
		hints = append(hints, "set SITE2PDF_NO_SANDBOX=1 for Docker/CI")
	}
	if os.Getenv("SITE2PDF_BROWSER_BIN") == "" {
		hints = append(hints, "set SITE2PDF_BROWSER_BIN to use an installed Chrome")
	}
	hints = append(hints, "run 'site2pdf doctor' to check the setup")

	return formatHints(hints)
}

// ForTimeout returns a hint about raising the limits for slow or long pages.
func ForTimeout() string {
	return format("for slow or very long pages, raise --timeout or render.jobTimeout")
}

// ForConfigNotFound returns hints for config file not found errors.
// Suggests --config flag and creating a config in the user config dir.
func ForConfigNotFound(searchedPaths []string) string {
	hint := "use --config /path/to/file.yaml"

	for _, p := range searchedPaths {
		if strings.Contains(p, "go-site2pdf") {
			hint += " or create " + p
			break
		}
	}

	return format(hint)
}

// ForToken returns a hint for a missing or rejected bot token.
func ForToken() string {
	return format("set bot.token or SITE2PDF_BOT_TOKEN to the token issued by @BotFather")
}

// ForRedis returns a hint for an unreachable Redis store.
func ForRedis(addr string) string {
	return format("check that Redis listens on " + addr + " or set store.backend: memory")
}

// ForOutputDirectory returns hints for output directory creation errors.
func ForOutputDirectory() string {
	return format("check parent directory exists and is writable")
}

// ForStyleNotFound returns hints for unknown override stylesheets.
func ForStyleNotFound(available []string) string {
	if len(available) == 0 {
		return ""
	}
	return format("available: " + strings.Join(available, ", ") + ", none")
}

// format creates a single hint string with consistent formatting.
func format(hint string) string {
	if hint == "" {
		return ""
	}
	return "\n  hint: " + hint
}

// formatHints joins multiple hints with consistent formatting.
func formatHints(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	return format(strings.Join(hints, "; "))
}
