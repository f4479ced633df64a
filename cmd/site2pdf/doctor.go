package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	flag "github.com/spf13/pflag"

	"github.com/alnah/go-site2pdf/internal/assets"
	"github.com/alnah/go-site2pdf/internal/config"
	"github.com/alnah/go-site2pdf/internal/store"
)

// doctorResult holds all diagnostic information.
type doctorResult struct {
	Status   string     `json:"status"` // "ready", "warnings", "errors"
	Chrome   chromeInfo `json:"chrome"`
	Env      envInfo    `json:"environment"`
	System   systemInfo `json:"system"`
	Store    storeInfo  `json:"store"`
	Styles   stylesInfo `json:"styles"`
	Warnings []string   `json:"warnings,omitempty"`
	Errors   []string   `json:"errors,omitempty"`
}

// chromeInfo holds Chrome/Chromium detection results.
type chromeInfo struct {
	Found   bool   `json:"found"`
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
	Sandbox bool   `json:"sandbox"`
}

// envInfo holds environment detection results.
type envInfo struct {
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	CPUs          int    `json:"gomaxprocs"`
	Container     bool   `json:"container"`
	ContainerHint string `json:"container_hint,omitempty"`
	CI            bool   `json:"ci"`
	NoSandbox     bool   `json:"no_sandbox"`
	BrowserBin    string `json:"browser_bin,omitempty"`
}

// systemInfo holds filesystem check results.
type systemInfo struct {
	TempWritable      bool   `json:"temp_writable"`
	Workspace         string `json:"workspace"`
	WorkspaceWritable bool   `json:"workspace_writable"`
}

// storeInfo holds session store check results.
type storeInfo struct {
	Backend   string `json:"backend"`
	Addr      string `json:"addr,omitempty"`
	Reachable bool   `json:"reachable"`
}

// stylesInfo holds stylesheet resolution results.
type stylesInfo struct {
	Dir       string   `json:"dir,omitempty"`
	Custom    bool     `json:"custom"`
	Selected  string   `json:"selected"`
	Resolved  bool     `json:"resolved"`
	Available []string `json:"available"`
}

// runDoctorCmd executes the doctor command and returns an exit code.
// Exit codes: 0 = OK (including warnings), 1 = errors found, 2 = bad flags.
func runDoctorCmd(ctx context.Context, args []string, env *Environment) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(env.Stderr)
	jsonOutput := fs.Bool("json", false, "print the report as JSON")
	var common commonFlags
	addCommonFlags(fs, &common)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		fmt.Fprintln(env.Stderr, "error:", err)
		return ExitUsage
	}

	cfg, err := loadConfig(common)
	if err != nil {
		fmt.Fprintln(env.Stderr, "error:", err.Error()+hintFor(err))
		return exitCodeFor(err)
	}

	result := runDoctor(ctx, cfg)

	if *jsonOutput {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	} else {
		printDoctorResult(env.Stdout, result)
	}

	if result.Status == "errors" {
		return ExitGeneral
	}
	return ExitSuccess
}

// runDoctor performs all diagnostic checks.
func runDoctor(ctx context.Context, cfg *config.Config) *doctorResult {
	result := &doctorResult{
		Status: "ready",
		Env: envInfo{
			OS:         runtime.GOOS,
			Arch:       runtime.GOARCH,
			CPUs:       runtime.GOMAXPROCS(0),
			NoSandbox:  cfg.Render.NoSandbox || os.Getenv("ROD_NO_SANDBOX") == "1",
			BrowserBin: cfg.Render.BrowserBin,
		},
	}

	checkChrome(result)
	checkEnvironment(result)
	checkSystem(result, cfg.WorkspaceRoot())
	checkStore(ctx, result, cfg)
	checkStyles(result, cfg.Render)

	if len(result.Errors) > 0 {
		result.Status = "errors"
	} else if len(result.Warnings) > 0 {
		result.Status = "warnings"
	}

	return result
}

// checkChrome detects Chrome/Chromium installation.
func checkChrome(result *doctorResult) {
	chromePath := result.Env.BrowserBin
	if chromePath == "" {
		chromePath = os.Getenv("ROD_BROWSER_BIN")
	}

	if chromePath == "" {
		var found bool
		chromePath, found = launcher.LookPath()
		if !found {
			// rod downloads a browser on first use; that needs network access.
			result.Warnings = append(result.Warnings,
				"Chrome/Chromium not found locally; a browser will be downloaded on first render. Set SITE2PDF_BROWSER_BIN to avoid it")
			return
		}
	}

	if _, err := os.Stat(chromePath); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Chrome not found at %s", chromePath))
		return
	}

	result.Chrome.Found = true
	result.Chrome.Path = chromePath

	// #nosec G204 -- path comes from config or rod's lookup
	out, err := exec.Command(chromePath, "--version").Output()
	if err == nil {
		result.Chrome.Version = strings.TrimSpace(string(out))
	} else {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Could not get Chrome version: %v", err))
	}

	result.Chrome.Sandbox = !result.Env.NoSandbox
}

// checkEnvironment detects container and CI environments.
func checkEnvironment(result *doctorResult) {
	result.Env.Container, result.Env.ContainerHint = isContainer()

	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"}
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			result.Env.CI = true
			break
		}
	}

	if (result.Env.Container || result.Env.CI) && !result.Env.NoSandbox {
		result.Warnings = append(result.Warnings,
			"Container/CI detected but the sandbox is enabled. Set SITE2PDF_NO_SANDBOX=1")
	}
}

// isContainer detects if running in a container environment.
// Returns (isContainer, hint) where hint indicates which signal was detected.
func isContainer() (bool, string) {
	if os.Getenv("SITE2PDF_CONTAINER") == "1" {
		return true, "SITE2PDF_CONTAINER=1"
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true, "/.dockerenv"
	}
	if v := os.Getenv("container"); v != "" {
		return true, "container=" + v
	}
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true, "KUBERNETES_SERVICE_HOST"
	}
	return false, ""
}

// checkSystem verifies the temp dir and the workspace root accept writes.
func checkSystem(result *doctorResult, workspace string) {
	tmpDir := os.TempDir()
	if writable(tmpDir) {
		result.System.TempWritable = true
	} else {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Temp directory not writable: %s", tmpDir))
	}

	result.System.Workspace = workspace
	if err := os.MkdirAll(workspace, 0o750); err == nil && writable(workspace) {
		result.System.WorkspaceWritable = true
	} else {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Workspace root not writable: %s", workspace))
	}
}

func writable(dir string) bool {
	f, err := os.CreateTemp(dir, "site2pdf-doctor-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(filepath.Clean(name))
	return true
}

// checkStore pings the configured session store.
func checkStore(ctx context.Context, result *doctorResult, cfg *config.Config) {
	result.Store.Backend = cfg.Store.Backend
	if cfg.Store.Backend != store.BackendRedis {
		result.Store.Reachable = true
		return
	}
	result.Store.Addr = cfg.Store.Redis.Addr

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	st, err := store.Open(ctx, store.Options{
		Backend:  store.BackendRedis,
		Addr:     cfg.Store.Redis.Addr,
		Password: cfg.Store.Redis.Password,
		DB:       cfg.Store.Redis.DB,
		Prefix:   cfg.Store.Redis.Prefix,
	})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Redis unreachable: %v", err))
		return
	}
	_ = st.Close()
	result.Store.Reachable = true
}

// checkStyles resolves the configured stylesheet the way render does.
func checkStyles(result *doctorResult, rc config.RenderConfig) {
	result.Styles.Dir = rc.StylesDir
	result.Styles.Available = assets.Styles()
	result.Styles.Selected = rc.OverridesCSS
	if result.Styles.Selected == "" {
		result.Styles.Selected = assets.DefaultStyle
	}

	r, err := assets.NewResolver(rc.StylesDir)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Styles directory unusable: %v", err))
		return
	}
	result.Styles.Custom = r.HasCustomLoader()

	if _, err := r.ResolveStylesheet(rc.OverridesCSS); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Stylesheet %q: %v", result.Styles.Selected, err))
		return
	}
	result.Styles.Resolved = true
}

// printDoctorResult outputs human-readable diagnostic results.
func printDoctorResult(w io.Writer, r *doctorResult) {
	fmt.Fprintln(w, "site2pdf doctor")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Chrome/Chromium")
	if r.Chrome.Found {
		fmt.Fprintf(w, "  [OK] Found at %s\n", r.Chrome.Path)
		if r.Chrome.Version != "" {
			fmt.Fprintf(w, "  [OK] Version: %s\n", r.Chrome.Version)
		}
		if r.Chrome.Sandbox {
			fmt.Fprintln(w, "  [OK] Sandbox: enabled")
		} else {
			fmt.Fprintln(w, "  [OK] Sandbox: disabled")
		}
	} else {
		fmt.Fprintln(w, "  [WARN] Not found")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment")
	fmt.Fprintf(w, "  [OK] Platform: %s/%s (GOMAXPROCS %d)\n", r.Env.OS, r.Env.Arch, r.Env.CPUs)
	if r.Env.Container {
		fmt.Fprintf(w, "  [OK] Container: detected (%s)\n", r.Env.ContainerHint)
	}
	if r.Env.CI {
		fmt.Fprintln(w, "  [OK] CI: detected")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "System")
	printCheck(w, r.System.TempWritable, "Temp directory: writable", "Temp directory: not writable")
	printCheck(w, r.System.WorkspaceWritable,
		"Workspace: "+r.System.Workspace, "Workspace: "+r.System.Workspace+" not writable")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Session store")
	if r.Store.Addr != "" {
		printCheck(w, r.Store.Reachable, "Redis at "+r.Store.Addr+": reachable", "Redis at "+r.Store.Addr+": unreachable")
	} else {
		fmt.Fprintf(w, "  [OK] Backend: %s\n", r.Store.Backend)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Styles")
	if r.Styles.Custom {
		fmt.Fprintf(w, "  [OK] Custom directory: %s\n", r.Styles.Dir)
	}
	printCheck(w, r.Styles.Resolved, "Stylesheet: "+r.Styles.Selected, "Stylesheet: "+r.Styles.Selected+" not loadable")
	fmt.Fprintf(w, "  [OK] Built-in: %s\n", strings.Join(r.Styles.Available, ", "))
	fmt.Fprintln(w)

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  [WARN] %s\n", warn)
		}
		fmt.Fprintln(w)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, err := range r.Errors {
			fmt.Fprintf(w, "  [ERROR] %s\n", err)
		}
		fmt.Fprintln(w)
	}

	switch r.Status {
	case "ready":
		fmt.Fprintln(w, "Status: Ready to render")
	case "warnings":
		fmt.Fprintln(w, "Status: Ready with warnings")
	case "errors":
		fmt.Fprintln(w, "Status: Not ready (see errors above)")
	}
}

func printCheck(w io.Writer, ok bool, okText, errText string) {
	if ok {
		fmt.Fprintf(w, "  [OK] %s\n", okText)
		return
	}
	fmt.Fprintf(w, "  [ERROR] %s\n", errText)
}
