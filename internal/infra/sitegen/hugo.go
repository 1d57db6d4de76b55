// Package sitegen wraps the static-site generator binary. The publisher owns
// the workspace layout; this package only runs the build and classifies its
// failures.
package sitegen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"contentmill/internal/observability/metrics"
)

// stderrTailBytes bounds how much of the generator's stderr travels inside a
// BuildError. Hugo prints the useful part of a template error last.
const stderrTailBytes = 2048

// DefaultBuildTimeout bounds one build when the config does not say otherwise.
const DefaultBuildTimeout = 2 * time.Minute

// Hugo runs the hugo binary against a prepared site tree.
type Hugo struct {
	// Binary is the generator executable, resolved via PATH when relative.
	Binary string

	// ConfigPath pins the site configuration file.
	ConfigPath string

	// BaseURL overrides the site's base URL for absolute links.
	BaseURL string

	// Timeout bounds one build end to end.
	Timeout time.Duration
}

// NewHugo returns a builder with defaults filled in: "hugo" on PATH and the
// default timeout.
func NewHugo(binary, configPath, baseURL string, timeout time.Duration) *Hugo {
	if binary == "" {
		binary = "hugo"
	}
	if timeout <= 0 {
		timeout = DefaultBuildTimeout
	}
	return &Hugo{
		Binary:     binary,
		ConfigPath: configPath,
		BaseURL:    baseURL,
		Timeout:    timeout,
	}
}

// BuildError reports a failed generator run with the tail of its stderr.
type BuildError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *BuildError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("site build failed: %v", e.Err)
	}
	return fmt.Sprintf("site build failed: %v: %s", e.Err, e.Stderr)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Build renders the site at workdir into outdir. The process inherits the
// parent environment; a cancelled or expired context kills it.
func (h *Hugo) Build(ctx context.Context, workdir, outdir string) error {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultBuildTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"--source", workdir,
		"--destination", outdir,
		"--quiet",
	}
	if h.ConfigPath != "" {
		args = append(args, "--config", h.ConfigPath)
	}
	if h.BaseURL != "" {
		args = append(args, "--baseURL", h.BaseURL)
	}

	cmd := exec.CommandContext(ctx, h.Binary, args...)
	cmd.Env = os.Environ()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	metrics.RecordSiteBuild(err == nil, time.Since(start))
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &BuildError{
			ExitCode: -1,
			Stderr:   tail(stderr.Bytes()),
			Err:      fmt.Errorf("timed out after %s", timeout),
		}
	}
	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return &BuildError{ExitCode: exitCode, Stderr: tail(stderr.Bytes()), Err: err}
}

func tail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= stderrTailBytes {
		return s
	}
	return s[len(s)-stderrTailBytes:]
}
