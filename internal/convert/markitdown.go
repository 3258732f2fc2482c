package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// MarkItDown converts documents by shelling out to the markitdown CLI.
// The binary carries all format-specific logic (PDF, DOCX, HTML, images,
// audio); this wrapper only runs it and interprets its exit status.
type MarkItDown struct {
	binaryPath string
}

// NewMarkItDown creates a converter using the given binary path. An empty
// path triggers a search of PATH and common install locations. A missing
// binary is not fatal here: Convert reports it as a per-file
// MissingSystemDependency failure instead.
func NewMarkItDown(binaryPath string) *MarkItDown {
	if binaryPath == "" {
		binaryPath, _ = findMarkItDownBinary()
	}
	return &MarkItDown{binaryPath: binaryPath}
}

// Available reports whether the markitdown binary was located.
func (m *MarkItDown) Available() bool {
	return m.binaryPath != ""
}

// Convert runs markitdown on the staged file and returns its stdout as
// Markdown. No timeout is imposed beyond what ctx carries.
func (m *MarkItDown) Convert(ctx context.Context, path string) (string, error) {
	if m.binaryPath == "" {
		return "", &Error{
			Kind: MissingSystemDependency,
			Path: path,
			Err:  fmt.Errorf("markitdown binary not found; install it with: pip install markitdown"),
		}
	}

	cmd := exec.CommandContext(ctx, m.binaryPath, path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", &Error{Kind: ConversionFailed, Path: path, Stderr: stderr.String(), Err: ctx.Err()}
		}
		return "", &Error{
			Kind:   classifyStderr(stderr.String()),
			Path:   path,
			Stderr: stderr.String(),
			Err:    fmt.Errorf("markitdown: %w: %s", err, firstLine(stderr.String())),
		}
	}

	return stdout.String(), nil
}

// classifyStderr buckets a markitdown failure by the exception names its
// Python implementation prints.
func classifyStderr(stderr string) FailureKind {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "unsupportedformat"),
		strings.Contains(lower, "unsupported format"),
		strings.Contains(lower, "no converter"):
		return UnsupportedFormat
	case strings.Contains(lower, "missingdependency"),
		strings.Contains(lower, "missing dependency"),
		strings.Contains(lower, "command not found"),
		strings.Contains(lower, "no such file or directory: 'ffmpeg'"),
		strings.Contains(lower, "no such file or directory: 'exiftool'"):
		return MissingSystemDependency
	default:
		return ConversionFailed
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// findMarkItDownBinary locates the markitdown binary in PATH or common
// install locations.
func findMarkItDownBinary() (string, error) {
	if path, err := exec.LookPath("markitdown"); err == nil {
		return path, nil
	}

	candidates := []string{
		"/usr/local/bin/markitdown",
		"/usr/bin/markitdown",
		"/opt/homebrew/bin/markitdown",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("markitdown binary not found")
}
