package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ===================
// Command Execution Utilities
// ===================

// ExecContext executes a VCS command with timeout and context support.
// This is the one place backends run external commands.
//
// A failing command's error includes its stderr, or its stdout when stderr
// is empty, so callers can classify the failure by message. A command that
// outlives its deadline fails with ErrTimeout, and a missing binary with
// ErrVCSNotAvailable.
//
// Example:
//
//	output, err := ExecContext(ctx, 30*time.Second, repoRoot, "git", "status", "--porcelain")
func ExecContext(ctx context.Context, timeout time.Duration, workDir string, name string, args ...string) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir
	// Keep clients from prompting for credentials or editors
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0", "HGPLAIN=1", "LC_ALL=C")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		command := strings.TrimSpace(name + " " + firstArg(args))
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrVCSNotAvailable, name)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, command)
		}

		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail != "" {
			return stdout.Bytes(), fmt.Errorf("%s: %w: %s", command, err, detail)
		}
		return stdout.Bytes(), fmt.Errorf("%s: %w", command, err)
	}

	return stdout.Bytes(), nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// ===================
// Output Parsing Utilities
// ===================

// ParseLines splits command output into non-empty lines.
// This is a common pattern for parsing VCS command output.
func ParseLines(output []byte) []string {
	if len(output) == 0 {
		return nil
	}

	lines := strings.Split(string(output), "\n")
	result := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			result = append(result, line)
		}
	}

	return result
}

// ParseStatusLines parses "X path" status listings as printed by
// "hg status" and "svn diff --summarize": the first field is a status code,
// the rest of the line a path. Codes in removed mark deletions; every other
// code counts as a modification.
func ParseStatusLines(output []byte, removed string) *Changes {
	changes := &Changes{}
	for _, line := range ParseLines(output) {
		code, path, ok := strings.Cut(line, " ")
		path = strings.TrimSpace(path)
		if !ok || path == "" {
			continue
		}
		path = filepath.ToSlash(path)
		if strings.ContainsAny(code[:1], removed) {
			changes.Removed = append(changes.Removed, path)
		} else {
			changes.Modified = append(changes.Modified, path)
		}
	}
	changes.Normalize()
	return changes
}

// ===================
// Path Utilities
// ===================

// IsSubPath returns true if target is inside base directory.
func IsSubPath(base, target string) bool {
	base = filepath.Clean(base)
	target = filepath.Clean(target)

	relPath, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}

	// If relative path starts with "..", it's outside base
	return relPath != ".." && !strings.HasPrefix(relPath, ".."+string(filepath.Separator))
}

// ===================
// String Utilities
// ===================

// TrimOutput trims whitespace and trailing newlines from command output.
func TrimOutput(output []byte) string {
	return strings.TrimSpace(string(output))
}

// FirstWord returns the first whitespace-separated word from output.
// Useful for extracting single values from command output.
func FirstWord(output []byte) string {
	fields := strings.Fields(TrimOutput(output))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ContainsAny reports whether err's message contains any of the given
// fragments, case-insensitively.
func ContainsAny(err error, fragments ...string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, f := range fragments {
		if strings.Contains(msg, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

// ===================
// Error Utilities
// ===================

// GetExitCode returns the exit code from an error, or -1 if not an exit error.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}
