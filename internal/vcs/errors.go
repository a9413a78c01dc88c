package vcs

import (
	"errors"
	"fmt"
)

// Common errors returned by VCS operations.
//
// These errors can be checked using errors.Is() for proper error handling:
//
//	if errors.Is(err, vcs.ErrPushRejected) {
//	    // The remote moved on; the next pass will pull and retry
//	}
var (
	// ErrNotInVCS is returned when a working copy was expected at a path
	// but none was found.
	ErrNotInVCS = errors.New("not in a VCS working copy")

	// ErrVCSNotAvailable is returned when the required VCS binary
	// (git, hg or svn) is not installed or not in PATH.
	ErrVCSNotAvailable = errors.New("VCS binary not available")

	// ErrTypeMismatch is returned when a working copy on disk belongs to a
	// different VCS than the repository was declared with.
	ErrTypeMismatch = errors.New("working copy type does not match repository type")

	// ErrNoRemote is returned when an operation requires a remote
	// but none is configured.
	ErrNoRemote = errors.New("no remote configured")

	// ErrConflicts is returned when an operation cannot complete
	// due to unresolved conflicts.
	ErrConflicts = errors.New("unresolved conflicts")

	// ErrNotSupported is returned for repository types without a
	// registered backend.
	ErrNotSupported = errors.New("operation not supported by this VCS")

	// ErrPullFailed is wrapped by every *PullError.
	ErrPullFailed = errors.New("pull failed")

	// ErrCommitFailed is wrapped by every *CommitError.
	ErrCommitFailed = errors.New("commit failed")

	// ErrNothingToCommit is returned by Commit when the working copy has no
	// changes. Callers treat it as success.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrPushRejected is matched by a *CommitError whose push was rejected
	// by the remote because it was not a fast-forward.
	ErrPushRejected = errors.New("push rejected by remote")

	// ErrMergeRequired is returned when a pull results in divergent
	// histories that require a merge.
	ErrMergeRequired = errors.New("merge required")

	// ErrTimeout is returned when a VCS operation exceeds its timeout.
	ErrTimeout = errors.New("operation timed out")
)

// PullError reports a failed Pull.
type PullError struct {
	Type   Type
	Source string
	Target string
	Err    error
}

func (e *PullError) Error() string {
	return fmt.Sprintf("%s pull of %s into %s failed: %v", e.Type, e.Source, e.Target, e.Err)
}

func (e *PullError) Unwrap() error { return e.Err }

// Is makes every PullError match ErrPullFailed.
func (e *PullError) Is(target error) bool { return target == ErrPullFailed }

// CommitError reports a failed Commit. Rejected is set when the commit was
// recorded locally but the remote refused the push as a non-fast-forward;
// such an error also matches ErrPushRejected.
type CommitError struct {
	Type     Type
	Path     string
	Rejected bool
	Err      error
}

func (e *CommitError) Error() string {
	if e.Rejected {
		return fmt.Sprintf("%s push from %s rejected: %v", e.Type, e.Path, e.Err)
	}
	return fmt.Sprintf("%s commit in %s failed: %v", e.Type, e.Path, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

func (e *CommitError) Is(target error) bool {
	return target == ErrCommitFailed || (e.Rejected && target == ErrPushRejected)
}

// IsRetryable returns true if the error is likely to succeed on retry.
// This is useful for transient network errors or temporary lock conflicts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Timeouts are often transient
	if errors.Is(err, ErrTimeout) {
		return true
	}

	// Push rejections succeed after the next pull
	if errors.Is(err, ErrPushRejected) {
		return true
	}

	if errors.Is(err, ErrMergeRequired) {
		return true
	}

	return false
}

// IsUserActionRequired returns true if the error requires user intervention
// to resolve (conflicts, divergent history, etc).
func IsUserActionRequired(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrConflicts) {
		return true
	}

	if errors.Is(err, ErrMergeRequired) {
		return true
	}

	// A working copy of the wrong kind has to be removed by hand
	if errors.Is(err, ErrTypeMismatch) {
		return true
	}

	return false
}

// IsFatal returns true if the error indicates a non-recoverable state
// that requires manual intervention or re-initialization.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrNotInVCS) {
		return true
	}

	// Binary not available means we can't execute commands
	if errors.Is(err, ErrVCSNotAvailable) {
		return true
	}

	if errors.Is(err, ErrNotSupported) {
		return true
	}

	return false
}
