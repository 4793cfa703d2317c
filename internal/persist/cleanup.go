package persist

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// CleanupOptions selects which persisted records Cleanup deletes.
type CleanupOptions struct {
	// MaxAge deletes records whose close time is older than now minus this
	// duration. Required; a zero MaxAge is rejected.
	MaxAge time.Duration
	// NamePattern, when non-empty, restricts deletion to records whose
	// display name matches this glob pattern.
	NamePattern string
}

// Failure records one file cleanup could not handle.
type Failure struct {
	File   string
	Reason string
}

// CleanupResult tallies one cleanup run.
type CleanupResult struct {
	// Deleted counts records removed.
	Deleted int
	// Skipped counts records younger than the age threshold or not matching
	// the name pattern.
	Skipped int
	// Failed lists files that could not be parsed or deleted, with reasons.
	Failed []Failure
}

// Cleanup deletes persisted records older than the configured age,
// continuing past individual failures. A corrupt or undeletable file lands
// in the Failed tally; it never aborts the rest of the run.
func (st *Store) Cleanup(opts CleanupOptions) (CleanupResult, error) {
	var result CleanupResult

	if opts.MaxAge <= 0 {
		return result, fmt.Errorf("cleanup requires a positive max age")
	}

	var nameGlob glob.Glob
	if opts.NamePattern != "" {
		g, err := glob.Compile(opts.NamePattern)
		if err != nil {
			return result, fmt.Errorf("invalid name pattern %q: %w", opts.NamePattern, err)
		}
		nameGlob = g
	}

	entries, err := os.ReadDir(st.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, fmt.Errorf("read sessions directory: %w", err)
	}

	cutoff := st.now().Add(-opts.MaxAge)
	logger := st.logger.WithOperation("cleanup")

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordExt) {
			continue
		}

		summary, err := st.readSummary(entry.Name())
		if err != nil {
			logger.Warn("cannot inspect record", "file", entry.Name(), "error", err)
			result.Failed = append(result.Failed, Failure{File: entry.Name(), Reason: err.Error()})
			continue
		}

		if !summary.ClosedAt.Before(cutoff) {
			result.Skipped++
			continue
		}
		if nameGlob != nil && !nameGlob.Match(summary.Name) {
			result.Skipped++
			continue
		}

		if err := st.Delete(summary.ID); err != nil {
			logger.Warn("cannot delete record", "session_id", summary.ID, "error", err)
			result.Failed = append(result.Failed, Failure{File: entry.Name(), Reason: err.Error()})
			continue
		}
		logger.Info("record deleted", "session_id", summary.ID, "closed_at", summary.ClosedAt)
		result.Deleted++
	}

	return result, nil
}
