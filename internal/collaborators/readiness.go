package collaborators

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// DirReadinessChecker validates that the session files in a data directory
// are complete enough to train on: every CSV must carry the required columns.
// Sessions that fail the check are skipped, not fatal; the data is "ready"
// when at least one valid session remains.
type DirReadinessChecker struct {
	Dir             string
	RequiredColumns []string
	Logger          *zap.Logger
}

// CheckLatest scans the data directory and returns the usable session IDs
// (file names without extension).
func (c *DirReadinessChecker) CheckLatest(_ context.Context) (bool, []string, map[string]any, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		return false, nil, map[string]any{"error": err.Error()}, fmt.Errorf("reading data dir %s: %w", c.Dir, err)
	}

	var sessions []string
	var skipped []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		path := filepath.Join(c.Dir, entry.Name())
		if err := c.validateSession(path); err != nil {
			c.Logger.Warn("session_file_invalid", zap.String("file", path), zap.Error(err))
			skipped = append(skipped, entry.Name())
			continue
		}
		sessions = append(sessions, strings.TrimSuffix(entry.Name(), ".csv"))
	}

	details := map[string]any{
		"dir":      c.Dir,
		"sessions": len(sessions),
		"skipped":  skipped,
	}
	return len(sessions) > 0, sessions, details, nil
}

// validateSession checks the header row for the required columns and that the
// file contains at least one data row.
func (c *DirReadinessChecker) validateSession(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	have := make(map[string]bool, len(header))
	for _, col := range header {
		have[strings.TrimSpace(col)] = true
	}
	for _, want := range c.RequiredColumns {
		if !have[want] {
			return fmt.Errorf("missing required column %q", want)
		}
	}
	if _, err := r.Read(); err != nil {
		return fmt.Errorf("no data rows: %w", err)
	}
	return nil
}
