// Package versioning generates the standardized model version strings used on
// promotion:
//
//	lap_time_model_{season}_{circuit}_{timestamp}_{trigger_type}_{trigger_id}_{git_commit}
package versioning

import (
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// GitSHA returns the short commit SHA of the working tree, or "unknown" when
// git is unavailable. Best-effort only; version strings must never fail.
func GitSHA() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	sha := strings.TrimSpace(string(out))
	if sha == "" {
		return "unknown"
	}
	return sha
}

// GenerateModelVersion builds the version string for a retrained model. The
// timestamp is UTC, second resolution, without separators.
func GenerateModelVersion(season, circuit, triggerType, triggerID string) string {
	ts := time.Now().UTC().Format("20060102150405")
	return fmt.Sprintf("lap_time_model_%s_%s_%s_%s_%s_%s",
		season, circuit, ts, triggerType, triggerID, GitSHA())
}
