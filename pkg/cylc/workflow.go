// Package cylc inspects the completed run directory of a cylc workflow.
// Two incompatible on-disk layouts exist (cylc 7 and cylc 8); the version
// is decided once at construction and every accessor dispatches on it.
package cylc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	processedSuiteRcCylc7 = "suite.rc.processed"
	roseSuiteRunConfCylc7 = "rose-suite-run.conf"
	roseSuiteRunConfCylc8 = "-rose-suite.conf"
	suiteDBFilenameCylc7  = "cylc-suite.db"
	suiteDBFilenameCylc8  = "db"
)

// Workflow is a handle on a cylc run directory.
type Workflow struct {
	// Path is the resolved absolute run directory.
	Path string
	// Version is 7 or 8 depending on the on-disk layout.
	Version int
	// Name is the workflow name relative to the cylc-run root, with any
	// runN symlink resolved.
	Name string
	// Owner is the user the workflow ran as.
	Owner string

	logDir    string
	configDir string
	logger    *logrus.Entry
}

// New probes a run directory and returns a Workflow handle. A directory
// with a log/config subdirectory is a cylc 8 run; one with only a log
// directory is cylc 7; anything else is not a run directory.
func New(path string) (*Workflow, error) {
	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if target, err := filepath.EvalSymlinks(resolved); err == nil {
		resolved = target
	}

	w := &Workflow{
		Path:      resolved,
		Version:   8,
		logDir:    filepath.Join(resolved, "log"),
		logger:    logrus.WithField("component", "cylc"),
	}
	w.configDir = filepath.Join(w.logDir, "config")

	if info, err := os.Stat(w.configDir); err != nil || !info.IsDir() {
		w.Version = 7
		w.configDir = w.logDir
	}
	if _, err := os.Stat(w.configDir); err != nil {
		return nil, fmt.Errorf("not a valid cylc run directory %q: %w", path, err)
	}

	home, name, found := strings.Cut(resolved, "cylc-run/")
	if !found {
		return nil, fmt.Errorf("run directory %q is not under a cylc-run root", resolved)
	}
	w.Name = name
	w.Owner = os.Getenv("CYLC_SUITE_OWNER")
	if w.Owner == "" {
		w.Owner = filepath.Base(strings.TrimRight(home, "/"))
	}

	w.logger.WithFields(logrus.Fields{"version": w.Version, "workflow": w.Name}).Debug("Detected run directory layout")
	return w, nil
}

// DefaultRunDir guesses the run directory from the scheduler's own
// environment, trying the cylc 8 variable first. Returns the empty string
// when neither variable is set.
func DefaultRunDir() string {
	if path := os.Getenv("CYLC_WORKFLOW_RUN_DIR"); path != "" {
		return path
	}
	return os.Getenv("CYLC_SUITE_RUN_DIR")
}

// checked stats a derived path so that a missing file surfaces as an error
// at the point of access rather than as a later read failure.
func checked(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("required workflow file missing: %w", err)
	}
	return path, nil
}

// ProcessedConfigPath locates the processed suite configuration.
func (w *Workflow) ProcessedConfigPath() (string, error) {
	if w.Version == 7 {
		return checked(filepath.Join(w.Path, processedSuiteRcCylc7))
	}
	entries, err := os.ReadDir(w.configDir)
	if err != nil {
		return "", fmt.Errorf("required workflow file missing: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.Contains(entry.Name(), roseSuiteRunConfCylc8) {
			return filepath.Join(w.configDir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("no processed %s file under %s", roseSuiteRunConfCylc8, w.configDir)
}

// RunConfPath locates the rose suite run configuration.
func (w *Workflow) RunConfPath() (string, error) {
	if w.Version == 7 {
		return checked(filepath.Join(w.logDir, roseSuiteRunConfCylc7))
	}
	matches, err := filepath.Glob(filepath.Join(w.configDir, "*"+roseSuiteRunConfCylc8))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("no *%s file under %s", roseSuiteRunConfCylc8, w.configDir)
	}
	return matches[0], nil
}

// DatabasePath locates the scheduler's task-state database.
func (w *Workflow) DatabasePath() (string, error) {
	if w.Version == 7 {
		return checked(filepath.Join(w.Path, suiteDBFilenameCylc7))
	}
	return checked(filepath.Join(w.logDir, suiteDBFilenameCylc8))
}

// SchedulerLogPath is where the scheduler writes its own diagnostics. The
// report points users here when synthesis fails.
func (w *Workflow) SchedulerLogPath() string {
	sub := "scheduler"
	if w.Version == 7 {
		sub = "suite"
	}
	return filepath.Join(w.logDir, sub, "log")
}

// JobOutputPath is the captured stdout of one task's first submit.
func (w *Workflow) JobOutputPath(task string) string {
	return filepath.Join(w.Path, "log", "job", "1", task, "NN", "job.out")
}
