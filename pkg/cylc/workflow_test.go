package cylc

import (
	"os"
	"path/filepath"
	"testing"
)

// newRunDir lays out a minimal run directory under a cylc-run root and
// returns its path.
func newRunDir(t *testing.T, version int) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "home", "fred", "cylc-run", "my-suite")
	logDir := filepath.Join(dir, "log")
	if version == 8 {
		logDir = filepath.Join(logDir, "config")
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		t.Fatalf("could not create run directory: %v", err)
	}
	return dir
}

func TestNewDetectsLayoutVersion(t *testing.T) {
	t.Setenv("CYLC_SUITE_OWNER", "")

	testCases := []struct {
		name    string
		version int
	}{
		{name: "log directory only is a cylc 7 run", version: 7},
		{name: "log/config directory is a cylc 8 run", version: 8},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			workflow, err := New(newRunDir(t, tc.version))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if workflow.Version != tc.version {
				t.Errorf("expected version %d, got %d", tc.version, workflow.Version)
			}
			if workflow.Name != "my-suite" {
				t.Errorf("expected workflow name my-suite, got %q", workflow.Name)
			}
			if workflow.Owner != "fred" {
				t.Errorf("expected owner fred, got %q", workflow.Owner)
			}
		})
	}
}

func TestNewRejectsNonRunDirectory(t *testing.T) {
	if _, err := New(t.TempDir()); err == nil {
		t.Error("expected an error for a directory without a log subdirectory")
	}
}

func TestOwnerOverride(t *testing.T) {
	t.Setenv("CYLC_SUITE_OWNER", "barbara")
	workflow, err := New(newRunDir(t, 7))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if workflow.Owner != "barbara" {
		t.Errorf("expected overridden owner barbara, got %q", workflow.Owner)
	}
}

func TestDefaultRunDir(t *testing.T) {
	t.Setenv("CYLC_WORKFLOW_RUN_DIR", "/run/eight")
	t.Setenv("CYLC_SUITE_RUN_DIR", "/run/seven")
	if dir := DefaultRunDir(); dir != "/run/eight" {
		t.Errorf("expected the cylc 8 variable to win, got %q", dir)
	}
	t.Setenv("CYLC_WORKFLOW_RUN_DIR", "")
	if dir := DefaultRunDir(); dir != "/run/seven" {
		t.Errorf("expected the cylc 7 fallback, got %q", dir)
	}
}

func TestWorkflowPaths(t *testing.T) {
	t.Setenv("CYLC_SUITE_OWNER", "")

	t.Run("cylc 7", func(t *testing.T) {
		dir := newRunDir(t, 7)
		for _, file := range []string{
			"suite.rc.processed",
			"cylc-suite.db",
			"log/rose-suite-run.conf",
		} {
			if err := os.WriteFile(filepath.Join(dir, file), nil, 0644); err != nil {
				t.Fatalf("could not seed %s: %v", file, err)
			}
		}
		workflow, err := New(dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got, err := workflow.ProcessedConfigPath(); err != nil || got != filepath.Join(workflow.Path, "suite.rc.processed") {
			t.Errorf("unexpected processed config path %q (err %v)", got, err)
		}
		if got, err := workflow.RunConfPath(); err != nil || got != filepath.Join(workflow.Path, "log", "rose-suite-run.conf") {
			t.Errorf("unexpected run conf path %q (err %v)", got, err)
		}
		if got, err := workflow.DatabasePath(); err != nil || got != filepath.Join(workflow.Path, "cylc-suite.db") {
			t.Errorf("unexpected database path %q (err %v)", got, err)
		}
		if got := workflow.SchedulerLogPath(); got != filepath.Join(workflow.Path, "log", "suite", "log") {
			t.Errorf("unexpected scheduler log path %q", got)
		}
	})

	t.Run("cylc 8", func(t *testing.T) {
		dir := newRunDir(t, 8)
		seeded := filepath.Join(dir, "log", "config", "20240101T000000Z-rose-suite.conf")
		if err := os.WriteFile(seeded, nil, 0644); err != nil {
			t.Fatalf("could not seed processed config: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "log", "db"), nil, 0644); err != nil {
			t.Fatalf("could not seed database: %v", err)
		}
		workflow, err := New(dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		processed := filepath.Join(workflow.Path, "log", "config", "20240101T000000Z-rose-suite.conf")

		if got, err := workflow.ProcessedConfigPath(); err != nil || got != processed {
			t.Errorf("unexpected processed config path %q (err %v)", got, err)
		}
		if got, err := workflow.RunConfPath(); err != nil || got != processed {
			t.Errorf("unexpected run conf path %q (err %v)", got, err)
		}
		if got, err := workflow.DatabasePath(); err != nil || got != filepath.Join(workflow.Path, "log", "db") {
			t.Errorf("unexpected database path %q (err %v)", got, err)
		}
		if got := workflow.SchedulerLogPath(); got != filepath.Join(workflow.Path, "log", "scheduler", "log") {
			t.Errorf("unexpected scheduler log path %q", got)
		}
	})
}

func TestJobOutputPath(t *testing.T) {
	t.Setenv("CYLC_SUITE_OWNER", "")
	workflow, err := New(newRunDir(t, 7))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := filepath.Join(workflow.Path, "log", "job", "1", "atmos-task", "NN", "job.out")
	if got := workflow.JobOutputPath("atmos-task"); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}
