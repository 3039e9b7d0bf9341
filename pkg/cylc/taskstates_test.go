package cylc

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestTaskStates(t *testing.T) {
	workflow := seedWorkflow(t, nil)

	db, err := sql.Open("sqlite", filepath.Join(workflow.Path, "cylc-suite.db"))
	require.NoError(t, err, "could not create scheduler database")
	_, err = db.Exec(`create table task_states (name text, status text);`)
	require.NoError(t, err, "could not create task_states")
	for _, row := range [][2]string{
		{"atmos-main", "succeeded"},
		{"rose_ana_atmos_omp_vs_control", "failed"},
		{"housekeep_logs", "succeeded"},
	} {
		_, err = db.Exec(`insert into task_states (name, status) values (?, ?);`, row[0], row[1])
		require.NoError(t, err, "could not insert task state")
	}
	require.NoError(t, db.Close())

	states, err := workflow.TaskStates()
	require.NoError(t, err)
	expected := map[string]string{
		"atmos-main":                    "succeeded",
		"rose_ana_atmos_omp_vs_control": "failed",
		"housekeep_logs":                "succeeded",
	}
	if diff := cmp.Diff(expected, states); diff != "" {
		t.Errorf("unexpected task states: %s", diff)
	}
}

func TestTaskStatesMissingDatabase(t *testing.T) {
	workflow := seedWorkflow(t, nil)
	if _, err := workflow.TaskStates(); err == nil {
		t.Error("expected an error when the scheduler database is missing")
	}
}
