package cylc

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// TaskStates reads one row per task from the scheduler database. The
// database is opened read-only and closed before returning; callers query
// once per report.
func (w *Workflow) TaskStates() (map[string]string, error) {
	path, err := w.DatabasePath()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open scheduler database: %w", err)
	}
	defer db.Close()

	rows, err := db.Query("select name, status from task_states;")
	if err != nil {
		return nil, fmt.Errorf("query task states: %w", err)
	}
	defer rows.Close()

	states := map[string]string{}
	for rows.Next() {
		var name, status string
		if err := rows.Scan(&name, &status); err != nil {
			return nil, fmt.Errorf("scan task state row: %w", err)
		}
		states[name] = status
	}
	return states, rows.Err()
}
