package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// PinkFailText is the flagged-failure status bucket: comparison failures
// needing extra care are reclassified here for the summary tally.
const PinkFailText = "'''[[span(style=color: #FF00FF, pink failure )]]'''"

// desiredOrder forces the most interesting statuses to the top of the
// summary tally; everything else follows in lexical order.
var desiredOrder = []string{PinkFailText, "failed", "succeeded"}

// Hidden-category labels, in presentation order.
var hiddenOrder = []string{"''Housekeeping''", "''Gatekeeping''", "''Monitoring''", "'''Succeeded'''"}

// taskTableResult carries everything the surrounding report needs from
// the task scan besides the rendered table itself.
type taskTableResult struct {
	// body is the rendered task table, appended after the tallies.
	body string
	// failedConfigs lists failed comparison tasks that were not flagged;
	// they feed config-owner approval.
	failedConfigs []string
	statusCounts  map[string]int
	hiddenCounts  map[string]int
}

// buildTaskTable classifies every task for presentation. Verbosity hides
// categories in increasing order of aggressiveness: housekeeping tasks at
// level 1, gatekeeping at 2, and succeeded tasks at 4 (or at 3 when every
// requested run-group is a common group). Monitoring tasks are always
// hidden from the itemized list but still counted.
func buildTaskTable(states map[string]string, verbosity int, sortByName, onlyCommonGroups bool) *taskTableResult {
	result := &taskTableResult{
		statusCounts: map[string]int{"failed": 0},
		hiddenCounts: map[string]int{},
	}

	type task struct{ name, state string }
	tasks := make([]task, 0, len(states))
	for name, state := range states {
		tasks = append(tasks, task{name, state})
	}
	sort.Slice(tasks, func(i, j int) bool {
		if sortByName {
			if tasks[i].name != tasks[j].name {
				return tasks[i].name < tasks[j].name
			}
			return tasks[i].state < tasks[j].state
		}
		if tasks[i].state != tasks[j].state {
			return tasks[i].state < tasks[j].state
		}
		return tasks[i].name < tasks[j].name
	})

	table := NewTable("Task", "State")
	hidden := true
	for _, item := range tasks {
		result.statusCounts[item.state]++
		if verbosity >= 1 && strings.HasPrefix(item.name, "housekeep") {
			result.hiddenCounts["''Housekeeping''"]++
			continue
		}
		if verbosity >= 2 && strings.HasPrefix(item.name, "gatekeeper") {
			result.hiddenCounts["''Gatekeeping''"]++
			continue
		}
		if strings.HasPrefix(item.name, "monitor") {
			result.hiddenCounts["''Monitoring''"]++
			continue
		}

		highlightStart, highlightEnd := "'''", "'''"
		if strings.Contains(item.state, "succeeded") {
			highlightStart, highlightEnd = "", ""
			if verbosity >= 4 || (verbosity >= 3 && onlyCommonGroups) {
				result.hiddenCounts["'''Succeeded'''"]++
				continue
			}
		} else if strings.Contains(item.name, "rose_ana") && strings.Contains(item.state, "failed") {
			flagged := false
			for _, marker := range highlightedComparisonFails {
				if strings.Contains(item.name, marker) {
					flagged = true
					break
				}
			}
			if flagged {
				highlightStart = "'''[[span(style=color: #FF00FF, *****"
				highlightEnd = "***** )]]'''"
				// Conserve the total: the flagged bucket gains what the
				// original status loses.
				result.statusCounts[PinkFailText]++
				result.statusCounts[item.state]--
			} else {
				result.failedConfigs = append(result.failedConfigs, item.name)
			}
		}

		_ = table.AddRow(item.name, highlightStart+item.state+highlightEnd)
		hidden = false
	}

	if hidden {
		_ = table.AddRow("", "This table is deliberately empty as all tasks are hidden")
	}

	var body strings.Builder
	table.Render(&body)
	result.body = body.String()
	return result
}

// renderStatusTally writes the per-status task counts with the forced
// ordering applied.
func (r *taskTableResult) renderStatusTally(w io.Writer) {
	fmt.Fprintln(w, "\n |||| '''All Tasks''' || ")
	table := NewTable("Status", "No. of Tasks")

	statuses := make([]string, 0, len(r.statusCounts))
	for status := range r.statusCounts {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return forcedStatusKey(statuses[i]) < forcedStatusKey(statuses[j])
	})
	for _, status := range statuses {
		_ = table.AddRow(status, strconv.Itoa(r.statusCounts[status]))
	}
	table.Render(w)
	fmt.Fprintln(w, "")
}

// forcedStatusKey sorts the desired statuses first by mapping them to
// their index; numbers precede letters and every status starts with a
// letter, so the remainder sorts lexically after them.
func forcedStatusKey(status string) string {
	for i, desired := range desiredOrder {
		if status == desired {
			return strconv.Itoa(i)
		}
	}
	return status
}

// renderHiddenTally writes the per-category hidden-task counts, when any
// tasks were hidden.
func (r *taskTableResult) renderHiddenTally(w io.Writer) {
	if len(r.hiddenCounts) == 0 {
		return
	}
	fmt.Fprintln(w, " |||| '''Hidden Tasks''' || ")
	table := NewTable("Type", "No. of Tasks Hidden")
	for _, category := range hiddenOrder {
		if count, ok := r.hiddenCounts[category]; ok {
			_ = table.AddRow(category, strconv.Itoa(count))
		}
	}
	table.Render(w)
	fmt.Fprintln(w, "")
}
