package report

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var (
	wallclockPattern  = regexp.MustCompile(`PE\s*0\s*Elapsed Wallclock Time:\s*(\d+(\.\d+|))`)
	totalMemPattern   = regexp.MustCompile(`Total Mem\s*(\d+)`)
	atmosExePattern   = regexp.MustCompile(`^um-atmos.exe`)
	percentagePattern = regexp.MustCompile(`[0-9]+[%]`)
	memWithUnits      = regexp.MustCompile(`(?P<num>[0-9]*\.[0-9]*)(?P<unit>[A-Za-z])`)
)

// renderResourceTable reports wallclock and memory figures for the site's
// resource-monitoring tasks, parsed out of each task's captured output.
func (s *Synthesizer) renderResourceTable(w io.Writer) {
	fmt.Fprintln(w, "")

	var table *TableBuilder
	for _, task := range resourceMonitoringTasks[s.Conf.Site] {
		filename := s.Workflow.JobOutputPath(task)
		if _, err := os.Stat(filename); err != nil {
			continue
		}
		wallclock, memory := wallclockAndMemory(filename)
		if table == nil {
			table = NewTable("Task", "Wallclock", "Total Memory").
				WithPreamble("", "Resource Monitoring Task")
		}
		_ = table.AddRow(task, wallclock, memory)
	}

	if table == nil {
		fmt.Fprintln(w, "  No resource monitoring jobs run")
	} else {
		table.Render(w)
	}
	fmt.Fprintln(w, "")
}

// wallclockAndMemory scans one captured job output. The primary parsers
// match the explicit wallclock and total-memory lines; a secondary parser
// handles the executable's own usage line, which expresses memory as a
// percentage-annotated magnitude with a unit suffix. Figures that never
// appear stay "Unavailable" rather than dropping the row.
func wallclockAndMemory(filename string) (wallclock, memory string) {
	wallclock, memory = "Unavailable", "Unavailable"
	f, err := os.Open(filename)
	if err != nil {
		return wallclock, memory
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if m := wallclockPattern.FindStringSubmatch(line); m != nil {
			if seconds, err := strconv.ParseFloat(m[1], 64); err == nil {
				wallclock = strconv.Itoa(int(math.Round(seconds)))
			}
		}
		if m := totalMemPattern.FindStringSubmatch(line); m != nil {
			memory = m[1]
		}
		if atmosExePattern.MatchString(line) {
			fields := strings.Fields(line)
			if len(fields) < 7 {
				continue
			}
			if percentagePattern.MatchString(fields[6]) {
				if m := memWithUnits.FindStringSubmatch(fields[5]); m != nil {
					magnitude, err := strconv.ParseFloat(m[1], 64)
					if err != nil {
						continue
					}
					switch m[2] {
					case "G":
						magnitude *= 1000000
					case "M":
						magnitude *= 1000
					}
					memory = strconv.Itoa(int(magnitude))
				}
			} else {
				memory = fields[6]
			}
		}
	}
	return wallclock, memory
}
