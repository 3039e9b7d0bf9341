package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// TracLogFile is the report filename written into the log directory.
const TracLogFile = "trac.log"

// Write flushes the assembled report to dir/trac.log. If the file cannot
// be written the report is echoed to stdout so the run is not lost, and
// the error is still returned.
func Write(content string, dir string) error {
	path := filepath.Join(dir, TracLogFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		fmt.Println("----- Start of trac.log -----")
		fmt.Print(content)
		fmt.Println("----- End of trac.log -----")
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// AppendFailureNotice records a synthesis failure in the report itself so
// a partially generated trac.log points the reader at the real logs.
func AppendFailureNotice(buf *bytes.Buffer, schedulerLog string, err error) {
	fmt.Fprintln(buf, "\n\n-----")
	fmt.Fprintln(buf, " = ERROR = ")
	fmt.Fprintf(buf, "Report generation failed part way through: %v\n", err)
	fmt.Fprintf(buf, "See the scheduler log for details: %s\n", schedulerLog)
	fmt.Fprintln(buf, "-----")
}
