package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/modelci/suite-tools/pkg/source"
)

// TableBuilder accumulates rows for one wiki-markup table and renders the
// header-then-rows layout in one go.
type TableBuilder struct {
	columns  []string
	title    string
	preamble []string
	rows     [][]string
}

func NewTable(columns ...string) *TableBuilder {
	return &TableBuilder{columns: columns}
}

// WithTitle places a bold title line before the table.
func (t *TableBuilder) WithTitle(title string) *TableBuilder {
	t.title = title
	return t
}

// WithPreamble places an extra header row that is not a set of column
// headers before the real header.
func (t *TableBuilder) WithPreamble(cells ...string) *TableBuilder {
	t.preamble = cells
	return t
}

// AddRow appends one row, padding short rows to the column count.
// Over-long rows are a programming error and are rejected.
func (t *TableBuilder) AddRow(cells ...string) error {
	if len(cells) > len(t.columns) {
		return fmt.Errorf("row is too long for table: %v", cells)
	}
	row := make([]string, len(t.columns))
	copy(row, cells)
	t.rows = append(t.rows, row)
	return nil
}

// Render writes the table to w.
func (t *TableBuilder) Render(w io.Writer) {
	if t.title != "" {
		fmt.Fprintf(w, "'''%s'''\n", t.title)
	}
	if t.preamble != nil {
		for _, cell := range t.preamble {
			fmt.Fprintf(w, " || '''%s'''", cell)
		}
		fmt.Fprintln(w, " ||")
	}
	for _, column := range t.columns {
		fmt.Fprintf(w, " || '''%s'''", column)
	}
	fmt.Fprintln(w, " ||")
	for _, row := range t.rows {
		for _, cell := range row {
			fmt.Fprintf(w, " || %s", cell)
		}
		fmt.Fprintln(w, " ||")
	}
}

// headerTable renders the key/value summary at the top of the report.
// Rows with empty values are omitted, not printed blank.
type headerTable struct {
	w io.Writer
}

func newHeader(w io.Writer, title string) *headerTable {
	if title != "" {
		fmt.Fprintf(w, " = %s = \n\n", title)
	}
	return &headerTable{w: w}
}

func (h *headerTable) Add(key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(h.w, " || %s: || %s || \n", key, value)
}

// textElement renders a table cell from a preference-ordered list of
// candidate texts: the first non-empty candidate wins, is optionally
// bolded, and becomes a hyperlink when a link is available.
func textElement(preferred []string, link string, bold bool) string {
	text := ""
	for _, candidate := range preferred {
		if candidate != "" {
			text = candidate
			break
		}
	}
	if text == "" {
		return ""
	}
	highlight := ""
	if bold {
		highlight = "'''"
	}
	if link != "" {
		return fmt.Sprintf(" %s[%s %s]%s ", highlight, link, text, highlight)
	}
	return fmt.Sprintf(" %s%s%s ", highlight, source.EscapeSVN(text), highlight)
}

// joinGroups renders the run-group list with wiki line breaks.
func joinGroups(groups []string) string {
	return strings.Join(groups, " [[br]]")
}
