package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const lfricTrunk = "fcm:lfric_apps.xm_tr"

// extractList holds the files and directories the LFRic Apps build
// extracts from other projects' trunks.
type extractList struct {
	files []string
	dirs  []string
}

// checkExtractList reports whether any file modified on a tested branch
// is shared with LFRic Apps, in which case LFRic Apps testing is required
// before review. An unreadable extract list degrades to a "may be
// required" warning rather than failing the report.
func (s *Synthesizer) checkExtractList(w io.Writer) {
	fmt.Fprint(w, "'''LFRic Testing Requirements'''\n\n")

	dest := filepath.Join(s.TmpDir, "extract.cfg")
	var list *extractList
	if err := s.VCS.Export(lfricTrunk, "build/extract/extract.cfg", dest); err != nil {
		s.log().WithError(err).Warn("Could not export the LFRic Apps extract list")
	} else {
		var parseErr error
		if list, parseErr = parseExtractList(dest); parseErr != nil {
			s.log().WithError(parseErr).Warn("Could not parse the LFRic Apps extract list")
			list = nil
		}
	}
	if list == nil {
		fmt.Fprint(w, "Unable to export the lfric Apps extract_list. LFRic Apps testing may be required.[[br]]\n\n")
		return
	}

	interactions := s.countExtractInteractions(list)
	switch {
	case interactions > 1:
		fmt.Fprintf(w, "There were %d projects \n", interactions)
		fmt.Fprintln(w, lfricRequiredMessage)
	case interactions == 1:
		fmt.Fprintln(w, "There was 1 project ")
		fmt.Fprintln(w, lfricRequiredMessage)
	default:
		fmt.Fprintln(w, "No files shared with LFRic Apps have been modified.[[br]]LFRic Apps testing is not required for this ticket.")
	}
	fmt.Fprintln(w, "")
}

const lfricRequiredMessage = "with LFRic Apps interaction.[[br]]LFRic Apps testing is '''required''' before this ticket is submitted for review."

// parseExtractList reads the extract.path-incl entries of an exported
// extract.cfg. Entries continue across lines ending in a backslash; an
// entry whose final path segment carries an extension is a file, anything
// else a directory.
func parseExtractList(path string) (*extractList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// JULES shares its metadata with LFRic Apps outside the include list.
	list := &extractList{dirs: []string{"rose-meta/jules-shared"}}

	inIncludeSection := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if inIncludeSection {
			item := strings.TrimSpace(strings.TrimSuffix(line, `\`))
			if strings.Contains(filepath.Base(item), ".") {
				list.files = append(list.files, item)
			} else {
				list.dirs = append(list.dirs, item)
			}
			if !strings.HasSuffix(line, `\`) {
				inIncludeSection = false
			}
		}
		if strings.Contains(line, "extract.path-incl") {
			inIncludeSection = true
		}
	}
	return list, scanner.Err()
}

// countExtractInteractions counts projects with at least one modified
// file that LFRic Apps extracts. Modified paths recorded against a trunk
// working copy are re-anchored below trunk/ before matching.
func (s *Synthesizer) countExtractInteractions(list *extractList) int {
	interactions := 0
	for _, project := range s.Jobs.Projects() {
		for _, modified := range project.ChangedFiles {
			if strings.Contains(modified, "trunk") {
				parts := strings.Split(modified, "trunk/")
				modified = parts[len(parts)-1]
			}
			if list.matches(modified) {
				interactions++
				break
			}
		}
	}
	return interactions
}

func (l *extractList) matches(modified string) bool {
	for _, file := range l.files {
		if modified == file {
			return true
		}
	}
	for _, dir := range l.dirs {
		if strings.Contains(modified, dir) {
			return true
		}
	}
	return false
}
