// Package ownership maps changed files and failed comparison tasks to the
// owners who must approve them before review.
package ownership

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/modelci/suite-tools/pkg/fcm"
)

const (
	// umTrunk is the canonical location the owners tables and section
	// headers are exported from.
	umTrunk = "fcm:um.xm_tr"

	systemsTeam = "!umsysteam@metoffice.gov.uk"

	// UnknownOwner attributes files whose resolved section has no table
	// entry. Unassigned sections must surface in the approval tables,
	// never silently vanish.
	UnknownOwner = "Unknown - ensure section is in CodeOwners.txt"
)

// Mode selects which of the two owners tables is in play.
type Mode string

const (
	ModeCode   Mode = "code"
	ModeConfig Mode = "config"
)

// Filename is the owners file for this mode.
func (m Mode) Filename() string {
	if m == ModeConfig {
		return "ConfigOwners.txt"
	}
	return "CodeOwners.txt"
}

// headerWord identifies the column-header line inside the listing.
func (m Mode) headerWord() string {
	if m == ModeConfig {
		return "Configuration"
	}
	return "Owner"
}

// Entry is one owners-table row.
type Entry struct {
	Owner  string
	Deputy string
}

// Table maps a lowercased section identifier to its owners.
type Table map[string]Entry

// ApprovalSet groups required approvals by owner identity.
type ApprovalSet map[string]sets.Set[string]

func (a ApprovalSet) add(owner, item string) {
	if _, ok := a[owner]; !ok {
		a[owner] = sets.New[string]()
	}
	a[owner].Insert(item)
}

// ParseTable reads the marker-delimited owners listing: entries start
// after a `{{{` line and stop at `}}}`, the column-header line is
// skipped, and each remaining line is `section owner [deputy]` with `--`
// meaning no deputy.
func ParseTable(r io.Reader, mode Mode) (Table, error) {
	table := Table{}
	inside := false
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "{{{"):
			inside = true
			continue
		case strings.Contains(line, "}}}"):
			inside = false
			continue
		}
		if !inside || strings.TrimSpace(line) == "" || strings.Contains(line, mode.headerWord()) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		section := strings.ToLower(fields[0])
		owner := fields[1]
		if strings.Contains(owner, "umsysteam") {
			owner = systemsTeam
		}
		deputy := ""
		if len(fields) > 2 && fields[2] != "--" {
			deputy = fields[2]
		}
		if existing, ok := table[section]; ok {
			// First entry is authoritative; duplicates indicate an
			// inconsistent owners file.
			logrus.WithFields(logrus.Fields{"section": section, "kept": existing.Owner, "ignored": owner}).
				Warn("Duplicate owners entry for section")
			continue
		}
		table[section] = Entry{Owner: owner, Deputy: deputy}
	}
	return table, scanner.Err()
}

// Resolver loads owners tables and resolves approvals against them.
type Resolver struct {
	vcs    fcm.Interface
	tmpDir string
	logger *logrus.Entry
}

// NewResolver wires the VCS capability used for exporting owners files
// and section headers. tmpDir scopes exported files to one report run.
func NewResolver(vcs fcm.Interface, tmpDir string) *Resolver {
	return &Resolver{
		vcs:    vcs,
		tmpDir: tmpDir,
		logger: logrus.WithField("component", "ownership"),
	}
}

// LoadTable fetches and parses the owners table for a mode. The file is
// exported from trunk; when the export fails the tested-source working
// copy is tried instead. A table that cannot be read at all yields nil,
// which downstream renders as "no approvals required".
func (r *Resolver) LoadTable(mode Mode, workingCopy string) (Table, error) {
	path := r.ownersFile(mode, workingCopy)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("no readable copy of %s: %w", mode.Filename(), err)
	}
	defer f.Close()
	return ParseTable(f, mode)
}

func (r *Resolver) ownersFile(mode Mode, workingCopy string) string {
	dest := filepath.Join(r.tmpDir, mode.Filename())
	if err := r.vcs.Export(umTrunk, mode.Filename(), dest); err == nil {
		return dest
	}
	r.logger.WithField("file", mode.Filename()).Info("Export failed, using the checked out copy")
	return filepath.Join(workingCopyPath(workingCopy), mode.Filename())
}

// workingCopyPath locates a working copy from a tested-source string,
// which may carry a host prefix in the form host:path.
func workingCopyPath(source string) string {
	if source == "" {
		return ""
	}
	if _, err := os.Stat(source); err == nil {
		return source
	}
	if _, path, found := strings.Cut(source, ":"); found {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// CodeApprovals resolves the owners who must approve a list of changed
// files. Every file lands in exactly one owner's set.
func (r *Resolver) CodeApprovals(changedFiles []string, repoMirror string, table Table) ApprovalSet {
	if len(changedFiles) == 0 {
		return nil
	}
	branchRoot := strings.SplitN(repoMirror, "@", 2)[0]
	branchName := branchRoot[strings.LastIndex(branchRoot, "/")+1:]

	approvals := ApprovalSet{}
	for _, file := range changedFiles {
		if strings.Contains(file, "..") {
			// A branch reversed off trunk yields paths that climb out of
			// the branch root; re-anchor at the branch name.
			if _, rest, found := strings.Cut(file, branchName); found {
				file = strings.Trim(rest, "/")
			}
		}
		lower := strings.ToLower(file)
		switch {
		case strings.Contains(lower, "configowners.txt"), strings.Contains(lower, "codeowners.txt"):
			continue
		case strings.HasPrefix(lower, "admin"):
			approvals.add(systemsTeam, "admin")
			continue
		case strings.HasPrefix(lower, "bin"):
			approvals.add(systemsTeam, "bin")
			continue
		}

		section := lookupSection(lower)
		if section == "" {
			section = r.sectionFromHeader(file)
		}
		entry, ok := table[section]
		if !ok {
			approvals.add(UnknownOwner, section)
			continue
		}
		owner := entry.Owner
		if entry.Deputy != "" {
			owner += " (" + entry.Deputy + ")"
		}
		approvals.add(owner, section)
	}
	return approvals
}

// lookupSection maps well-known path prefixes to their sections.
func lookupSection(file string) string {
	switch {
	case strings.HasPrefix(file, "fcm-make"):
		return "fcm-make_um"
	case strings.HasPrefix(file, "fab"):
		return "fab"
	case strings.HasPrefix(file, "rose-stem"):
		switch {
		case strings.Contains(file, "umdp3_check"):
			return "umdp3_checker"
		case strings.Contains(file, "run_cppcheck"):
			return "run_cppcheck"
		case strings.Contains(file, "rose-stem/bin"):
			return "rose_bin"
		default:
			return "rose_stem"
		}
	case strings.HasPrefix(file, "rose-meta"):
		switch {
		case strings.Contains(file, "versions.py"):
			return "upgrade_macros"
		case strings.Contains(file, "rose-meta.conf"):
			return "rose-meta.conf"
		default:
			return "stash"
		}
	}
	return ""
}

// sectionFromHeader exports the file itself and reads its structured
// comment header for a "file belongs in" marker.
func (r *Resolver) sectionFromHeader(file string) string {
	dest := filepath.Join(r.tmpDir, "header-"+filepath.Base(file))
	if err := r.vcs.Export(umTrunk, file, dest); err != nil {
		r.logger.WithError(err).WithField("file", file).Warn("Could not export file for section lookup")
		return ""
	}
	f, err := os.Open(dest)
	if err != nil {
		return ""
	}
	defer f.Close()

	header := ""
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), "file belongs in") {
			header = scanner.Text()
			break
		}
	}
	header = strings.NewReplacer("/*", "", "*/", "").Replace(header)
	_, section, found := strings.Cut(header, ":")
	if !found {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(section))
}

// ConfigApprovals resolves the configuration owners for a list of failed
// comparison tasks.
func (r *Resolver) ConfigApprovals(failedTasks []string, table Table) ApprovalSet {
	approvals := ApprovalSet{}
	for _, task := range failedTasks {
		task = strings.ToLower(task)
		parts := strings.Split(task, "-")
		config := ""
		if len(parts) > 2 {
			config = parts[2]
		} else if strings.Contains(task, "mule") {
			config = "mule"
		}

		owner, deputy := "Unknown", ""
		if entry, ok := table[config]; ok {
			owner, deputy = entry.Owner, entry.Deputy
		}
		if deputy != "" {
			config += "(" + deputy + ")"
		}
		approvals.add(owner, config)
	}
	return approvals
}

// Sorted renders the set deterministically for presentation and tests.
func (a ApprovalSet) Sorted() map[string][]string {
	if a == nil {
		return nil
	}
	sorted := map[string][]string{}
	for owner, items := range a {
		sorted[owner] = sets.List(items)
	}
	return sorted
}
