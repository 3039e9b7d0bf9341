package cylc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	prefixShared = "https://code.metoffice.gov.uk/svn/"
	prefixMirror = "svn://fcm1/"
)

// SourceDetails is the per-project provenance the scheduler itself
// recorded at start-up. Fields the layout does not provide stay empty.
type SourceDetails struct {
	// RepoLoc is the recorded source URL, revision-pinned when a revision
	// was recorded.
	RepoLoc string
	// VersionFile is the basename of the cylc 7 version file this entry
	// came from; empty for cylc 8 runs.
	VersionFile string
	// WorkingCopyChanged reports uncommitted local modifications. Only
	// meaningful when VersionFile is set.
	WorkingCopyChanged bool
}

// ProjectDetails returns the scheduler-recorded provenance per project and
// a count of uncommitted changes across the run.
func (w *Workflow) ProjectDetails() (map[string]SourceDetails, int, error) {
	if w.Version == 7 {
		return w.cylc7ProjectDetails()
	}
	return w.cylc8ProjectDetails()
}

var versionFileName = regexp.MustCompile(`/(\w+)-\d+.version`)

func (w *Workflow) cylc7ProjectDetails() (map[string]SourceDetails, int, error) {
	projects := map[string]SourceDetails{}
	uncommitted := 0

	matches, err := filepath.Glob(filepath.Join(w.Path, "log", "*.version"))
	if err != nil {
		return nil, 0, err
	}
	for _, vfile := range matches {
		if strings.Contains(vfile, "rose-suite-run.version") {
			continue
		}
		m := versionFileName.FindStringSubmatch(vfile)
		if m == nil {
			continue
		}
		project := strings.ToUpper(m[1])
		url, revision, changed, err := parseVersionFile(vfile)
		if err != nil {
			return nil, 0, err
		}
		details := SourceDetails{
			VersionFile:        filepath.Base(vfile),
			WorkingCopyChanged: changed,
		}
		if changed {
			uncommitted++
		}
		if url != "" {
			details.RepoLoc = url
			if revision != "" {
				details.RepoLoc += "@" + revision
			}
		}
		projects[project] = details
	}
	return projects, uncommitted, nil
}

var (
	svnStatusMarker = regexp.MustCompile(`(?i)SVN STATUS`)
	versionURL      = regexp.MustCompile(`^URL:\s*`)
	versionRev      = regexp.MustCompile(`^Last Changed Rev:\s*`)
)

// parseVersionFile extracts the URL and revision of the source behind a
// working copy, plus whether the file records uncommitted changes.
func parseVersionFile(path string) (url, revision string, changed bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", false, fmt.Errorf("open version file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if svnStatusMarker.MatchString(line) {
			changed = true
		}
		if versionURL.MatchString(line) {
			url = strings.TrimRight(versionURL.ReplaceAllString(line, ""), " \t")
		}
		if versionRev.MatchString(line) {
			revision = strings.TrimRight(versionRev.ReplaceAllString(line, ""), " \t")
		}
	}
	return url, revision, changed, scanner.Err()
}

// vcsMetadata mirrors log/version/vcs.json. Presence of the three keys is
// checked separately so that "key absent" (an incompatible run, fatal)
// stays distinguishable from "key null" (no recorded value).
type vcsMetadata struct {
	URL      *string  `json:"url"`
	Revision *string  `json:"revision"`
	Status   []string `json:"status"`
}

var projectNameSplit = regexp.MustCompile(`[/.]`)

func (w *Workflow) cylc8ProjectDetails() (map[string]SourceDetails, int, error) {
	path := filepath.Join(w.logDir, "version", "vcs.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read vcs metadata: %w", err)
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, 0, fmt.Errorf("parse vcs metadata: %w", err)
	}
	for _, required := range []string{"url", "revision", "status"} {
		if _, ok := keys[required]; !ok {
			return nil, 0, fmt.Errorf("%s lacks required key %q", path, required)
		}
	}
	var meta vcsMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, 0, fmt.Errorf("parse vcs metadata: %w", err)
	}

	projects := map[string]SourceDetails{}
	if meta.URL != nil {
		url := *meta.URL
		name := strings.TrimPrefix(url, prefixShared)
		name = strings.TrimPrefix(name, prefixMirror)
		name = strings.ToUpper(projectNameSplit.Split(name, -1)[0])

		ending := ""
		if meta.Revision != nil {
			ending = "@" + *meta.Revision
		}
		projects[name] = SourceDetails{RepoLoc: canonicalBranchURL(url) + ending}
	}

	uncommitted := 0
	for _, item := range meta.Status {
		if len(item) > 0 && !strings.HasPrefix(item, "?") {
			uncommitted++
		}
	}
	return projects, uncommitted, nil
}

// canonicalBranchURL trims a deep version-control URL back to the top of
// the branch it points into: branch URLs keep their three-component
// identifier (area/user/branch-name), trunk URLs end at /trunk/.
func canonicalBranchURL(url string) string {
	splitter := "trunk"
	if strings.Contains(url, "branches") {
		splitter = "branches"
	}
	start, end, found := strings.Cut(url, "/"+splitter+"/")
	if !found {
		return url
	}
	start += "/" + splitter + "/"
	if splitter != "branches" {
		return start
	}
	parts := strings.Split(end, "/")
	if len(parts) < 3 {
		return start + end
	}
	return start + strings.Join(parts[:3], "/")
}
