package source

import (
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/modelci/suite-tools/pkg/cylc"
	"github.com/modelci/suite-tools/pkg/fcm"
)

// Project is one tracked source component of the run. All derived fields
// are computed eagerly at construction and never mutated afterwards.
type Project struct {
	// Name is the uppercase component identifier.
	Name string
	// TestedSource is the literal source string recorded by the run.
	TestedSource string
	// RepoLoc and RepoMirror are the same logical location in the public
	// and mirror namespaces.
	RepoLoc    string
	RepoMirror string
	// ParentLoc and ParentMirror identify the branch parent; empty for
	// trunk sources.
	ParentLoc    string
	ParentMirror string
	// RepoLink and ParentLink are best-effort browsable links.
	RepoLink   string
	ParentLink string
	// HumanRepoLoc and HumanParent are keyword renderings of the two
	// locations, preferred over raw URLs for presentation.
	HumanRepoLoc string
	HumanParent  string
	// TicketNumber is inferred from the newest commit message; empty for
	// trunk sources or unticketed commits.
	TicketNumber string
	// ChangedFiles lists repository-relative files differing from the
	// parent branch.
	ChangedFiles []string
	// VersionFile and WorkingCopyChanged carry the scheduler-recorded
	// provenance, when the layout provides it.
	VersionFile        string
	WorkingCopyChanged bool
	// Valid reports whether the mirror location exists. Invalid projects
	// are dropped from the report entirely.
	Valid bool
}

// Resolver builds Projects against one keyword table and one VCS
// capability.
type Resolver struct {
	keywords KeywordTable
	vcs      fcm.Interface
	logger   *logrus.Entry
}

func NewResolver(keywords KeywordTable, vcs fcm.Interface) *Resolver {
	return &Resolver{
		keywords: keywords,
		vcs:      vcs,
		logger:   logrus.WithField("component", "source"),
	}
}

// NewProject resolves one tested source. The returned project has
// Valid=false when its mirror location cannot be confirmed to exist; no
// further fields are derived in that case.
func (r *Resolver) NewProject(name, testedSource string, details cylc.SourceDetails) *Project {
	p := &Project{
		Name:               name,
		TestedSource:       cylc.RemoveQuotes(testedSource),
		VersionFile:        details.VersionFile,
		WorkingCopyChanged: details.WorkingCopyChanged,
	}

	target := details.RepoLoc
	if target == "" {
		target = p.TestedSource
	}
	p.RepoLoc = r.keywords.ToPublic(target)
	p.RepoMirror = r.keywords.ToMirror(p.RepoLoc)

	p.Valid = r.vcs.Exists(p.RepoMirror)
	if !p.Valid {
		r.logger.WithFields(logrus.Fields{"project": name, "mirror": p.RepoMirror}).Info("Mirror location not accessible, dropping project")
		return p
	}

	if parent, err := r.vcs.BranchParent(p.RepoMirror); err == nil {
		p.ParentMirror = parent
		p.ParentLoc = r.keywords.ToPublic(parent)
	}

	r.resolveRevisions(p)
	r.resolveLinks(p)

	p.HumanRepoLoc = r.keywords.ToKeyword(p.RepoLoc)
	p.HumanParent = r.keywords.ToKeyword(p.ParentLoc)
	p.TicketNumber = r.ticketNumber(p.RepoMirror)
	p.ChangedFiles = r.changedFiles(p.RepoMirror)
	return p
}

// resolveRevisions pins every location that lacks an explicit revision to
// the current head, so that later diff and approval computation is
// reproducible.
func (r *Resolver) resolveRevisions(p *Project) {
	pin := func(loc, mirror *string) {
		if *loc == "" || *mirror == "" {
			return
		}
		if !strings.Contains(*loc, ":") || strings.Contains(*loc, "@") {
			return
		}
		revision, err := r.vcs.HeadRevision(*mirror)
		if err != nil {
			r.logger.WithError(err).WithField("mirror", *mirror).Warn("Could not resolve head revision")
			return
		}
		*loc += "@" + revision
		*mirror += "@" + revision
	}
	pin(&p.RepoLoc, &p.RepoMirror)
	pin(&p.ParentLoc, &p.ParentMirror)
}

var symbolicRevision = regexp.MustCompile(`rev=[a-zA-Z]`)

func (r *Resolver) resolveLinks(p *Project) {
	p.RepoLink = r.generateLink(p.RepoLoc)
	if p.RepoLink == "" {
		p.RepoLink = r.linkFromLocLayout(p.RepoLoc, p.RepoMirror)
	}
	p.ParentLink = r.generateLink(p.ParentLoc)
	if p.ParentLink == "" {
		p.ParentLink = r.linkFromLocLayout(p.ParentLoc, p.ParentMirror)
	}
	// Browsers do not evaluate symbolic revision keywords, so any link
	// still carrying one gets the numeric revision substituted in.
	if p.RepoLink != "" && symbolicRevision.MatchString(p.RepoLink) {
		if revision := r.revisionFromLocLayout(p.RepoMirror); revision != "" {
			p.RepoLink = regexp.MustCompile(`rev=[a-zA-Z0-9.]+`).ReplaceAllString(p.RepoLink, "rev="+revision)
		}
	}
}

// generateLink is the first link tier: direct keyword-table substitution
// into the browsable URL form.
func (r *Resolver) generateLink(url string) string {
	if url == "" {
		return ""
	}
	for _, keywordURL := range r.keywords {
		if keywordURL != "" && strings.Contains(url, keywordURL) {
			return URLToTracLink(url)
		}
	}
	return ""
}

// linkFromLocLayout is the second tier: reconstruct a browsable URL from
// the location's structural metadata.
func (r *Resolver) linkFromLocLayout(url, mirror string) string {
	if url == "" || mirror == "" || strings.HasPrefix(url, "file:/") {
		return ""
	}
	layout, err := r.vcs.LocLayout(mirror)
	if err != nil {
		r.logger.WithError(err).WithField("mirror", mirror).Warn("Could not query location layout")
		return ""
	}
	if layout.Root == "" || layout.Project == "" || layout.Path == "" {
		return ""
	}
	link := URLToTracLink(url)
	if link == "" {
		return ""
	}
	if layout.PegRev != "" && !strings.Contains(link, "?rev=") {
		link += "?rev=" + layout.PegRev
	}
	return link
}

func (r *Resolver) revisionFromLocLayout(mirror string) string {
	if mirror == "" {
		return ""
	}
	layout, err := r.vcs.LocLayout(mirror)
	if err != nil {
		return ""
	}
	return layout.PegRev
}

var (
	trunkURL     = regexp.MustCompile(`/trunk[/@$]`)
	trunkKeyword = regexp.MustCompile(`[fs][cv][mn]:\w+(.xm|.x|)_tr[/@$]`)
	ticketMarker = regexp.MustCompile(`^\s*(#\d+)`)
)

// ticketNumber extracts a ticket marker from the newest log entry. Trunk
// locations short-circuit to empty: no ticket applies to trunk.
func (r *Resolver) ticketNumber(mirror string) string {
	if trunkURL.MatchString(mirror) || trunkKeyword.MatchString(mirror) {
		return ""
	}
	lines, err := r.vcs.LastLog(mirror)
	if err != nil {
		r.logger.WithError(err).WithField("mirror", mirror).Warn("Could not read log entry")
		return ""
	}
	ticket := ""
	for _, line := range lines {
		if m := ticketMarker.FindStringSubmatch(line); m != nil {
			ticket = m[1]
		}
	}
	return ticket
}

// changedFiles lists the files altered relative to the branch parent. A
// partial report beats a hard failure, so an exhausted diff degrades to
// an empty list. Entries without a file extension are directories and are
// filtered out, as is the `.` entry for the branch root.
func (r *Resolver) changedFiles(mirror string) []string {
	entries, err := r.vcs.BranchDiff(mirror)
	if err != nil {
		r.logger.WithError(err).WithField("mirror", mirror).Warn("Cannot get list of altered files, returning empty list")
		return nil
	}
	var files []string
	for _, entry := range entries {
		if entry == "." {
			continue
		}
		parts := strings.Split(entry, "/")
		if !strings.Contains(parts[len(parts)-1], ".") {
			continue
		}
		files = append(files, entry)
	}
	return files
}
