package source

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/modelci/suite-tools/pkg/cylc"
	"github.com/modelci/suite-tools/pkg/fcm"
)

// fakeVCS serves canned responses keyed on the queried location.
type fakeVCS struct {
	missing   map[string]bool
	parents   map[string]string
	revisions map[string]string
	logs      map[string][]string
	layouts   map[string]*fcm.Layout
	diffs     map[string][]string
	diffErr   error
}

func (f *fakeVCS) Exists(url string) bool { return !f.missing[url] }

func (f *fakeVCS) HeadRevision(url string) (string, error) {
	if rev, ok := f.revisions[url]; ok {
		return rev, nil
	}
	return "", errors.New("no revision recorded")
}

func (f *fakeVCS) BranchParent(url string) (string, error) {
	return f.parents[url], nil
}

func (f *fakeVCS) LastLog(url string) ([]string, error) {
	if lines, ok := f.logs[url]; ok {
		return lines, nil
	}
	return nil, errors.New("no log recorded")
}

func (f *fakeVCS) Export(url, path, dest string) error {
	return errors.New("export not supported")
}

func (f *fakeVCS) LocLayout(url string) (*fcm.Layout, error) {
	if layout, ok := f.layouts[url]; ok {
		return layout, nil
	}
	return nil, errors.New("no layout recorded")
}

func (f *fakeVCS) Keywords() (map[string]string, error) {
	return nil, errors.New("keywords not supported")
}

func (f *fakeVCS) BranchDiff(url string) ([]string, error) {
	if f.diffErr != nil {
		return nil, f.diffErr
	}
	return f.diffs[url], nil
}

const (
	umBranchPublic = "https://code.metoffice.gov.uk/svn/um/main/branches/dev/fred/vn13.0_fix"
	umBranchMirror = "svn://fcm1/um.xm/um/main/branches/dev/fred/vn13.0_fix"
	umTrunkMirror  = "svn://fcm1/um.xm/um/main/trunk"
)

func TestNewProjectResolvesBranch(t *testing.T) {
	vcs := &fakeVCS{
		parents:   map[string]string{umBranchMirror: umTrunkMirror + "@107000"},
		revisions: map[string]string{umBranchMirror: "107644"},
		logs: map[string][]string{
			umBranchMirror + "@107644": {
				"r107644 | fred | 2024-01-01",
				"#6789 - fix the thing",
			},
		},
		diffs: map[string][]string{
			umBranchMirror + "@107644": {
				".",
				"src/control/top_level/atm_step.F90",
				"src/control",
				"rose-stem/rose-suite.conf",
			},
		},
	}
	resolver := NewResolver(testKeywords(), vcs)

	project := resolver.NewProject("UM", "fcm:um.x_br/dev/fred/vn13.0_fix", cylc.SourceDetails{
		VersionFile:        "um-107644.version",
		WorkingCopyChanged: true,
	})

	expected := &Project{
		Name:               "UM",
		TestedSource:       "fcm:um.x_br/dev/fred/vn13.0_fix",
		RepoLoc:            umBranchPublic + "@107644",
		RepoMirror:         umBranchMirror + "@107644",
		ParentLoc:          "https://code.metoffice.gov.uk/svn/um/main/trunk@107000",
		ParentMirror:       umTrunkMirror + "@107000",
		RepoLink:           "https://code.metoffice.gov.uk/trac/um/browser/main/branches/dev/fred/vn13.0_fix?rev=107644",
		ParentLink:         "https://code.metoffice.gov.uk/trac/um/browser/main/trunk?rev=107000",
		HumanRepoLoc:       "fcm:um.x_br/dev/fred/vn13.0_fix@107644",
		HumanParent:        "fcm:um.x_tr@107000",
		TicketNumber:       "#6789",
		ChangedFiles:       []string{"src/control/top_level/atm_step.F90", "rose-stem/rose-suite.conf"},
		VersionFile:        "um-107644.version",
		WorkingCopyChanged: true,
		Valid:              true,
	}
	if diff := cmp.Diff(expected, project); diff != "" {
		t.Errorf("unexpected project: %s", diff)
	}
}

func TestNewProjectSkipsPinningWhenRevisionPresent(t *testing.T) {
	vcs := &fakeVCS{}
	resolver := NewResolver(testKeywords(), vcs)

	project := resolver.NewProject("UM", "fcm:um.x_br/dev/fred/vn13.0_fix@107644", cylc.SourceDetails{})
	if project.RepoLoc != umBranchPublic+"@107644" {
		t.Errorf("unexpected repository location %q", project.RepoLoc)
	}
	if project.RepoMirror != umBranchMirror+"@107644" {
		t.Errorf("unexpected mirror location %q", project.RepoMirror)
	}
}

func TestNewProjectInvalidWhenMirrorMissing(t *testing.T) {
	vcs := &fakeVCS{missing: map[string]bool{umBranchMirror: true}}
	resolver := NewResolver(testKeywords(), vcs)

	project := resolver.NewProject("UM", "fcm:um.x_br/dev/fred/vn13.0_fix", cylc.SourceDetails{})
	if project.Valid {
		t.Error("expected an inaccessible mirror to invalidate the project")
	}
	if project.TicketNumber != "" || project.ChangedFiles != nil {
		t.Error("invalid projects must not carry derived fields")
	}
}

func TestNewProjectTrunkHasNoTicket(t *testing.T) {
	vcs := &fakeVCS{revisions: map[string]string{umTrunkMirror: "107644"}}
	resolver := NewResolver(testKeywords(), vcs)

	project := resolver.NewProject("UM", "fcm:um.x_tr", cylc.SourceDetails{})
	if project.TicketNumber != "" {
		t.Errorf("trunk sources never carry a ticket, got %q", project.TicketNumber)
	}
}

func TestChangedFilesDegradeOnDiffFailure(t *testing.T) {
	vcs := &fakeVCS{
		revisions: map[string]string{umBranchMirror: "107644"},
		diffErr:   errors.New("network down"),
	}
	resolver := NewResolver(testKeywords(), vcs)

	project := resolver.NewProject("UM", "fcm:um.x_br/dev/fred/vn13.0_fix", cylc.SourceDetails{})
	if !project.Valid {
		t.Fatal("expected the project to stay valid")
	}
	if project.ChangedFiles != nil {
		t.Errorf("expected no changed files, got %v", project.ChangedFiles)
	}
}

func TestBuildDropsInvalidProjects(t *testing.T) {
	vcs := &fakeVCS{
		missing:   map[string]bool{"svn://fcm1/jules.xm/jules/main/trunk": true},
		revisions: map[string]string{umBranchMirror: "107644"},
	}
	resolver := NewResolver(testKeywords(), vcs)

	jobs, err := Build(resolver, map[string]string{
		"UM":    "fcm:um.x_br/dev/fred/vn13.0_fix",
		"JULES": "fcm:jules.x_tr",
	}, nil)
	if err == nil {
		t.Error("expected the dropped project to surface in the aggregate error")
	}
	if jobs.PrimaryProject() != "UM" {
		t.Errorf("expected primary project UM, got %q", jobs.PrimaryProject())
	}
	if jobs.Lookup("JULES") != nil {
		t.Error("expected the invalid project to be dropped")
	}
	if jobs.Lookup("UM") == nil {
		t.Error("expected the valid project to be kept")
	}
}

func TestBuildPrimaryPrecedence(t *testing.T) {
	vcs := &fakeVCS{}
	resolver := NewResolver(testKeywords(), vcs)

	testCases := []struct {
		name     string
		tested   map[string]string
		expected string
	}{
		{
			name:     "um outranks jules",
			tested:   map[string]string{"JULES": "fcm:jules.x_tr@1", "UM": "fcm:um.x_tr@1"},
			expected: "UM",
		},
		{
			name:     "unrecognized components yield the unknown project",
			tested:   map[string]string{"SHUMLIB": "fcm:shumlib_tr@1"},
			expected: UnknownProject,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			jobs, err := Build(resolver, tc.tested, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := jobs.PrimaryProject(); got != tc.expected {
				t.Errorf("expected primary %q, got %q", tc.expected, got)
			}
		})
	}
}
