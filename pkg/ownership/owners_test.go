package ownership

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/modelci/suite-tools/pkg/fcm"
)

// fakeVCS only supports Export; the ownership resolver needs nothing else.
type fakeVCS struct {
	// exports maps a repository path to the content written on export.
	exports map[string]string
}

func (f *fakeVCS) Exists(string) bool                    { return true }
func (f *fakeVCS) HeadRevision(string) (string, error)   { return "", errors.New("unsupported") }
func (f *fakeVCS) BranchParent(string) (string, error)   { return "", nil }
func (f *fakeVCS) LastLog(string) ([]string, error)      { return nil, errors.New("unsupported") }
func (f *fakeVCS) LocLayout(string) (*fcm.Layout, error) { return nil, errors.New("unsupported") }
func (f *fakeVCS) Keywords() (map[string]string, error)  { return nil, errors.New("unsupported") }
func (f *fakeVCS) BranchDiff(string) ([]string, error)   { return nil, errors.New("unsupported") }

func (f *fakeVCS) Export(url, path, dest string) error {
	content, ok := f.exports[path]
	if !ok {
		return errors.New("no such file")
	}
	return os.WriteFile(dest, []byte(content), 0644)
}

const codeOwnersListing = `Some preamble text.
{{{
Section     Owner         Deputy
atm_step    apple.anna    berry.bob
fcm-make_um cherry.carl   --
rose_stem   damson.dora   elder.ed
stash       umsysteam     --
atm_step    wrong.wanda   --
}}}
Trailing text.
`

func TestParseTable(t *testing.T) {
	table, err := ParseTable(strings.NewReader(codeOwnersListing), ModeCode)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := Table{
		"atm_step":    {Owner: "apple.anna", Deputy: "berry.bob"},
		"fcm-make_um": {Owner: "cherry.carl"},
		"rose_stem":   {Owner: "damson.dora", Deputy: "elder.ed"},
		"stash":       {Owner: systemsTeam},
	}
	if diff := cmp.Diff(expected, table); diff != "" {
		t.Errorf("unexpected table: %s", diff)
	}
}

func TestCodeApprovals(t *testing.T) {
	table := Table{
		"atm_step":    {Owner: "apple.anna", Deputy: "berry.bob"},
		"fcm-make_um": {Owner: "cherry.carl"},
		"rose_stem":   {Owner: "damson.dora"},
	}
	vcs := &fakeVCS{exports: map[string]string{
		"src/control/top_level/atm_step.F90": "/* This file belongs in section: atm_step */\ncontent\n",
	}}
	resolver := NewResolver(vcs, t.TempDir())

	changed := []string{
		"src/control/top_level/atm_step.F90",
		"fcm-make/um.cfg",
		"rose-stem/suite.rc",
		"admin/setup.sh",
		"bin/helper.py",
		"CodeOwners.txt",
		"src/unknown/no_header.F90",
	}
	approvals := resolver.CodeApprovals(changed, "svn://fcm1/um.xm/um/main/branches/dev/fred/vn13.0_fix@107644", table)

	expected := map[string][]string{
		"apple.anna (berry.bob)": {"atm_step"},
		"cherry.carl":            {"fcm-make_um"},
		"damson.dora":            {"rose_stem"},
		systemsTeam:              {"admin", "bin"},
		UnknownOwner:             {""},
	}
	if diff := cmp.Diff(expected, approvals.Sorted()); diff != "" {
		t.Errorf("unexpected approvals: %s", diff)
	}
}

func TestCodeApprovalsEmptyChangeSet(t *testing.T) {
	resolver := NewResolver(&fakeVCS{}, t.TempDir())
	if approvals := resolver.CodeApprovals(nil, "svn://fcm1/um.xm/um/main/trunk", Table{}); approvals != nil {
		t.Errorf("expected no approvals for an empty change set, got %v", approvals)
	}
}

func TestCodeApprovalsReanchorsReversedPaths(t *testing.T) {
	table := Table{"rose_stem": {Owner: "damson.dora"}}
	resolver := NewResolver(&fakeVCS{}, t.TempDir())

	changed := []string{"../../branches/dev/fred/vn13.0_fix/rose-stem/suite.rc"}
	approvals := resolver.CodeApprovals(changed, "svn://fcm1/um.xm/um/main/branches/dev/fred/vn13.0_fix@107644", table)

	expected := map[string][]string{"damson.dora": {"rose_stem"}}
	if diff := cmp.Diff(expected, approvals.Sorted()); diff != "" {
		t.Errorf("unexpected approvals: %s", diff)
	}
}

func TestEveryChangedFileGetsExactlyOneOwner(t *testing.T) {
	table := Table{"fcm-make_um": {Owner: "cherry.carl"}}
	resolver := NewResolver(&fakeVCS{}, t.TempDir())

	changed := []string{"fcm-make/um.cfg", "fab/build.py", "rose-meta/versions.py"}
	approvals := resolver.CodeApprovals(changed, "svn://fcm1/um.xm/um/main/branches/dev/fred/vn13.0_fix", table)

	total := 0
	for _, items := range approvals.Sorted() {
		total += len(items)
	}
	if total != len(changed) {
		t.Errorf("expected %d approval items for %d files, got %d", len(changed), len(changed), total)
	}
}

func TestLookupSection(t *testing.T) {
	testCases := []struct {
		file     string
		expected string
	}{
		{file: "fcm-make/um.cfg", expected: "fcm-make_um"},
		{file: "fab/build.py", expected: "fab"},
		{file: "rose-stem/bin/helper.py", expected: "rose_bin"},
		{file: "rose-stem/umdp3_check.py", expected: "umdp3_checker"},
		{file: "rose-stem/run_cppcheck.sh", expected: "run_cppcheck"},
		{file: "rose-stem/suite.rc", expected: "rose_stem"},
		{file: "rose-meta/um-atmos/versions.py", expected: "upgrade_macros"},
		{file: "rose-meta/um-atmos/rose-meta.conf", expected: "rose-meta.conf"},
		{file: "rose-meta/um-atmos/etc/stash.meta", expected: "stash"},
		{file: "src/control/atm_step.F90", expected: ""},
	}
	for _, tc := range testCases {
		t.Run(tc.file, func(t *testing.T) {
			if got := lookupSection(tc.file); got != tc.expected {
				t.Errorf("expected section %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestConfigApprovals(t *testing.T) {
	table := Table{
		"seukv": {Owner: "apple.anna", Deputy: "berry.bob"},
		"mule":  {Owner: "cherry.carl"},
	}
	resolver := NewResolver(&fakeVCS{}, t.TempDir())

	failed := []string{
		"rose_ana-xc40-seukv-compare",
		"rose_ana_mule_checks",
	}
	approvals := resolver.ConfigApprovals(failed, table)

	expected := map[string][]string{
		"apple.anna":  {"seukv(berry.bob)"},
		"cherry.carl": {"mule"},
	}
	if diff := cmp.Diff(expected, approvals.Sorted()); diff != "" {
		t.Errorf("unexpected approvals: %s", diff)
	}
}

func TestConfigApprovalsUnknownConfig(t *testing.T) {
	resolver := NewResolver(&fakeVCS{}, t.TempDir())
	approvals := resolver.ConfigApprovals([]string{"rose_ana-xc40-seukv-compare"}, Table{})

	expected := map[string][]string{"Unknown": {"seukv"}}
	if diff := cmp.Diff(expected, approvals.Sorted()); diff != "" {
		t.Errorf("unexpected approvals: %s", diff)
	}
}

func TestLoadTableFallsBackToWorkingCopy(t *testing.T) {
	workingCopy := t.TempDir()
	listing := "{{{\nSection Owner\natm_step apple.anna\n}}}\n"
	if err := os.WriteFile(filepath.Join(workingCopy, "CodeOwners.txt"), []byte(listing), 0644); err != nil {
		t.Fatalf("could not seed working copy: %v", err)
	}

	resolver := NewResolver(&fakeVCS{}, t.TempDir())
	table, err := resolver.LoadTable(ModeCode, workingCopy)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := Table{"atm_step": {Owner: "apple.anna"}}
	if diff := cmp.Diff(expected, table); diff != "" {
		t.Errorf("unexpected table: %s", diff)
	}
}

func TestLoadTableUnreadableEverywhere(t *testing.T) {
	resolver := NewResolver(&fakeVCS{}, t.TempDir())
	if _, err := resolver.LoadTable(ModeCode, ""); err == nil {
		t.Error("expected an error when no copy of the owners file is readable")
	}
}
