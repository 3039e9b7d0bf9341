package report

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/modelci/suite-tools/pkg/cylc"
	"github.com/modelci/suite-tools/pkg/fcm"
	"github.com/modelci/suite-tools/pkg/ownership"
	"github.com/modelci/suite-tools/pkg/source"
)

// Synthesizer drives report assembly: header, project table, approval
// tables, task outcome table and resource table, in that order, into one
// append-only buffer.
type Synthesizer struct {
	Workflow *cylc.Workflow
	Conf     *cylc.SuiteConfig
	Sources  *cylc.Sources
	Jobs     *source.JobSources
	Owners   *ownership.Resolver
	VCS      fcm.Interface

	Verbosity  int
	SortByName bool
	// Uncommitted counts projects with uncommitted local modifications.
	Uncommitted int
	// Trustzone is environment-supplied header metadata; empty omits it.
	Trustzone string
	// CreationTime is the generation timestamp shown in the header.
	CreationTime string
	// TmpDir scopes exported files to this report run.
	TmpDir string

	logger *logrus.Entry
}

func (s *Synthesizer) log() *logrus.Entry {
	if s.logger == nil {
		s.logger = logrus.WithField("component", "report")
	}
	return s.logger
}

// onlyCommonGroups reports whether every requested run-group belongs to
// the site's common-groups allowlist, which controls automatic hiding of
// successful tasks at the default verbosity.
func (s *Synthesizer) onlyCommonGroups() bool {
	if s.Conf.Site == "meto" {
		for _, group := range s.Conf.Groups {
			if group == "all" {
				return true
			}
		}
	}
	common := map[string]bool{}
	for _, group := range commonGroups[s.Conf.Site] {
		common[group] = true
	}
	for _, group := range s.Conf.Groups {
		if !common[strings.TrimSpace(group)] {
			return false
		}
	}
	return true
}

// Generate assembles the complete report into buf. On error the buffer
// holds a best-effort partial report; callers must flush it regardless.
func (s *Synthesizer) Generate(buf *bytes.Buffer) error {
	primary := s.Jobs.PrimaryProject()
	colour, ok := backgroundColours[strings.ToLower(primary)]
	if !ok {
		colour = backgroundColours["unknown"]
	}
	fmt.Fprintf(buf, "{{{#!div style='background : %s'\n", colour)

	s.renderHeader(buf)
	fmt.Fprintln(buf, "")

	if s.Uncommitted > 0 {
		s.renderUncommittedWarning(buf)
	}
	if !s.Conf.RequiredComparisons && s.Jobs.Lookup("LFRIC_APPS") == nil {
		s.renderComparisonsWarning(buf)
	}
	if len(s.Sources.MultiBranch) > 0 {
		s.renderMultiBranchWarning(buf)
	}

	s.renderProjectTable(buf)
	fmt.Fprintln(buf, "")

	if !strings.Contains(primary, "LFRIC") && primary != source.UnknownProject {
		s.checkExtractList(buf)
	}

	states, err := s.Workflow.TaskStates()
	if err != nil {
		return fmt.Errorf("read task states: %w", err)
	}
	s.renderTaskSection(buf, states)

	fmt.Fprintln(buf, "")
	fmt.Fprintln(buf, "}}}")
	fmt.Fprintln(buf, "")
	return nil
}

func (s *Synthesizer) renderHeader(w io.Writer) {
	tickets := ""
	for _, project := range s.Jobs.Projects() {
		if project.TicketNumber != "" {
			tickets += fmt.Sprintf("%s:%s ", project.Name, project.TicketNumber)
		}
	}
	title := ""
	if tickets != "" {
		title = "Ticket " + tickets
	}
	title += "Testing Results - rose-stem output"

	header := newHeader(w, title)
	header.Add("Suite Name", s.Workflow.Name)
	header.Add("Suite Owner", s.Workflow.Owner)
	header.Add("Trustzone", s.Trustzone)
	header.Add("FCM version", s.Conf.FCMVersion)
	header.Add("Rose version", s.Conf.RoseVersion)
	header.Add("Cylc version", s.Conf.CylcVersion)
	header.Add("Report Generated", s.CreationTime)
	header.Add("Cylc-Review", fmt.Sprintf("%s/taskjobs/%s/?suite=%s",
		ReviewURL(s.Conf.Site), s.Workflow.Owner, s.Workflow.Name))
	header.Add("Site", s.Conf.Site)
	header.Add("Groups Run", joinGroups(s.Conf.Groups))
	header.Add("''ROSE_ORIG_HOST''", s.Sources.OrigHost)
	if s.Conf.HostXCS {
		header.Add("HOST_XCS", "True")
	}
}

func (s *Synthesizer) renderUncommittedWarning(w io.Writer) {
	word := "change"
	if s.Uncommitted > 1 {
		word = "changes"
	}
	fmt.Fprintln(w, "\n\n-----")
	fmt.Fprintln(w, " = WARNING !!! = ")
	fmt.Fprintf(w, "This rose-stem suite included %d uncommitted project %s and is therefore '''not valid''' for review\n", s.Uncommitted, word)
	fmt.Fprintln(w, "-----")
	fmt.Fprintln(w, "")
}

func (s *Synthesizer) renderComparisonsWarning(w io.Writer) {
	fmt.Fprintln(w, "\n-----")
	fmt.Fprintln(w, " = WARNING !!! = ")
	fmt.Fprintln(w, "This rose-stem suite did not run the required comparisons (COMPARE_OUTPUT and/or COMPARE_WALLCLOCK are not true) and is therefore '''not valid''' for review")
	fmt.Fprintln(w, "-----")
	fmt.Fprintln(w, "")
}

func (s *Synthesizer) renderMultiBranchWarning(w io.Writer) {
	fmt.Fprintln(w, "\n-----")
	fmt.Fprintln(w, " = WARNING !!! = ")
	fmt.Fprintf(w, "This rose-stem suite included multiple branches in %d projects:\n", len(s.Sources.MultiBranch))
	fmt.Fprintln(w, "")

	names := make([]string, 0, len(s.Sources.MultiBranch))
	for name := range s.Sources.MultiBranch {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "'''%s'''\n", name)
		for _, branch := range strings.Fields(s.Sources.MultiBranch[name]) {
			fmt.Fprintf(w, " * %s\n", branch)
		}
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "-----")
	fmt.Fprintln(w, "")
}

func (s *Synthesizer) renderProjectTable(w io.Writer) {
	table := NewTable("Project", "Tested Source Tree", "Repository Location",
		"Branch Parent", "Ticket number", "Uncommitted Changes")

	for _, project := range s.Jobs.Projects() {
		ticket := ""
		if project.TicketNumber != "" {
			ticket = textElement([]string{project.Name + ":" + project.TicketNumber}, "", false)
		}

		changed := ""
		if project.VersionFile != "" && project.WorkingCopyChanged {
			link := fmt.Sprintf("%s/view/%s/%s?path=log/%s",
				ReviewURL(s.Conf.Site), s.Workflow.Owner, s.Workflow.Name, project.VersionFile)
			changed = textElement([]string{"YES"}, link, true)
		}

		_ = table.AddRow(
			project.Name,
			textElement([]string{project.TestedSource}, "", false),
			textElement([]string{project.HumanRepoLoc, project.RepoLoc}, project.RepoLink, false),
			textElement([]string{project.HumanParent, project.ParentLoc}, project.ParentLink, false),
			ticket,
			changed,
		)
	}
	table.Render(w)
}

// renderTaskSection emits the approval tables (UM runs only), the suite
// output section with the resource table, the status tallies and finally
// the itemized task table.
func (s *Synthesizer) renderTaskSection(w io.Writer, states map[string]string) {
	result := buildTaskTable(states, s.Verbosity, s.SortByName, s.onlyCommonGroups())

	if strings.EqualFold(s.Jobs.PrimaryProject(), "um") {
		s.renderApprovals(w, result.failedConfigs)
	}

	fmt.Fprintln(w, "'''Suite Output'''")
	s.renderResourceTable(w)

	result.renderStatusTally(w)
	result.renderHiddenTally(w)

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, result.body)
}

// renderApprovals emits the code-owner then config-owner approval tables.
// A missing owners file degrades to emitting nothing for that mode; an
// empty approval set still emits the "none required" row.
func (s *Synthesizer) renderApprovals(w io.Writer, failedConfigs []string) {
	um := s.Jobs.Lookup("UM")
	if um == nil {
		return
	}

	if table, err := s.Owners.LoadTable(ownership.ModeCode, um.TestedSource); err != nil {
		s.log().WithError(err).Warn("No code owners available, skipping code approvals")
	} else {
		approvals := s.Owners.CodeApprovals(um.ChangedFiles, um.RepoMirror, table)
		s.renderApprovalTable(w, approvals, ownership.ModeCode)
	}

	if table, err := s.Owners.LoadTable(ownership.ModeConfig, um.TestedSource); err != nil {
		s.log().WithError(err).Warn("No config owners available, skipping config approvals")
	} else {
		approvals := s.Owners.ConfigApprovals(failedConfigs, table)
		if len(approvals) == 0 {
			approvals = nil
		}
		s.renderApprovalTable(w, approvals, ownership.ModeConfig)
	}
}

func (s *Synthesizer) renderApprovalTable(w io.Writer, approvals ownership.ApprovalSet, mode ownership.Mode) {
	label := "Code"
	columns := []string{"Owner (Deputy)", "Approval", "Code Section"}
	if mode == ownership.ModeConfig {
		label = "Config"
		columns = []string{"Owner", "Approval", "Configs"}
	}
	table := NewTable(columns...).WithTitle("Required " + label + " Owner Approvals")

	if approvals == nil {
		_ = table.AddRow("", "", fmt.Sprintf("No UM %s Owner Approvals Required", label))
	} else {
		sorted := approvals.Sorted()
		owners := make([]string, 0, len(sorted))
		for owner := range sorted {
			owners = append(owners, owner)
		}
		sort.Strings(owners)
		for _, owner := range owners {
			items := ""
			for i, item := range sorted[owner] {
				if i != 0 && i%3 == 0 {
					items += "[[br]]"
				}
				items += "{{{" + item + "}}} "
			}
			_ = table.AddRow(owner, "Pending", items)
		}
	}
	table.Render(w)
	fmt.Fprintln(w, "")
}
