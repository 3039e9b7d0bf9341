package source

import (
	"fmt"
	"sort"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/modelci/suite-tools/pkg/cylc"
)

// Primary-project precedence. The top-most present component governs the
// report's conventions (approval rules, background colour).
var primaryPrecedence = []string{"LFRIC_APPS", "UM", "JULES", "UKCA"}

// UnknownProject is the primary project of a run whose sources include
// none of the known top-level components.
const UnknownProject = "UNKNOWN"

// JobSources is the ordered collection of all valid Projects for a run.
type JobSources struct {
	projects map[string]*Project
	primary  string
}

// Build merges the configuration-declared sources with the
// scheduler-recorded details and resolves each project. Projects whose
// mirror location cannot be confirmed are dropped entirely, so downstream
// code never observes a partially-resolved project. The returned error
// aggregates non-fatal per-project degradations for logging.
func Build(resolver *Resolver, tested map[string]string, details map[string]cylc.SourceDetails) (*JobSources, error) {
	names := map[string]bool{}
	for name := range tested {
		names[name] = true
	}
	for name := range details {
		names[name] = true
	}

	js := &JobSources{
		projects: map[string]*Project{},
		primary:  UnknownProject,
	}
	for _, candidate := range primaryPrecedence {
		if names[candidate] {
			js.primary = candidate
			break
		}
	}

	var dropped []error
	for _, name := range sortedNames(names) {
		project := resolver.NewProject(name, tested[name], details[name])
		if !project.Valid {
			dropped = append(dropped, fmt.Errorf("project %s: mirror %q not accessible", name, project.RepoMirror))
			continue
		}
		js.projects[name] = project
	}
	return js, utilerrors.NewAggregate(dropped)
}

func sortedNames(names map[string]bool) []string {
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	return sorted
}

// PrimaryProject names the component whose conventions govern the report.
func (js *JobSources) PrimaryProject() string {
	return js.primary
}

// Projects returns the valid projects in name order.
func (js *JobSources) Projects() []*Project {
	names := make([]string, 0, len(js.projects))
	for name := range js.projects {
		names = append(names, name)
	}
	sort.Strings(names)
	projects := make([]*Project, 0, len(names))
	for _, name := range names {
		projects = append(projects, js.projects[name])
	}
	return projects
}

// Lookup returns the named project, or nil when it is absent or was
// dropped as invalid.
func (js *JobSources) Lookup(name string) *Project {
	return js.projects[name]
}
