// Package fcm wraps the fcm version-control CLI. The suite report only
// needs a handful of read-only subcommands, so the whole tool is modelled
// as a narrow capability interface that callers receive by injection.
package fcm

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// exportAttempts bounds retries for subcommands that cross the network.
const exportAttempts = 5

// Layout holds the structural metadata reported by `fcm loc-layout`.
type Layout struct {
	Root    string
	Project string
	Path    string
	PegRev  string
}

// Interface is the capability surface of the fcm executable used by the
// suite report.
type Interface interface {
	// Exists reports whether a repository URL is accessible.
	Exists(url string) bool
	// HeadRevision returns the last-changed revision of a location.
	HeadRevision(url string) (string, error)
	// BranchParent returns the parent branch of a location, or the empty
	// string for trunk locations.
	BranchParent(url string) (string, error)
	// LastLog returns the lines of the most recent log entry.
	LastLog(url string) ([]string, error)
	// Export copies one file out of the repository into dest, retrying on
	// failure.
	Export(url, path, dest string) error
	// LocLayout queries the structural metadata of a location.
	LocLayout(url string) (*Layout, error)
	// Keywords lists the configured location keywords and their URLs.
	Keywords() (map[string]string, error)
	// BranchDiff returns the repository-relative paths changed on a branch
	// relative to its parent, retrying on failure.
	BranchDiff(url string) ([]string, error)
}

// Client runs a real fcm executable. The executable name is site-dependent
// and must be provided by the caller.
type Client struct {
	executable string
	logger     *logrus.Entry
}

func NewClient(executable string) *Client {
	return &Client{
		executable: executable,
		logger:     logrus.WithField("component", "fcm"),
	}
}

// run invokes the executable and returns stdout split into lines. When
// ignoreFail is set a non-zero exit is not an error and the (possibly
// partial) output is still returned.
func (c *Client) run(ignoreFail bool, args ...string) ([]string, error) {
	cmd := exec.Command(c.executable, args...)
	c.logger.WithField("args", cmd.Args).Debug("Constructed fcm command")
	out, err := cmd.Output()
	lines := strings.Split(string(out), "\n")
	if err != nil && !ignoreFail {
		return lines, fmt.Errorf("running %s %v failed: %w", c.executable, args, err)
	}
	return lines, nil
}

func (c *Client) Exists(url string) bool {
	_, err := c.run(false, "info", url)
	return err == nil
}

var lastChangedRev = regexp.MustCompile(`Last Changed Rev:\s*(\d+)`)

func (c *Client) HeadRevision(url string) (string, error) {
	lines, err := c.run(false, "branch-info", url)
	if err != nil {
		return "", err
	}
	for _, line := range lines {
		if m := lastChangedRev.FindStringSubmatch(line); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("no last changed revision reported for %s", url)
}

var branchParent = regexp.MustCompile(`Branch Parent:\s*(.*)`)

func (c *Client) BranchParent(url string) (string, error) {
	// branch-info exits non-zero for trunk URLs, which simply means there
	// is no parent.
	lines, err := c.run(true, "branch-info", url)
	if err != nil {
		return "", err
	}
	parent := ""
	for _, line := range lines {
		if m := branchParent.FindStringSubmatch(line); m != nil {
			parent = strings.TrimRight(m[1], " \t")
		}
	}
	return parent, nil
}

func (c *Client) LastLog(url string) ([]string, error) {
	return c.run(false, "log", "-l", "1", url)
}

func (c *Client) Export(url, path, dest string) error {
	source := url + "/" + strings.TrimLeft(path, "/")
	var err error
	for attempt := 0; attempt < exportAttempts; attempt++ {
		_, err = c.run(false, "export", "-q", source, dest, "--force")
		if err == nil {
			return nil
		}
		c.logger.WithError(err).WithField("attempt", attempt+1).Warn("fcm export failed")
	}
	return fmt.Errorf("exporting %s failed after %d attempts: %w", source, exportAttempts, err)
}

var (
	layoutRoot    = regexp.MustCompile(`^root:\s*`)
	layoutProject = regexp.MustCompile(`^project:\s*`)
	layoutPath    = regexp.MustCompile(`^path:\s*`)
	layoutPegRev  = regexp.MustCompile(`^peg_rev:\s*`)
)

func (c *Client) LocLayout(url string) (*Layout, error) {
	lines, err := c.run(false, "loc-layout", url)
	if err != nil {
		return nil, err
	}
	layout := &Layout{}
	for _, line := range lines {
		switch {
		case layoutRoot.MatchString(line):
			layout.Root = layoutRoot.ReplaceAllString(line, "")
		case layoutProject.MatchString(line):
			layout.Project = layoutProject.ReplaceAllString(line, "")
		case layoutPath.MatchString(line):
			layout.Path = layoutPath.ReplaceAllString(line, "")
		case layoutPegRev.MatchString(line):
			layout.PegRev = layoutPegRev.ReplaceAllString(line, "")
		}
	}
	return layout, nil
}

var keywordEntry = regexp.MustCompile(`\[(.*)\]\s*=\s*(.*)`)

func (c *Client) Keywords() (map[string]string, error) {
	lines, err := c.run(false, "kp")
	if err != nil {
		return nil, err
	}
	keywords := map[string]string{}
	for _, line := range lines {
		if !strings.Contains(line, "location{primary}") {
			continue
		}
		if m := keywordEntry.FindStringSubmatch(line); m != nil {
			keywords[m[1]] = m[2]
		}
	}
	return keywords, nil
}

func (c *Client) BranchDiff(url string) ([]string, error) {
	var lines []string
	var err error
	for attempt := 0; attempt < exportAttempts; attempt++ {
		lines, err = c.run(false, "bdiff", "--summarize", url)
		if err == nil {
			return parseBranchDiff(lines, url), nil
		}
		c.logger.WithError(err).WithField("attempt", attempt+1).Warn("fcm bdiff failed")
	}
	return nil, fmt.Errorf("diffing %s against its parent failed after %d attempts: %w", url, exportAttempts, err)
}

// parseBranchDiff converts `bdiff --summarize` output into paths relative
// to the branch root. Each line is a status letter followed by a location.
func parseBranchDiff(lines []string, url string) []string {
	base := strings.SplitN(url, "@", 2)[0]
	var paths []string
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		entry := fields[len(fields)-1]
		entry = strings.SplitN(entry, "@", 2)[0]
		entry = strings.TrimPrefix(entry, base)
		entry = strings.TrimLeft(entry, "/")
		if entry == "" {
			entry = "."
		}
		paths = append(paths, entry)
	}
	return paths
}
