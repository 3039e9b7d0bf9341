package cylc

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// SuiteConfig carries the settings scanned out of the rose suite run
// configuration.
type SuiteConfig struct {
	Site        string
	Groups      []string
	FCMVersion  string
	RoseVersion string
	CylcVersion string
	// RequiredComparisons is true when every comparison flag present in
	// the configuration was enabled. A configuration with no comparison
	// flags at all counts as complete.
	RequiredComparisons bool
	// HostXCS marks runs that targeted the xcs research host.
	HostXCS bool
}

// Sources is the result of scanning the processed configuration for
// tested-source declarations.
type Sources struct {
	// Tested maps project name to the first source string declared for it.
	Tested map[string]string
	// MultiBranch records projects whose declaration listed more than one
	// source, keyed to the full space-separated value.
	MultiBranch map[string]string
	// OrigHost is the host rose was launched on.
	OrigHost string
}

// RemoveQuotes strips single and double quotes; configuration values are
// quoted inconsistently across sites.
func RemoveQuotes(s string) string {
	return strings.NewReplacer(`"`, "", `'`, "").Replace(s)
}

// ParseRunConf scans the rose suite run configuration line by line. The
// file is not INI: keys repeat, there are no sections, and one trigger is
// a raw line match, so no structured parser fits.
func (w *Workflow) ParseRunConf() (*SuiteConfig, error) {
	path, err := w.RunConfPath()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open run configuration: %w", err)
	}
	defer f.Close()

	conf := &SuiteConfig{Site: "Unknown"}
	compare := map[string]bool{}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "=") {
			continue
		}
		key, value, _ := strings.Cut(strings.TrimSpace(line), "=")

		switch key {
		case "SITE":
			conf.Site = RemoveQuotes(strings.TrimSpace(value))
		case "RUN_NAMES":
			value = strings.NewReplacer("[", "", "]", "").Replace(value)
			for _, group := range strings.Split(value, ",") {
				conf.Groups = append(conf.Groups, RemoveQuotes(strings.TrimSpace(group)))
			}
		case "FCM_VERSION":
			conf.FCMVersion = RemoveQuotes(strings.TrimSpace(value))
		case "ROSE_VERSION":
			conf.RoseVersion = RemoveQuotes(strings.TrimSpace(value))
		case "CYLC_VERSION":
			conf.CylcVersion = RemoveQuotes(strings.TrimSpace(value))
		case "COMPARE_OUTPUT", "COMPARE_WALLCLOCK":
			compare[key] = strings.Contains(strings.ToLower(value), "true")
		case "METO_HPC_GROUP":
			if strings.Contains(value, "xcs") {
				conf.HostXCS = true
			}
		}
		if strings.Contains(line, "HOST_XC40='xcsr'") {
			conf.HostXCS = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	conf.RequiredComparisons = true
	for _, enabled := range compare {
		conf.RequiredComparisons = conf.RequiredComparisons && enabled
	}
	return conf, nil
}

var (
	origHostPattern = regexp.MustCompile(`ROSE_ORIG_HOST\s*=\s*(.*)`)
	// Suffixed forms (SOURCE_PROJ_BASE etc) must be captured so that a
	// bare SOURCE_PROJ can override them; _REV entries would otherwise
	// masquerade as projects of their own and are discarded.
	sourcePattern = regexp.MustCompile(`^\s*(?:HOST_SOURCE_|SOURCE_)(.*?)(|_BASE|_MIRROR|_REV)\s*=\s*(.*)`)
)

// ParseProcessedConfig scans the processed suite configuration for
// tested-source declarations and the originating host.
func (w *Workflow) ParseProcessedConfig() (*Sources, error) {
	path, err := w.ProcessedConfigPath()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open processed configuration: %w", err)
	}
	defer f.Close()

	sources := &Sources{
		Tested:      map[string]string{},
		MultiBranch: map[string]string{},
		OrigHost:    "Unknown rose_orig_host",
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if m := origHostPattern.FindStringSubmatch(line); m != nil {
			sources.OrigHost = strings.TrimRight(m[1], " \t")
		}
		m := sourcePattern.FindStringSubmatch(line)
		if m == nil || m[2] == "_REV" {
			continue
		}
		project, suffix, value := m[1], m[2], m[3]
		if _, seen := sources.Tested[project]; seen && suffix != "" {
			// Only the unsuffixed form may override an existing entry.
			continue
		}
		if strings.Contains(value, " ") {
			sources.MultiBranch[project] = value
			value = strings.Fields(value)[0]
		}
		sources.Tested[project] = value
	}
	return sources, scanner.Err()
}
