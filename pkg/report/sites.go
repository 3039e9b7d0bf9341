// Package report synthesizes the wiki-markup suite report from the
// inspected workflow, resolved sources and ownership data.
package report

// Per-site conventions. Sites without an entry fall back to the Unknown
// defaults.

// FCMExecutable names the version-control binary per site; the `true`
// no-op stands in where no VCS is installed.
var FCMExecutable = map[string]string{
	"meto":    "fcm",
	"ecmwf":   "fcm",
	"nci":     "fcm",
	"bom":     "fcm",
	"uoe":     "fcm",
	"niwa":    "fcm",
	"kma":     "fcm",
	"vm":      "fcm",
	"jasmin":  "fcm",
	"cehwl1":  "fcm",
	"mss":     "fcm",
	"ncas":    "fcm",
	"psc":     "fcm",
	"uoleeds": "fcm",
	"Unknown": "true",
}

var cylcReviewURL = map[string]string{
	"meto":    "http://fcm1/cylc-review",
	"nci":     "http://accessdev.nci.org.au/cylc-review",
	"bom":     "http://scs-watchdog-dev/rose-bush",
	"niwa":    "http://w-rose01.maui.niwa.co.nz/cylc-review",
	"vm":      "http://localhost/cylc-review",
	"ncas":    "http://puma.nerc.ac.uk/cylc-review",
	"Unknown": "Unavailable",
}

// ReviewURL returns the review-service base URL for a site.
func ReviewURL(site string) string {
	if url, ok := cylcReviewURL[site]; ok {
		return url
	}
	return "Unavailable"
}

// resourceMonitoringTasks is the per-site allowlist of tasks whose captured
// output feeds the resource-usage table.
var resourceMonitoringTasks = map[string][]string{
	"meto": {
		"atmos-xc40_cce_um_fast_omp-seukv-4x9-noios-2t",
	},
}

// commonGroups lists the run-groups per site for which successful tasks
// are hidden at the default verbosity.
var commonGroups = map[string][]string{
	"meto": {
		"all", "nightly", "developer",
		"xc40", "ex1a", "spice",
		"xc40_nightly", "ex1a_nightly", "spice_nightly",
		"xc40_developer", "ex1a_developer", "spice_developer",
		"ukca", "recon", "jules",
		"xc40_ukca", "ex1a_ukca", "spice_ukca",
		"xc40_jules", "ex1a_jules", "spice_jules",
	},
}

// backgroundColours keys the report's background on the primary project.
var backgroundColours = map[string]string{
	"um":         "#FFFFBF",
	"lfric_apps": "#E9D2FF",
	"jules":      "#BFD0FF",
	"ukca":       "#BFFFD1",
	"unknown":    "#BFFFD1",
}

// highlightedComparisonFails marks comparison-task failures that need
// extra care before approval; a failed task whose name contains any of
// these substrings is reclassified into the flagged-failure bucket.
var highlightedComparisonFails = []string{
	"_vs_",
	"lrun_crun_atmos",
	"proc",
	"atmos_omp",
	"atmos_nruncrun",
	"atmos_thread",
	"-v-",
}
