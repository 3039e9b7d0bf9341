package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/modelci/suite-tools/pkg/cylc"
	"github.com/modelci/suite-tools/pkg/fcm"
	"github.com/modelci/suite-tools/pkg/ownership"
	"github.com/modelci/suite-tools/pkg/report"
	"github.com/modelci/suite-tools/pkg/source"
)

const defaultVerbosity = 3

// counter is a repeatable boolean flag that counts its occurrences, so
// -v -v and -q stack the way they do in the legacy interface.
type counter int

func (c *counter) String() string     { return strconv.Itoa(int(*c)) }
func (c *counter) Set(_ string) error { *c++; return nil }
func (c *counter) IsBoolFlag() bool   { return true }

type options struct {
	suitePath  string
	logPath    string
	verbose    counter
	quiet      counter
	sortByName bool

	verbosity int
}

func gatherOptions() options {
	o := options{}
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	fs.StringVar(&o.suitePath, "suite-path", cylc.DefaultRunDir(), "Path to the suite run directory being reported on.")
	fs.StringVar(&o.suitePath, "S", cylc.DefaultRunDir(), "Short form of --suite-path.")
	fs.StringVar(&o.logPath, "log-path", "", "Directory the report is written into. Defaults to the suite run directory.")
	fs.StringVar(&o.logPath, "L", "", "Short form of --log-path.")
	fs.Var(&o.verbose, "verbose", "Show more tasks in the task table. Can be passed multiple times.")
	fs.Var(&o.verbose, "v", "Short form of --verbose.")
	fs.Var(&o.quiet, "quiet", "Hide more tasks in the task table. Can be passed multiple times.")
	fs.Var(&o.quiet, "q", "Short form of --quiet.")
	fs.BoolVar(&o.sortByName, "name-sort", false, "Sort the task table by task name rather than by state.")
	fs.BoolVar(&o.sortByName, "N", false, "Short form of --name-sort.")

	if err := fs.Parse(os.Args[1:]); err != nil {
		logrus.WithError(err).Fatal("could not parse input")
	}

	o.verbosity = defaultVerbosity - int(o.verbose) + int(o.quiet)

	// The legacy positional interface: suite path, log path, verbosity.
	switch args := fs.Args(); len(args) {
	case 0:
	case 3:
		o.suitePath = args[0]
		o.logPath = args[1]
		verbosity, err := strconv.Atoi(args[2])
		if err != nil {
			logrus.WithError(err).Fatalf("verbosity argument %q is not a number", args[2])
		}
		o.verbosity = verbosity
	default:
		logrus.Fatalf("expected no positional arguments or exactly three (suite path, log path, verbosity), got %d", len(args))
	}
	return o
}

func (o *options) validate() error {
	if o.suitePath == "" {
		return fmt.Errorf("a suite path is required: pass --suite-path or run inside a cylc task")
	}
	info, err := os.Stat(o.suitePath)
	if err != nil {
		return fmt.Errorf("cannot read suite path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("suite path %s is not a directory", o.suitePath)
	}
	if o.logPath != "" {
		if info, err := os.Stat(o.logPath); err != nil || !info.IsDir() {
			return fmt.Errorf("log path %s is not a readable directory", o.logPath)
		}
	}
	return nil
}

func main() {
	o := gatherOptions()
	if err := o.validate(); err != nil {
		logrus.WithError(err).Fatal("invalid options")
	}
	logger := logrus.WithField("component", "suite-report")

	tmpDir, err := os.MkdirTemp("", "suite-report")
	if err != nil {
		logrus.WithError(err).Fatal("could not create scratch directory")
	}
	defer os.RemoveAll(tmpDir)

	workflow, err := cylc.New(o.suitePath)
	if err != nil {
		logrus.WithError(err).Fatal("could not inspect the suite run directory")
	}

	conf, err := workflow.ParseRunConf()
	if err != nil {
		logrus.WithError(err).Fatal("could not parse the rose-suite-run configuration")
	}
	sources, err := workflow.ParseProcessedConfig()
	if err != nil {
		logrus.WithError(err).Fatal("could not parse the processed suite configuration")
	}

	executable, ok := report.FCMExecutable[conf.Site]
	if !ok {
		executable = report.FCMExecutable["Unknown"]
	}
	vcs := fcm.NewClient(executable)

	keywords := source.KeywordTable{}
	if raw, err := vcs.Keywords(); err != nil {
		logger.WithError(err).Warn("could not read fcm keywords, repository links will be degraded")
	} else {
		keywords = source.FilterKeywords(raw)
	}

	details, uncommitted, err := workflow.ProjectDetails()
	if err != nil {
		logrus.WithError(err).Fatal("could not read project version details")
	}

	jobs, err := source.Build(source.NewResolver(keywords, vcs), sources.Tested, details)
	if err != nil {
		logger.WithError(err).Warn("some project sources could not be resolved")
	}

	synthesizer := &report.Synthesizer{
		Workflow:     workflow,
		Conf:         conf,
		Sources:      sources,
		Jobs:         jobs,
		Owners:       ownership.NewResolver(vcs, tmpDir),
		VCS:          vcs,
		Verbosity:    o.verbosity,
		SortByName:   o.sortByName,
		Uncommitted:  uncommitted,
		Trustzone:    os.Getenv("TRUSTZONE"),
		CreationTime: time.Now().Format("2006-01-02 15:04:05"),
		TmpDir:       tmpDir,
	}

	var buf bytes.Buffer
	if err := synthesizer.Generate(&buf); err != nil {
		logger.WithError(err).Error("report generation failed, flushing the partial report")
		report.AppendFailureNotice(&buf, workflow.SchedulerLogPath(), err)
	}

	dest := o.logPath
	if dest == "" {
		dest = workflow.Path
	}
	if err := report.Write(buf.String(), dest); err != nil {
		logrus.WithError(err).Fatal("could not write the report")
	}
}
