// Package analyzer downloads every catalog package concurrently and records
// the shared libraries its objects need.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/open-edge-platform/trunk-libdeps/internal/archive"
	"github.com/open-edge-platform/trunk-libdeps/internal/catalog"
	"github.com/open-edge-platform/trunk-libdeps/internal/deps"
	"github.com/open-edge-platform/trunk-libdeps/internal/elfdeps"
	"github.com/open-edge-platform/trunk-libdeps/internal/supplier"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/logger"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/network"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a package archive download answers 404.
	ErrNotFound = errors.New("package archive not found")
	// ErrNoDownload is returned for a catalog entry without download links.
	ErrNoDownload = errors.New("found no download link")
	// ErrCoordination is returned when a package task dies instead of reporting.
	ErrCoordination = errors.New("analysis task failed")
)

// Options configures an Analyzer. Zero values pick defaults.
type Options struct {
	Client   *http.Client
	Resolver supplier.Resolver
	// Timeout bounds each network fetch. Zero means unbounded.
	Timeout time.Duration
	// Progress draws a progress bar on ProgressWriter (stderr when nil).
	Progress       bool
	ProgressWriter io.Writer
}

// Analyzer runs the fetch-unpack-extract-resolve pipeline.
type Analyzer struct {
	client   *http.Client
	resolver supplier.Resolver
	timeout  time.Duration
	progress io.Writer
	runID    string
	log      *zap.SugaredLogger
}

// Failure records why a package is missing from a Report.
type Failure struct {
	Package string
	Err     error
}

// Report maps package names to their dependency sets. It is complete once
// Analyze returns and is not modified afterwards.
type Report struct {
	RunID    string
	Packages map[string]*deps.Set
	Failures []Failure
}

// Names returns the analyzed package names in sorted order.
func (r *Report) Names() []string {
	names := make([]string, 0, len(r.Packages))
	for name := range r.Packages {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New returns an Analyzer, filling unset Options with defaults and a fresh run id.
func New(opts Options) *Analyzer {
	client := opts.Client
	if client == nil {
		client = network.NewSecureHTTPClient(0)
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = supplier.Default()
	}
	var progress io.Writer
	if opts.Progress {
		progress = opts.ProgressWriter
		if progress == nil {
			progress = os.Stderr
		}
	}
	runID := uuid.NewString()
	return &Analyzer{
		client:   client,
		resolver: resolver,
		timeout:  opts.Timeout,
		progress: progress,
		runID:    runID,
		log:      logger.With("run_id", runID),
	}
}

// RunID identifies this Analyzer's run in logs and structured reports.
func (a *Analyzer) RunID() string {
	return a.runID
}

// Run fetches the catalog at registryURL and analyzes every package in it.
// Only a catalog failure is returned as an error.
func (a *Analyzer) Run(ctx context.Context, registryURL string) (*Report, error) {
	fetchCtx, cancel := a.withTimeout(ctx)
	defer cancel()

	pkgs, err := catalog.Fetch(fetchCtx, a.client, registryURL)
	if err != nil {
		return nil, err
	}
	return a.Analyze(ctx, pkgs), nil
}

type result struct {
	name string
	set  *deps.Set
	err  error
}

// Analyze processes all packages concurrently. A failing package is logged
// and left out of the report without affecting the others.
func (a *Analyzer) Analyze(ctx context.Context, pkgs []catalog.Package) *Report {
	report := &Report{
		RunID:    a.runID,
		Packages: make(map[string]*deps.Set, len(pkgs)),
	}
	if len(pkgs) == 0 {
		a.log.Infof("catalog is empty; nothing to analyze")
		return report
	}

	results := make(chan result, len(pkgs))
	for _, pkg := range pkgs {
		go func(pkg catalog.Package) {
			defer func() {
				if r := recover(); r != nil {
					results <- result{name: pkg.Name, err: fmt.Errorf("%w: %v", ErrCoordination, r)}
				}
			}()
			set, err := a.analyzePackage(ctx, pkg)
			results <- result{name: pkg.Name, set: set, err: err}
		}(pkg)
	}

	bar := a.newProgressBar(len(pkgs))
	for range pkgs {
		res := <-results
		if bar != nil {
			bar.Describe(res.name)
			_ = bar.Add(1)
		}
		if res.err != nil {
			a.logFailure(res.name, res.err)
			report.Failures = append(report.Failures, Failure{Package: res.name, Err: res.err})
			continue
		}
		if _, dup := report.Packages[res.name]; dup {
			a.log.Warnf("catalog lists %s more than once; keeping the latest result", res.name)
		}
		report.Packages[res.name] = res.set
		a.log.Debugf("analyzed %s: %d libraries", res.name, res.set.Len())
	}
	if bar != nil {
		_ = bar.Finish()
	}

	slices.SortFunc(report.Failures, func(x, y Failure) int {
		switch {
		case x.Package < y.Package:
			return -1
		case x.Package > y.Package:
			return 1
		}
		return 0
	})
	a.log.Infof("analyzed %d of %d packages (%d failed)", len(report.Packages), len(pkgs), len(report.Failures))
	return report
}

func (a *Analyzer) analyzePackage(ctx context.Context, pkg catalog.Package) (*deps.Set, error) {
	dl, ok := pkg.PrimaryDownload()
	if !ok {
		return nil, fmt.Errorf("%w for trunk project %s", ErrNoDownload, pkg.Name)
	}

	fetchCtx, cancel := a.withTimeout(ctx)
	defer cancel()
	body, err := network.Get(fetchCtx, a.client, dl.Link)
	if err != nil {
		if network.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dl.Link)
		}
		return nil, fmt.Errorf("downloading %s: %w", dl.Link, err)
	}

	entries, err := archive.Unpack(body)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", dl.Link, err)
	}

	set := deps.New(a.resolver)
	for i := range entries {
		libs, err := elfdeps.Extract(entries[i].Data)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entries[i].Path, err)
		}
		set.AddAll(libs)
		entries[i].Data = nil
	}
	return set, nil
}

func (a *Analyzer) logFailure(name string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		a.log.Warnw("package archive not found", "package", name, "error", err)
	case errors.Is(err, ErrCoordination):
		a.log.Errorw("failed to join task", "package", name, "error", err)
	default:
		a.log.Errorw("task failed", "package", name, "error", err)
	}
}

func (a *Analyzer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.timeout)
}

func (a *Analyzer) newProgressBar(total int) *progressbar.ProgressBar {
	if a.progress == nil {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(a.progress),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
