// Package resolver walks a package batch's transitive dependencies
// and rebuilds, through the conversion pipeline, every one the target
// distribution cannot satisfy at a compatible version.
package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-version"
	"github.com/sirupsen/logrus"

	"github.com/emufarm/pkgcross/internal/convert"
	"github.com/emufarm/pkgcross/internal/depmap"
	"github.com/emufarm/pkgcross/internal/models"
	"github.com/emufarm/pkgcross/internal/signer"
)

// DefaultSizeLimit is the artifact byte size over which a fetched
// dependency is skipped, chosen to stay under the hosting platform's
// 100 MB upload limit
const DefaultSizeLimit = 95 * 1024 * 1024

// DefaultConcurrency bounds parallel fetch/rebuild tasks
const DefaultConcurrency = 4

// Options configure a resolver run
type Options struct {
	// Target is the distribution the batch installs onto
	Target Repository

	// Source is the distribution missing dependencies are fetched from
	Source Repository

	// Prefix disambiguates rebuilt dependency names; defaults to the
	// source distribution's codename
	Prefix string

	// Concurrency bounds the rebuild worker pool
	Concurrency int

	// SizeLimit is the fetched artifact byte ceiling; 0 means
	// DefaultSizeLimit, negative disables the check
	SizeLimit int64

	// OutputDir receives rebuilt artifacts
	OutputDir string

	// DepMap carries name translations; rebuilt pairs are appended
	// to it between rounds
	DepMap *depmap.Map

	// Signer, when set, signs rebuilt artifacts
	Signer signer.Signer
}

// Failure records one dependency the run could not resolve
type Failure struct {
	Name  string
	Stage string
	Err   error
}

// Summary is the outcome of a resolver run
type Summary struct {
	// Rounds is how many query/rebuild rounds ran
	Rounds int

	// Satisfied names already available in the target distribution
	// at a compatible version
	Satisfied []string

	// Rebuilt maps original dependency names to the names they were
	// republished under
	Rebuilt map[string]string

	// Failures in classification, fetch or rebuild; never fatal to
	// the run
	Failures []Failure
}

// FailuresByStage groups failed dependency names by their stage
func (s *Summary) FailuresByStage() map[string][]string {
	grouped := make(map[string][]string)
	for _, f := range s.Failures {
		grouped[f.Stage] = append(grouped[f.Stage], f.Name)
	}
	for _, names := range grouped {
		sort.Strings(names)
	}
	return grouped
}

// Resolver runs the round loop
type Resolver struct {
	opts    Options
	checked map[string]bool
	workDir string
}

// New creates a resolver, applying option defaults
func New(opts Options) *Resolver {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.SizeLimit == 0 {
		opts.SizeLimit = DefaultSizeLimit
	}
	if opts.Prefix == "" && opts.Source != nil {
		opts.Prefix = opts.Source.Codename()
	}
	if opts.DepMap == nil {
		opts.DepMap = depmap.New()
	}
	return &Resolver{
		opts:    opts,
		checked: make(map[string]bool),
	}
}

// Run resolves the dependency closure of the given package files.
// Individual dependency failures are collected in the summary; only
// input scanning, batch queries and cancellation abort the run.
func (r *Resolver) Run(ctx context.Context, paths []string) (*Summary, error) {
	summary := &Summary{Rebuilt: make(map[string]string)}

	workDir, err := os.MkdirTemp("", "pkgcross-resolve-")
	if err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	r.workDir = workDir
	defer os.RemoveAll(workDir)

	frontier, err := r.scan(paths)
	if err != nil {
		return nil, err
	}

	for {
		names := r.takeUnchecked(frontier)
		if len(names) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Rounds++
		logrus.Infof("Resolution round %d: checking %d dependencies", summary.Rounds, len(names))

		targetAvail, err := r.opts.Target.Available(ctx, names)
		if err != nil {
			return summary, fmt.Errorf("querying %s: %w", r.opts.Target.Codename(), err)
		}
		sourceAvail, err := r.opts.Source.Available(ctx, names)
		if err != nil {
			return summary, fmt.Errorf("querying %s: %w", r.opts.Source.Codename(), err)
		}

		var tasks []task
		for _, name := range names {
			tgt, inTarget := targetAvail[name]
			src, inSource := sourceAvail[name]

			switch {
			case inTarget && (!inSource || Compatible(tgt.Version, src.Version)):
				summary.Satisfied = append(summary.Satisfied, name)
			case !inSource:
				summary.Failures = append(summary.Failures, Failure{
					Name:  name,
					Stage: "unavailable",
					Err: models.Errorf(models.ErrFetchFailed, name,
						"%s is available in neither %s nor %s", name,
						r.opts.Target.Codename(), r.opts.Source.Codename()),
				})
			case r.opts.SizeLimit > 0 && src.Size > r.opts.SizeLimit:
				summary.Failures = append(summary.Failures, oversized(name, src.Size, r.opts.SizeLimit))
				logrus.Warnf("Skipping %s: %d bytes exceeds the %d byte limit", name, src.Size, r.opts.SizeLimit)
			default:
				tasks = append(tasks, task{name: name})
			}
		}

		frontier = frontier[:0]
		for _, res := range r.rebuildAll(ctx, tasks) {
			if res.err != nil {
				summary.Failures = append(summary.Failures, Failure{Name: res.name, Stage: res.stage, Err: res.err})
				logrus.Warnf("Dependency %s failed at %s: %v", res.name, res.stage, res.err)
				continue
			}
			summary.Rebuilt[res.name] = res.newName
			r.opts.DepMap.AddPair(res.name, res.newName)
			frontier = append(frontier, res.subDeps...)
		}
	}

	sort.Strings(summary.Satisfied)
	logrus.Infof("Resolution finished: %d satisfied, %d rebuilt, %d failed in %d rounds",
		len(summary.Satisfied), len(summary.Rebuilt), len(summary.Failures), summary.Rounds)
	return summary, nil
}

// scan collects the initial frontier from the input packages' declared
// dependencies. The batch's own names and provides count as resolved.
func (r *Resolver) scan(paths []string) ([]string, error) {
	var frontier []string
	for _, path := range paths {
		format, err := convert.FormatForPath(path)
		if err != nil {
			return nil, err
		}
		extractor, err := convert.ExtractorFor(format)
		if err != nil {
			return nil, err
		}
		im, err := extractor.Meta(path)
		if err != nil {
			return nil, err
		}

		r.checked[im.Name] = true
		for _, name := range im.Provides {
			r.checked[name] = true
		}
		frontier = append(frontier, im.Depends...)
	}
	return frontier, nil
}

// takeUnchecked filters the frontier against the checked set, marks
// the survivors checked and returns them sorted
func (r *Resolver) takeUnchecked(frontier []string) []string {
	var names []string
	for _, name := range frontier {
		name = strings.TrimSpace(name)
		if name == "" || r.checked[name] {
			continue
		}
		r.checked[name] = true
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type task struct {
	name string
}

type taskResult struct {
	name    string
	stage   string
	newName string
	subDeps []string
	err     error
}

// rebuildAll runs the round's fetch/rebuild tasks through a bounded
// worker pool. Each task works in its own directory and returns a
// private result; nothing shared is written until the merge.
func (r *Resolver) rebuildAll(ctx context.Context, tasks []task) []taskResult {
	if len(tasks) == 0 {
		return nil
	}

	jobChan := make(chan task, len(tasks))
	resultChan := make(chan taskResult, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < r.opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range jobChan {
				resultChan <- r.rebuild(ctx, t)
			}
		}()
	}

	for _, t := range tasks {
		jobChan <- t
	}
	close(jobChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]taskResult, 0, len(tasks))
	for res := range resultChan {
		results = append(results, res)
	}
	return results
}

// rebuild fetches one dependency and pushes it through the conversion
// pipeline under its disambiguated name
func (r *Resolver) rebuild(ctx context.Context, t task) taskResult {
	res := taskResult{name: t.name}

	taskDir, err := os.MkdirTemp(r.workDir, "dep-")
	if err != nil {
		res.stage, res.err = "fetch", err
		return res
	}
	defer os.RemoveAll(taskDir)

	archive, err := r.opts.Source.Fetch(ctx, t.name, taskDir)
	if err != nil {
		res.stage, res.err = "fetch", err
		return res
	}

	if fi, err := os.Stat(archive); err == nil && r.opts.SizeLimit > 0 && fi.Size() > r.opts.SizeLimit {
		over := oversized(t.name, fi.Size(), r.opts.SizeLimit)
		res.stage, res.err = over.Stage, over.Err
		return res
	}

	format, err := convert.FormatForPath(archive)
	if err != nil {
		res.stage, res.err = "extract", err
		return res
	}
	extractor, err := convert.ExtractorFor(format)
	if err != nil {
		res.stage, res.err = "extract", err
		return res
	}
	im, err := extractor.Extract(ctx, archive, filepath.Join(taskDir, "layout"))
	if err != nil {
		res.stage, res.err = "extract", err
		return res
	}
	res.subDeps = append(res.subDeps, im.Depends...)
	im.SourceDistro = r.opts.Source.Codename()

	newName := r.opts.Prefix + "-" + t.name
	if _, err := convert.Emit(ctx, im, convert.Options{
		Target:    r.opts.Target.Format(),
		OutputDir: r.opts.OutputDir,
		NewName:   newName,
		DepMap:    r.opts.DepMap,
		Signer:    r.opts.Signer,
	}); err != nil {
		res.stage, res.err = "rebuild", err
		return res
	}

	res.newName = newName
	return res
}

func oversized(name string, size, limit int64) Failure {
	return Failure{
		Name:  name,
		Stage: "oversized",
		Err: models.Errorf(models.ErrOversizedArtifact, name,
			"%s is %d bytes, over the %d byte limit", name, size, limit),
	}
}

// Compatible reports whether two version strings agree on their
// major.minor components. Strings that do not parse as versions fall
// back to exact equality after stripping epoch and revision.
func Compatible(a, b string) bool {
	aBare := models.StripEpochRevision(a)
	bBare := models.StripEpochRevision(b)

	av, aErr := version.NewVersion(aBare)
	bv, bErr := version.NewVersion(bBare)
	if aErr != nil || bErr != nil {
		return aBare == bBare
	}

	aSeg, bSeg := av.Segments(), bv.Segments()
	return aSeg[0] == bSeg[0] && aSeg[1] == bSeg[1]
}
