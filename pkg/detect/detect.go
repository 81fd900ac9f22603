// Package detect defines the detector contract and the registry that
// runs every registered detector against a surface snapshot.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/defendx/defendx/pkg/fetcher"
	"github.com/defendx/defendx/pkg/finding"
	"github.com/defendx/defendx/pkg/surface"
	"github.com/defendx/defendx/pkg/workerpool"
)

// Detector inspects a crawled surface for one class of weakness.
// Implementations must be safe for concurrent use and must stop
// promptly when ctx is cancelled.
type Detector interface {
	// Name identifies the detector in findings and logs.
	Name() string

	// Detect runs the check and returns its findings. Partial
	// findings alongside an error are kept.
	Detect(ctx context.Context, snap *surface.Snapshot, fetch *fetcher.Fetcher) ([]finding.Finding, error)
}

// Registry holds detectors in registration order.
type Registry struct {
	mu        sync.Mutex
	detectors []Detector
	names     map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: map[string]bool{}}
}

// Register adds a detector. Registering two detectors with the same
// name is a programming error.
func (r *Registry) Register(d Detector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names[d.Name()] {
		return fmt.Errorf("detector %q already registered", d.Name())
	}
	r.names[d.Name()] = true
	r.detectors = append(r.detectors, d)
	return nil
}

// Detectors returns the registered detectors in registration order.
func (r *Registry) Detectors() []Detector {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Detector, len(r.detectors))
	copy(out, r.detectors)
	return out
}

// Collector accumulates findings as detectors deliver them. It is safe
// for concurrent use, so a caller that abandons a run can still read
// what the detectors finished before the cut.
type Collector struct {
	mu       sync.Mutex
	findings []finding.Finding
}

// NewCollector creates an empty collector.
func NewCollector() *Collector { return &Collector{} }

func (c *Collector) add(fs []finding.Finding) {
	if len(fs) == 0 {
		return
	}
	c.mu.Lock()
	c.findings = append(c.findings, fs...)
	c.mu.Unlock()
}

// Findings returns a copy of everything collected so far. Detector
// completion order is nondeterministic; the copy is sorted so the same
// surface always yields the same report.
func (c *Collector) Findings() []finding.Finding {
	c.mu.Lock()
	out := make([]finding.Finding, len(c.findings))
	copy(out, c.findings)
	c.mu.Unlock()

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].DetectedBy != out[b].DetectedBy {
			return out[a].DetectedBy < out[b].DetectedBy
		}
		return out[a].Key() < out[b].Key()
	})
	return out
}

// RunInto executes every detector against the snapshot with at most
// concurrency in flight, streaming each detector's findings into col
// the moment that detector returns. A detector that fails or panics
// loses only its own findings; partial findings returned with an error
// are kept. DetectorError entries report what went wrong per detector.
func (r *Registry) RunInto(ctx context.Context, snap *surface.Snapshot, fetch *fetcher.Fetcher, concurrency int, logger *slog.Logger, col *Collector) []DetectorError {
	if logger == nil {
		logger = slog.Default()
	}
	detectors := r.Detectors()

	errs := workerpool.ParallelFor(ctx, concurrency, len(detectors), func(ctx context.Context, i int) error {
		d := detectors[i]
		start := time.Now()

		got, err := d.Detect(ctx, snap, fetch)
		for j := range got {
			if got[j].DetectedBy == "" {
				got[j].DetectedBy = d.Name()
			}
			got[j].Category = got[j].Category.Canonical()
		}
		col.add(got)

		logger.Debug("detector finished",
			slog.String("detector", d.Name()),
			slog.Int("findings", len(got)),
			slog.Duration("took", time.Since(start)))
		return err
	})

	var failures []DetectorError
	for i, err := range errs {
		if err == nil {
			continue
		}
		logger.Warn("detector failed",
			slog.String("detector", detectors[i].Name()),
			slog.Any("error", err))
		failures = append(failures, DetectorError{Detector: detectors[i].Name(), Err: err})
	}
	return failures
}

// Run executes every detector and returns the combined findings once
// all of them have finished.
func (r *Registry) Run(ctx context.Context, snap *surface.Snapshot, fetch *fetcher.Fetcher, concurrency int, logger *slog.Logger) ([]finding.Finding, []DetectorError) {
	col := NewCollector()
	failures := r.RunInto(ctx, snap, fetch, concurrency, logger, col)
	return col.Findings(), failures
}

// DetectorError records one detector's failure during a run.
type DetectorError struct {
	Detector string
	Err      error
}

func (e DetectorError) Error() string {
	return "detector " + e.Detector + ": " + e.Err.Error()
}
