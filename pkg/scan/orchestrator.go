// Package scan runs complete assessments: validate the target, crawl
// its surface, execute the detector registry, and aggregate findings
// into a summary. Jobs move through a small state machine and always
// end in completed, failed, or timed_out.
package scan

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/defendx/defendx/pkg/config"
	"github.com/defendx/defendx/pkg/cookies"
	"github.com/defendx/defendx/pkg/cors"
	"github.com/defendx/defendx/pkg/crawler"
	"github.com/defendx/defendx/pkg/detect"
	"github.com/defendx/defendx/pkg/disclosure"
	"github.com/defendx/defendx/pkg/exposure"
	"github.com/defendx/defendx/pkg/fetcher"
	"github.com/defendx/defendx/pkg/headers"
	"github.com/defendx/defendx/pkg/scoring"
	"github.com/defendx/defendx/pkg/sqli"
	"github.com/defendx/defendx/pkg/surface"
	"github.com/defendx/defendx/pkg/telemetry"
	"github.com/defendx/defendx/pkg/validate"
	"github.com/defendx/defendx/pkg/xss"
)

// ErrNotAuthorized rejects a request whose caller did not assert
// authorization to scan the target.
var ErrNotAuthorized = errors.New("scan not authorized for this target")

// Orchestrator runs scans. It is safe for concurrent use; each
// submitted job gets its own fetcher and crawler.
type Orchestrator struct {
	cfg      *config.Config
	registry *detect.Registry
	store    Store
	history  HistoryReader
	weights  scoring.WeightTable
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// Options configures an Orchestrator.
type Options struct {
	// Config overrides the per-mode preset for every job. Leave nil
	// to derive configuration from each request's mode.
	Config *config.Config

	// Registry overrides the default detector set.
	Registry *detect.Registry

	// Store receives finished results. Optional.
	Store Store

	// History feeds health scoring. Optional; defaults to Store when
	// it implements HistoryReader.
	History HistoryReader

	Weights *scoring.WeightTable
	Metrics *telemetry.Metrics
	Logger  *slog.Logger
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		cfg:      opts.Config,
		registry: opts.Registry,
		store:    opts.Store,
		history:  opts.History,
		weights:  scoring.DefaultWeights(),
		metrics:  opts.Metrics,
		logger:   opts.Logger,
	}
	if opts.Weights != nil {
		o.weights = *opts.Weights
	}
	if o.history == nil {
		if hr, ok := opts.Store.(HistoryReader); ok {
			o.history = hr
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// DefaultRegistry builds the detector set for a mode. Discovery maps
// the surface with passive checks only; standard and deep add the
// probing detectors.
func DefaultRegistry(mode config.Mode, cfg *config.Config) *detect.Registry {
	r := detect.NewRegistry()
	must := func(err error) {
		if err != nil {
			panic(err)
		}
	}
	must(r.Register(headers.New(cfg.SamplePages)))
	must(r.Register(cookies.New(cfg.SamplePages)))
	must(r.Register(disclosure.New(cfg.SamplePages)))
	if mode == config.ModeDiscovery {
		return r
	}
	must(r.Register(exposure.New()))
	must(r.Register(cors.New()))
	must(r.Register(sqli.New(cfg.MaxFormsProbed)))
	must(r.Register(xss.New(cfg.MaxFormsProbed)))
	return r
}

// Submit validates the request and starts the scan asynchronously.
// Authorization and target validation happen here, before any network
// traffic; a rejected request returns an error and no job.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Job, error) {
	if !req.Authorized {
		return nil, ErrNotAuthorized
	}
	if req.Mode == "" {
		req.Mode = config.ModeStandard
	}
	if _, err := config.ParseMode(string(req.Mode)); err != nil {
		return nil, err
	}

	cfg := o.cfg
	if cfg == nil {
		cfg = config.ForMode(req.Mode)
	}

	if _, err := validate.TargetWithOptions(req.Target, validate.Options{AllowPrivate: cfg.AllowPrivateTargets}); err != nil {
		return nil, err
	}

	job := newJob()
	go o.execute(ctx, job, req, cfg)
	return job, nil
}

// Run is the synchronous form of Submit.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Result, error) {
	job, err := o.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return job.Wait(ctx)
}

func (o *Orchestrator) execute(ctx context.Context, job *Job, req Request, cfg *config.Config) {
	job.setRunning()
	start := time.Now()
	logger := o.logger.With(
		slog.String("scan_id", job.ID()),
		slog.String("target", req.Target),
		slog.String("mode", string(req.Mode)))
	logger.Info("scan started")

	scanCtx, cancel := context.WithTimeout(ctx, cfg.ScanDeadline)
	defer cancel()

	type outcome struct {
		snap *surface.Snapshot
		err  error
	}
	bodyDone := make(chan outcome, 1)

	// Findings stream into the collector as each detector finishes, so
	// abandoning the body at the deadline keeps what completed
	// detectors already reported.
	col := detect.NewCollector()

	go func() {
		var out outcome
		out.snap, out.err = o.runScanBody(scanCtx, req, cfg, logger, col)
		bodyDone <- out
	}()

	// After the deadline, detectors get a grace period to deliver the
	// partial findings they already hold.
	var out outcome
	select {
	case out = <-bodyDone:
	case <-time.After(cfg.ScanDeadline + cfg.DetectorGrace):
		out = outcome{err: context.DeadlineExceeded}
	}

	result := &Result{
		ScanID:    job.ID(),
		Target:    req.Target,
		Mode:      req.Mode,
		Snapshot:  out.snap,
		Findings:  col.Findings(),
		StartedAt: start,
		Duration:  time.Since(start),
	}

	var state State
	switch {
	case errors.Is(scanCtx.Err(), context.DeadlineExceeded) || errors.Is(out.err, context.DeadlineExceeded):
		state = StateTimedOut
		result.TimedOut = true
		result.Summary = scoring.Summarize(result.Findings, false)
	case out.err != nil:
		state = StateFailed
		result.Failed = true
		result.Error = out.err.Error()
		result.Summary = scoring.Summarize(result.Findings, true)
	default:
		state = StateCompleted
		result.Summary = scoring.Summarize(result.Findings, false)
	}

	o.record(result, state, logger)
	job.finish(state, result)
}

// runScanBody is the crawl-then-detect pipeline. Findings go through
// col rather than the return value so they survive the body being
// abandoned at the deadline.
func (o *Orchestrator) runScanBody(ctx context.Context, req Request, cfg *config.Config, logger *slog.Logger, col *detect.Collector) (*surface.Snapshot, error) {
	fetchCfg := fetcher.DefaultConfig()
	fetchCfg.Timeout = cfg.RequestTimeout
	fetchCfg.MaxBodyBytes = cfg.MaxBodyBytes
	fetchCfg.MaxRedirects = cfg.MaxRedirects
	fetchCfg.MinRequestInterval = cfg.MinRequestInterval
	fetch := fetcher.New(fetchCfg)

	crawl := crawler.New(crawler.Config{
		MaxPages:    cfg.MaxPages,
		Concurrency: cfg.CrawlConcurrency,
	}, fetch, logger)

	snap, err := crawl.Crawl(ctx, req.Target)
	if err != nil {
		if o.metrics != nil {
			o.metrics.FetchErrors.WithLabelValues(string(fetcher.KindOf(err))).Inc()
		}
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.PagesCrawled.Add(float64(len(snap.URLs)))
	}
	logger.Info("crawl finished",
		slog.Int("pages", len(snap.URLs)),
		slog.Int("forms", len(snap.Forms)),
		slog.Bool("partial", snap.Partial))

	registry := o.registry
	if registry == nil {
		registry = DefaultRegistry(req.Mode, cfg)
	}
	failures := registry.RunInto(ctx, snap, fetch, cfg.DetectorConcurrency, logger, col)
	for _, f := range failures {
		logger.Warn("detector did not finish", slog.String("detector", f.Detector))
	}

	if ctx.Err() != nil {
		return snap, ctx.Err()
	}
	return snap, nil
}

func (o *Orchestrator) record(result *Result, state State, logger *slog.Logger) {
	if o.metrics != nil {
		o.metrics.ScansTotal.WithLabelValues(string(state)).Inc()
		o.metrics.ScanDuration.Observe(result.Duration.Seconds())
		for _, f := range result.Findings {
			o.metrics.FindingsTotal.WithLabelValues(string(f.Severity)).Inc()
		}
	}
	if o.store != nil {
		if err := o.store.Save(context.Background(), result); err != nil {
			logger.Error("result save failed", slog.Any("error", err))
		}
	}
	logger.Info("scan finished",
		slog.String("state", string(state)),
		slog.Int("findings", len(result.Findings)),
		slog.String("tier", string(result.Summary.RiskTier)),
		slog.Duration("took", result.Duration))
}

// HealthScore computes the target's posture over its deduplicated
// finding history.
func (o *Orchestrator) HealthScore(ctx context.Context, target string) (scoring.HealthScore, error) {
	if o.history == nil {
		return scoring.HealthScore{}, errors.New("no history source configured")
	}
	history, err := o.history.History(ctx, target)
	if err != nil {
		return scoring.HealthScore{}, err
	}
	return scoring.ComputeHealth(scoring.DedupeByKey(history), o.weights), nil
}
