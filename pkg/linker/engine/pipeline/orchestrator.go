// Package pipeline runs the image linking job: it promotes reviewed candidates, reads the
// catalog and the bucket, matches image filenames to SKUs and writes links or candidates,
// reporting progress through a Tracker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/storage"
	"github.com/tigerroll/imagelink/pkg/linker/component/report"
	config "github.com/tigerroll/imagelink/pkg/linker/core/config"
	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	repository "github.com/tigerroll/imagelink/pkg/linker/core/domain/repository"
	"github.com/tigerroll/imagelink/pkg/linker/core/match"
	metrics "github.com/tigerroll/imagelink/pkg/linker/core/metrics"
	"github.com/tigerroll/imagelink/pkg/linker/engine/step/retry"
	"github.com/tigerroll/imagelink/pkg/linker/engine/step/skip"
	"github.com/tigerroll/imagelink/pkg/linker/listener/notification"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

// Step names, in execution order.
const (
	StepPromoteCandidates = "promote-candidates"
	StepScanProducts      = "scan-products"
	StepScanStorage       = "scan-storage"
	StepMatch             = "match"
	StepWrite             = "write"
	StepSummarize         = "summarize"
)

// StepNames lists the steps of a run.
var StepNames = []string{StepPromoteCandidates, StepScanProducts, StepScanStorage, StepMatch, StepWrite, StepSummarize}

// Request starts a run. ConfidenceThreshold is already resolved against the configured default.
// Prepared is set once Prepare has persisted the session; Run then adopts that row.
type Request struct {
	SessionID           string
	ConfidenceThreshold int
	Prepared            bool
}

// Summary is the outcome of a completed run.
type Summary struct {
	SessionID    string
	Duration     time.Duration
	Counters     model.Counters
	MatchesFound int
	Skipped      int
	ErrorCount   int
	BySource     map[string]int
	SkipReasons  map[string]int
	ReportObject string
}

// SessionSummary converts s into the form stored on the session.
func (s *Summary) SessionSummary() *model.SessionSummary {
	return &model.SessionSummary{
		DurationSeconds: s.Duration.Seconds(),
		MatchesFound:    s.MatchesFound,
		Skipped:         s.Skipped,
		ErrorCount:      s.ErrorCount,
		BySource:        s.BySource,
		SkipReasons:     s.SkipReasons,
		ReportObject:    s.ReportObject,
		Counters:        s.Counters,
	}
}

// OrchestratorParams are the dependencies of NewOrchestrator.
type OrchestratorParams struct {
	fx.In
	Config          *config.Config
	Catalog         repository.CatalogReader
	Images          repository.ImageRepository
	Sessions        repository.SessionRepository
	StorageResolver storage.StorageConnectionResolver
	Notifier        notification.Notifier
	Recorder        metrics.MetricRecorder           `optional:"true"`
	Tracer          metrics.Tracer                   `optional:"true"`
	Matcher         *match.Matcher                   `optional:"true"`
	SkipPolicies    *skip.DefaultSkipPolicyFactory   `optional:"true"`
	RetryPolicies   *retry.DefaultRetryPolicyFactory `optional:"true"`
}

// Orchestrator runs the fixed sequence of steps for a session.
type Orchestrator struct {
	cfg             config.PipelineConfig
	reportCfg       config.ReportConfig
	storageRef      string
	catalog         repository.CatalogReader
	images          repository.ImageRepository
	sessions        repository.SessionRepository
	storageResolver storage.StorageConnectionResolver
	notifier        notification.Notifier
	recorder        metrics.MetricRecorder
	tracer          metrics.Tracer
	matcher         *match.Matcher
	skipPolicies    *skip.DefaultSkipPolicyFactory
	retryPolicies   *retry.DefaultRetryPolicyFactory
	now             func() time.Time
}

// NewOrchestrator creates an Orchestrator. Missing observability hooks fall back to no-ops.
func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	o := &Orchestrator{
		cfg:             p.Config.Linker.Pipeline,
		reportCfg:       p.Config.Linker.Report,
		storageRef:      p.Config.Linker.Infrastructure.StorageRef,
		catalog:         p.Catalog,
		images:          p.Images,
		sessions:        p.Sessions,
		storageResolver: p.StorageResolver,
		notifier:        p.Notifier,
		recorder:        p.Recorder,
		tracer:          p.Tracer,
		matcher:         p.Matcher,
		skipPolicies:    p.SkipPolicies,
		retryPolicies:   p.RetryPolicies,
		now:             time.Now,
	}
	if o.recorder == nil {
		o.recorder = metrics.NewNoOpMetricRecorder()
	}
	if o.tracer == nil {
		o.tracer = metrics.NewNoOpTracer()
	}
	if o.matcher == nil {
		o.matcher = match.NewMatcher()
	}
	if o.skipPolicies == nil {
		o.skipPolicies = skip.NewDefaultSkipPolicyFactory()
	}
	if o.retryPolicies == nil {
		o.retryPolicies = retry.NewDefaultRetryPolicyFactory()
	}
	return o
}

// HighThreshold returns the configured confidence for auto-confirmed links.
func (o *Orchestrator) HighThreshold() int { return o.cfg.HighThreshold }

// runState is what the steps of one run share.
type runState struct {
	sessionID  string
	thresholds Thresholds
	tracker    *Tracker
	log        *logger.Scoped
	started    time.Time

	conn     storage.StorageConnection
	report   *report.Writer
	snapshot *CatalogSnapshot
	images   []model.StorageObject
	results  []match.Result
	summary  *Summary
}

type step struct {
	name string
	run  func(ctx context.Context, index int, st *runState) error
}

func (o *Orchestrator) steps() []step {
	return []step{
		{StepPromoteCandidates, o.promoteCandidates},
		{StepScanProducts, o.scanProducts},
		{StepScanStorage, o.scanStorage},
		{StepMatch, o.match},
		{StepWrite, o.write},
		{StepSummarize, o.summarize},
	}
}

// Prepare persists the initializing session for req so it can be polled and cancelled before
// Run picks it up. It returns req marked as prepared.
func (o *Orchestrator) Prepare(ctx context.Context, req Request) (Request, error) {
	if req.SessionID == "" {
		return req, exception.NewBatchError("Orchestrator", "session id is required", nil, false, false)
	}
	tr := NewTracker(o.sessions, o.notifier, o.cfg.ProgressEvery)
	if err := tr.Start(ctx, req.SessionID, len(StepNames), req.ConfidenceThreshold, o.cfg.HighThreshold); err != nil {
		return req, err
	}
	req.Prepared = true
	return req, nil
}

// Run executes every step for req.SessionID and returns the summary. A fatal error marks the
// session as error and is returned; a cancelled session returns an error wrapping ErrCancelled.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Summary, error) {
	if req.SessionID == "" {
		return nil, exception.NewBatchError("Orchestrator", "session id is required", nil, false, false)
	}

	ctx, endSpan := o.tracer.StartSessionSpan(ctx, req.SessionID)
	defer endSpan()

	steps := o.steps()
	st := &runState{
		sessionID:  req.SessionID,
		thresholds: Thresholds{High: o.cfg.HighThreshold, Low: req.ConfidenceThreshold},
		tracker:    NewTracker(o.sessions, o.notifier, o.cfg.ProgressEvery),
		log:        logger.With("session_id", req.SessionID),
		started:    o.now(),
		summary: &Summary{
			SessionID:   req.SessionID,
			BySource:    map[string]int{},
			SkipReasons: map[string]int{},
		},
	}

	if req.Prepared {
		if err := st.tracker.Resume(ctx, req.SessionID); err != nil {
			if errors.Is(err, ErrCancelled) {
				st.log.Infof("Session cancelled before it started.")
				_ = st.tracker.Fail(context.WithoutCancel(ctx), err)
				return nil, fmt.Errorf("session %s: %w", req.SessionID, ErrCancelled)
			}
			return nil, err
		}
	} else if err := st.tracker.Start(ctx, req.SessionID, len(steps), st.thresholds.Low, st.thresholds.High); err != nil {
		return nil, err
	}
	o.recorder.RecordSessionStart(ctx, req.SessionID)
	st.log.Infof("Image linking started (high threshold %d, candidate threshold %d).", st.thresholds.High, st.thresholds.Low)

	if err := st.tracker.Begin(ctx); err != nil {
		return o.fail(ctx, st, "", err)
	}

	for i, s := range steps {
		if err := o.checkCancelled(ctx, st); err != nil {
			return o.fail(ctx, st, s.name, err)
		}
		if err := st.tracker.Advance(ctx, i, s.name); err != nil {
			return o.fail(ctx, st, s.name, err)
		}

		stepCtx, endStep := o.tracer.StartStepSpan(ctx, s.name)
		begun := o.now()
		err := s.run(stepCtx, i, st)
		status := "ok"
		if err != nil {
			status = "error"
			o.tracer.RecordError(stepCtx, s.name, err)
		}
		o.recorder.RecordStepDuration(ctx, s.name, status, o.now().Sub(begun))
		endStep()

		if err != nil {
			return o.fail(ctx, st, s.name, err)
		}
		st.log.Debugf("Step '%s' finished in %s.", s.name, o.now().Sub(begun))
	}

	o.recorder.RecordSessionEnd(ctx, st.tracker.Snapshot())
	return st.summary, nil
}

func (o *Orchestrator) checkCancelled(ctx context.Context, st *runState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cancelled, err := st.tracker.IsCancelled(ctx)
	if err != nil {
		return err
	}
	if cancelled {
		return ErrCancelled
	}
	return nil
}

// fail records the end of a run that did not complete.
func (o *Orchestrator) fail(ctx context.Context, st *runState, stepName string, err error) (*Summary, error) {
	persistCtx := context.WithoutCancel(ctx)

	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		st.log.Infof("Session cancelled during step '%s'.", stepName)
		if ferr := st.tracker.Fail(persistCtx, errors.New(CancelledMessage)); ferr != nil {
			st.log.Warnf("Failed to record cancellation: %v", ferr)
		}
		o.recorder.RecordSessionEnd(persistCtx, st.tracker.Snapshot())
		return nil, fmt.Errorf("step %s: %w", stepName, ErrCancelled)
	}

	st.log.Errorf("Step '%s' failed: %v", stepName, err)
	if ferr := st.tracker.Fail(persistCtx, err); ferr != nil {
		st.log.Errorf("Failed to record session failure: %v", ferr)
	}
	o.recorder.RecordSessionEnd(persistCtx, st.tracker.Snapshot())
	return nil, err
}

// itemFailed applies the skip policy to a per-item error. A skipped error is recorded on the
// session; anything else ends the step.
func (o *Orchestrator) itemFailed(ctx context.Context, st *runState, policy skip.SkipPolicy, stepName string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if !policy.ShouldSkip(err) {
		if !policy.CanSkip() {
			return exception.NewBatchError(stepName, fmt.Sprintf("skip limit of %d exceeded", policy.GetSkipLimit()), err, false, false)
		}
		return err
	}
	policy.IncrementSkipCount()
	st.summary.ErrorCount++
	o.tracer.RecordError(ctx, stepName, err)
	o.recorder.RecordItemOutcome(ctx, stepName, metrics.OutcomeError)
	st.log.Warnf("Skipping item in '%s': %v", stepName, err)
	return st.tracker.AppendError(ctx, stepName, exception.ExtractErrorMessage(err))
}

func (o *Orchestrator) promoteCandidates(ctx context.Context, index int, st *runState) error {
	candidates, err := o.images.FindPendingCandidates(ctx, st.thresholds.High)
	if err != nil {
		return fatal(StepPromoteCandidates, "failed to read pending candidates", err)
	}
	if len(candidates) == 0 {
		return st.tracker.UpdateProgress(ctx, index, 100)
	}

	policy := o.skipPolicies.Create(o.cfg.SkipLimit, o.cfg.SkippableErrors)
	for i, c := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		var delta model.Counters
		if err := o.promoteOne(ctx, st, c); err != nil {
			if err := o.itemFailed(ctx, st, policy, StepPromoteCandidates, err); err != nil {
				return err
			}
		} else if c.Status == model.CandidatePromoted {
			delta.CandidatesPromoted = 1
			o.recorder.RecordItemOutcome(ctx, StepPromoteCandidates, metrics.OutcomePromoted)
		}
		if err := st.tracker.ItemProgress(ctx, index, i+1, len(candidates), delta); err != nil {
			return err
		}
	}
	st.log.Infof("Promoted candidates: %d of %d pending above %d.", st.tracker.Snapshot().Counters.CandidatesPromoted, len(candidates), st.thresholds.High)
	return nil
}

// promoteOne promotes c unless its product already has an active image, in which case the
// candidate is superseded and rejected so later runs stop reading it. A candidate reviewed
// concurrently is left alone.
func (o *Orchestrator) promoteOne(ctx context.Context, st *runState, c *model.ImageCandidate) error {
	has, err := o.images.HasActiveImage(ctx, c.ProductID)
	if err != nil {
		return err
	}
	if has {
		o.recorder.RecordItemOutcome(ctx, StepPromoteCandidates, metrics.OutcomeSkipped)
		err = o.images.RejectCandidate(ctx, c)
		if exception.IsOptimisticLockingFailure(err) {
			return nil
		}
		if err == nil {
			st.log.Infof("Rejected candidate %s: product %s already has an active image.", c.ID, c.ProductID)
		}
		return err
	}
	err = o.images.PromoteCandidate(ctx, c, c.Promote(st.sessionID, o.now().UTC()))
	if exception.IsOptimisticLockingFailure(err) {
		st.log.Debugf("Candidate %s was promoted elsewhere.", c.ID)
		return nil
	}
	return err
}

func (o *Orchestrator) scanProducts(ctx context.Context, index int, st *runState) error {
	snapshot, err := NewCatalogScanner(o.catalog).Scan(ctx)
	if err != nil {
		return err
	}
	st.snapshot = snapshot
	st.tracker.Log(ctx, fmt.Sprintf("Found %d products, %d without images.", len(snapshot.AllProducts), len(snapshot.ProductsNeedingImages)))
	if err := st.tracker.AddCounters(ctx, model.Counters{ProductsScanned: int64(len(snapshot.AllProducts))}); err != nil {
		return err
	}
	return st.tracker.UpdateProgress(ctx, index, 100)
}

func (o *Orchestrator) scanStorage(ctx context.Context, index int, st *runState) error {
	conn, err := o.storageResolver.ResolveStorageConnection(ctx, o.storageRef)
	if err != nil {
		return fatal(StepScanStorage, fmt.Sprintf("failed to resolve storage '%s'", o.storageRef), err)
	}
	st.conn = conn
	st.report = o.newReportWriter(ctx, st)

	lister := NewStorageLister(conn, o.cfg)
	images, err := lister.ListAllImagesWithProgress(ctx, func(pages, listed int) {
		st.log.Debugf("Listed %d pages (%d objects).", pages, listed)
	})
	if err != nil {
		return err
	}
	st.images = images
	o.recorder.RecordImagesListed(ctx, len(images))
	st.tracker.Log(ctx, fmt.Sprintf("Found %d images in storage.", len(images)))
	if err := st.tracker.AddCounters(ctx, model.Counters{ImagesScanned: int64(len(images))}); err != nil {
		return err
	}
	return st.tracker.UpdateProgress(ctx, index, 100)
}

func (o *Orchestrator) match(ctx context.Context, index int, st *runState) error {
	idx := match.BuildIndex(st.snapshot.ProductsNeedingImages)
	total := len(st.images)
	if total == 0 {
		return st.tracker.UpdateProgress(ctx, index, 100)
	}
	for i, img := range st.images {
		if r, ok := o.matcher.MatchOne(img, idx); ok {
			st.results = append(st.results, r)
			st.summary.BySource[r.Source.String()]++
			o.recorder.RecordMatch(ctx, r.Source.String(), r.Confidence)
		}
		if err := st.tracker.ItemProgress(ctx, index, i+1, total, model.Counters{}); err != nil {
			return err
		}
	}
	st.summary.MatchesFound = len(st.results)
	st.tracker.Log(ctx, fmt.Sprintf("Matched %d of %d images.", len(st.results), total))
	return nil
}

func (o *Orchestrator) write(ctx context.Context, index int, st *runState) error {
	total := len(st.results)
	if total == 0 {
		return st.tracker.UpdateProgress(ctx, index, 100)
	}

	writer := NewLinkWriter(o.images, st.conn, o.cfg.Bucket, st.thresholds, st.snapshot.ProductsWithImages)
	policy := o.skipPolicies.Create(o.cfg.SkipLimit, o.cfg.SkippableErrors)
	retryPolicy := o.retryPolicies.Create(o.cfg.RetryMaxAttempts,
		time.Duration(o.cfg.RetryIntervalMillis)*time.Millisecond, o.cfg.RetryableErrors)

	for i, r := range st.results {
		if err := ctx.Err(); err != nil {
			return err
		}
		wr, _ := retry.Do(ctx, retryPolicy, func(ctx context.Context) (WriteResult, error) {
			wr := writer.Apply(ctx, st.sessionID, r)
			return wr, wr.Err
		})

		var delta model.Counters
		switch {
		case wr.Err != nil:
			if err := o.itemFailed(ctx, st, policy, StepWrite, wr.Err); err != nil {
				return err
			}
		case wr.Outcome == OutcomeLink:
			delta.DirectLinksCreated = 1
			o.recorder.RecordItemOutcome(ctx, StepWrite, metrics.OutcomeLink)
		case wr.Outcome == OutcomeCandidate:
			delta.CandidatesCreated = 1
			o.recorder.RecordItemOutcome(ctx, StepWrite, metrics.OutcomeCandidate)
		default:
			st.summary.Skipped++
			st.summary.SkipReasons[wr.Reason]++
			o.recorder.RecordItemOutcome(ctx, StepWrite, metrics.OutcomeSkipped)
		}
		if st.report != nil {
			st.report.Add(reportRow(st.sessionID, r, wr))
		}
		if err := st.tracker.ItemProgress(ctx, index, i+1, total, delta); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) summarize(ctx context.Context, index int, st *runState) error {
	st.summary.Duration = o.now().Sub(st.started)
	if st.report != nil {
		objectName, err := st.report.Flush(ctx, st.sessionID)
		if err != nil {
			st.summary.ErrorCount++
			if err := st.tracker.AppendError(ctx, StepSummarize, exception.ExtractErrorMessage(err)); err != nil {
				return err
			}
		}
		st.summary.ReportObject = objectName
	}

	st.summary.Counters = st.tracker.Snapshot().Counters
	if err := st.tracker.Complete(ctx, st.summary.SessionSummary()); err != nil {
		return err
	}
	c := st.summary.Counters
	st.log.Infof("Image linking complete in %s: %d links, %d candidates, %d promoted, %d skipped, %d errors.",
		st.summary.Duration.Round(time.Millisecond), c.DirectLinksCreated, c.CandidatesCreated, c.CandidatesPromoted,
		st.summary.Skipped, st.summary.ErrorCount)
	return nil
}

// newReportWriter returns nil when reports are disabled or their storage cannot be resolved.
func (o *Orchestrator) newReportWriter(ctx context.Context, st *runState) *report.Writer {
	if !o.reportCfg.Enabled {
		return nil
	}
	var uploader storage.Uploader = st.conn
	if ref := o.reportCfg.StorageRef; ref != "" && ref != o.storageRef {
		conn, err := o.storageResolver.ResolveStorageConnection(ctx, ref)
		if err != nil {
			st.log.Warnf("Report disabled: failed to resolve storage '%s': %v", ref, err)
			return nil
		}
		uploader = conn
	}
	bucket := o.reportCfg.Bucket
	if bucket == "" {
		bucket = o.cfg.Bucket
	}
	w, err := report.NewWriter(uploader, bucket, o.reportCfg.Prefix, o.reportCfg.Compression)
	if err != nil {
		st.log.Warnf("Report disabled: %v", err)
		return nil
	}
	return w
}

func reportRow(sessionID string, r match.Result, wr WriteResult) report.Row {
	return report.Row{
		SessionID:  sessionID,
		ImageName:  r.Image.Name,
		ImageURL:   wr.ImageURL,
		ProductID:  r.Product.ID,
		SKU:        r.SKU,
		Source:     r.Source.String(),
		Confidence: int32(r.Confidence),
		Outcome:    string(wr.Outcome),
		Reason:     wr.Reason,
	}
}
