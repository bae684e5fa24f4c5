// Package app wires the analysis engine to the reputation provider and the
// report caches, and exposes the three analysis operations the API serves.
package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"r4r-detector/internal/cache"
	"r4r-detector/internal/config"
	"r4r-detector/internal/detector"
	"r4r-detector/internal/errs"
	"r4r-detector/internal/models"
	"r4r-detector/internal/worker"
)

// Provider is the slice of the reputation provider the service consumes.
type Provider interface {
	ReviewsReceived(ctx context.Context, userkey string) ([]models.Review, error)
	ReviewsGiven(ctx context.Context, userkey string) ([]models.Review, error)
	Vouches(ctx context.Context, userkey string) (models.VouchStats, error)
	AccountAge(ctx context.Context, userkey string) (int, bool, error)
}

// AnalysisService runs R4R analyses. It holds no per-request state; all
// shared state lives in the injectable caches, so concurrent analyses for
// different userkeys never influence each other.
type AnalysisService struct {
	config   *config.Config
	engine   *detector.Engine
	provider Provider
	reports  *cache.ReportCache
	networks *cache.NetworkCache

	mutex sync.RWMutex
	stats Statistics
}

// Statistics holds runtime counters for the service.
type Statistics struct {
	AnalysesRun      int64         `json:"analyses_run"`
	SummariesServed  int64         `json:"summaries_served"`
	NetworkScansRun  int64         `json:"network_scans_run"`
	ProviderFailures int64         `json:"provider_failures"`
	LastAnalysisTime time.Duration `json:"last_analysis_time"`
	ReportCache      cache.Stats   `json:"report_cache"`
	NetworkCache     cache.Stats   `json:"network_cache"`
}

// New creates the analysis service.
func New(cfg *config.Config, p Provider) (*AnalysisService, error) {
	engine, err := detector.New(cfg.Engine)
	if err != nil {
		return nil, err
	}

	s := &AnalysisService{
		config:   cfg,
		engine:   engine,
		provider: p,
		reports:  cache.NewReportCache(cfg.Cache.ReportCapacity, cfg.Cache.ReportTTL),
		networks: cache.NewNetworkCache(cfg.Cache.NetworkCapacity, cfg.Cache.NetworkTTL),
	}

	log.Printf("Analysis service initialized: %s", cfg.String())
	return s, nil
}

// Engine returns the underlying detector engine.
func (s *AnalysisService) Engine() *detector.Engine {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.engine
}

// UpdateEngineConfig swaps the engine thresholds for subsequent analyses
// and drops cached reports, which were computed under the old thresholds.
func (s *AnalysisService) UpdateEngineConfig(cfg detector.Config) error {
	engine, err := detector.New(cfg)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	s.engine = engine
	s.mutex.Unlock()

	s.reports.Clear()
	s.networks.Clear()

	log.Printf("Engine thresholds updated, report caches dropped")
	return nil
}

// Analyze runs a full single-user analysis, serving a cached report when
// one is still fresh. The analysis has a hard wall-clock budget; hitting
// it fails the whole analysis with ErrTimeout, never a partial report.
func (s *AnalysisService) Analyze(ctx context.Context, userkey string) (*models.R4RAnalysis, error) {
	if userkey == "" {
		return nil, errs.DataFormat("empty userkey")
	}

	if report, exists := s.reports.Get(userkey); exists {
		return report, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Analysis.Budget)
	defer cancel()

	in, err := s.fetch(ctx, userkey)
	if err != nil {
		s.recordFailure()
		return nil, err
	}

	report := s.Engine().Analyze(in)
	s.reports.Set(report)
	s.recordAnalysis(report.ProcessingTime)

	return report, nil
}

// Summarize serves the cheap dashboard subset. It reuses a fresh full
// report when one is cached and otherwise computes totals and score
// without running cluster detection.
func (s *AnalysisService) Summarize(ctx context.Context, userkey string) (*models.Summary, error) {
	if userkey == "" {
		return nil, errs.DataFormat("empty userkey")
	}

	s.mutex.Lock()
	s.stats.SummariesServed++
	s.mutex.Unlock()

	if report, exists := s.reports.Get(userkey); exists {
		return report.Summarize(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Analysis.Budget)
	defer cancel()

	in, err := s.fetch(ctx, userkey)
	if err != nil {
		s.recordFailure()
		return nil, err
	}

	return s.Engine().Summarize(in), nil
}

// AnalyzeNetwork runs a batch analysis over a list of userkeys with
// bounded concurrency. Each member succeeds or fails on its own: one
// member's timeout is recorded as that member's failure and never aborts
// siblings. Results are cached under the member set and recomputed only on
// explicit request after the window lapses.
func (s *AnalysisService) AnalyzeNetwork(ctx context.Context, userkeys []string) (*models.NetworkAnalysis, error) {
	userkeys = dedupe(userkeys)
	if len(userkeys) == 0 {
		return nil, errs.DataFormat("no userkeys given")
	}
	if len(userkeys) > s.config.Analysis.MaxBatchSize {
		return nil, errs.DataFormat("batch of %d exceeds limit of %d", len(userkeys), s.config.Analysis.MaxBatchSize)
	}

	if scan, exists := s.networks.Get(userkeys); exists {
		return scan, nil
	}

	start := time.Now()
	scan := models.NewNetworkAnalysis(userkeys)

	pool := worker.NewPool(ctx, s.config.Analysis.MaxConcurrency, len(userkeys), s.config.Analysis.Budget)
	pool.Start()

	tasks := make(map[string]*analysisTask, len(userkeys))
	for _, userkey := range userkeys {
		task := &analysisTask{userkey: userkey, service: s}
		tasks[userkey] = task
		if err := pool.Submit(task); err != nil {
			pool.Stop()
			return nil, fmt.Errorf("submitting analysis for %s: %w", userkey, err)
		}
	}

	for range userkeys {
		var result worker.Result
		select {
		case result = <-pool.Results():
		case <-ctx.Done():
			// Caller went away mid-scan. The cancelled pool context fails
			// the remaining tasks fast; Stop drains them into the buffered
			// result channel, so nothing leaks.
			pool.Stop()
			return nil, errs.FromContext(ctx.Err(), "network scan")
		}

		task := tasks[result.TaskID]
		if result.Err != nil {
			scan.Failures[result.TaskID] = models.MemberError{
				Kind:    errs.Kind(result.Err),
				Message: result.Err.Error(),
			}
			continue
		}
		scan.Reports[result.TaskID] = task.report
	}
	pool.Stop()

	s.assembleNetwork(scan)
	scan.ProcessingTime = time.Since(start)

	s.networks.Set(userkeys, scan)
	s.mutex.Lock()
	s.stats.NetworkScansRun++
	s.mutex.Unlock()

	log.Printf("Network scan completed: %d/%d members analyzed, %d shared groups, %d high-risk",
		len(scan.Reports), len(userkeys), len(scan.SharedGroups), len(scan.HighRiskReviewers))

	return scan, nil
}

// assembleNetwork derives the cross-member views: shared suspicious groups
// over the combined pair sets (the batch fetch is where second-hop data is
// available) and the ranked high-risk reviewer list.
func (s *AnalysisService) assembleNetwork(scan *models.NetworkAnalysis) {
	pairSets := make(map[string][]models.ReviewPair, len(scan.Reports))
	for userkey, report := range scan.Reports {
		pairSets[userkey] = report.Pairs
	}

	engine := s.Engine()
	graph := engine.BuildNetwork(pairSets)
	scan.SharedGroups = engine.DetectGroups(graph)
	scan.HighRiskReviewers = engine.RankHighRisk(scan.Reports)

	// Each member's report lists the other high-risk reviewers in the scan.
	for userkey, report := range scan.Reports {
		others := make([]models.NetworkReviewer, 0, len(scan.HighRiskReviewers))
		for _, reviewer := range scan.HighRiskReviewers {
			if reviewer.Userkey != userkey {
				others = append(others, reviewer)
			}
		}
		report.HighRiskReviewers = others
	}
}

// analyzeMember is the per-member unit of a network scan. It reuses the
// single-user path, so fresh cached reports are served without refetching.
func (s *AnalysisService) analyzeMember(ctx context.Context, userkey string) (*models.R4RAnalysis, error) {
	if report, exists := s.reports.Get(userkey); exists {
		return report, nil
	}

	in, err := s.fetch(ctx, userkey)
	if err != nil {
		s.recordFailure()
		return nil, err
	}

	report := s.Engine().Analyze(in)
	s.reports.Set(report)
	s.recordAnalysis(report.ProcessingTime)

	return report, nil
}

// fetch pulls and normalizes all provider records for one userkey.
func (s *AnalysisService) fetch(ctx context.Context, userkey string) (detector.Input, error) {
	received, err := s.provider.ReviewsReceived(ctx, userkey)
	if err != nil {
		return detector.Input{}, errs.FromContext(err, "fetching reviews received")
	}

	given, err := s.provider.ReviewsGiven(ctx, userkey)
	if err != nil {
		return detector.Input{}, errs.FromContext(err, "fetching reviews given")
	}

	vouches, err := s.provider.Vouches(ctx, userkey)
	if err != nil {
		return detector.Input{}, errs.FromContext(err, "fetching vouches")
	}

	ageDays, ageKnown, err := s.provider.AccountAge(ctx, userkey)
	if err != nil {
		return detector.Input{}, errs.FromContext(err, "fetching account age")
	}

	return detector.Input{
		Userkey:         userkey,
		Received:        received,
		Given:           given,
		Vouches:         vouches,
		AccountAgeDays:  ageDays,
		AccountAgeKnown: ageKnown,
	}, nil
}

// Stats returns a snapshot of the service counters.
func (s *AnalysisService) Stats() Statistics {
	s.mutex.RLock()
	stats := s.stats
	s.mutex.RUnlock()

	stats.ReportCache = s.reports.Stats()
	stats.NetworkCache = s.networks.Stats()
	return stats
}

func (s *AnalysisService) recordAnalysis(d time.Duration) {
	s.mutex.Lock()
	s.stats.AnalysesRun++
	s.stats.LastAnalysisTime = d
	s.mutex.Unlock()
}

func (s *AnalysisService) recordFailure() {
	s.mutex.Lock()
	s.stats.ProviderFailures++
	s.mutex.Unlock()
}

// analysisTask adapts a single-member analysis to the worker pool.
type analysisTask struct {
	userkey string
	service *AnalysisService
	report  *models.R4RAnalysis
}

func (t *analysisTask) Execute(ctx context.Context) error {
	report, err := t.service.analyzeMember(ctx, t.userkey)
	if err != nil {
		return err
	}
	t.report = report
	return nil
}

func (t *analysisTask) ID() string {
	return t.userkey
}

// dedupe removes duplicate userkeys preserving first-seen order.
func dedupe(userkeys []string) []string {
	seen := make(map[string]bool, len(userkeys))
	out := make([]string, 0, len(userkeys))
	for _, k := range userkeys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
