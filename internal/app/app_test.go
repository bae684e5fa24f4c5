package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"r4r-detector/internal/config"
	"r4r-detector/internal/detector"
	"r4r-detector/internal/errs"
	"r4r-detector/internal/models"
)

// mockProvider serves canned review histories and simulates per-userkey
// failures and latency.
type mockProvider struct {
	mutex    sync.Mutex
	received map[string][]models.Review
	given    map[string][]models.Review
	ageDays  map[string]int
	failures map[string]error
	delay    map[string]time.Duration
	calls    map[string]int
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		received: make(map[string][]models.Review),
		given:    make(map[string][]models.Review),
		ageDays:  make(map[string]int),
		failures: make(map[string]error),
		delay:    make(map[string]time.Duration),
		calls:    make(map[string]int),
	}
}

func (m *mockProvider) check(ctx context.Context, userkey string) error {
	m.mutex.Lock()
	m.calls[userkey]++
	err := m.failures[userkey]
	delay := m.delay[userkey]
	m.mutex.Unlock()

	if err != nil {
		return err
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *mockProvider) callCount(userkey string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.calls[userkey]
}

func (m *mockProvider) ReviewsReceived(ctx context.Context, userkey string) ([]models.Review, error) {
	if err := m.check(ctx, userkey); err != nil {
		return nil, err
	}
	return m.received[userkey], nil
}

func (m *mockProvider) ReviewsGiven(ctx context.Context, userkey string) ([]models.Review, error) {
	return m.given[userkey], nil
}

func (m *mockProvider) Vouches(ctx context.Context, userkey string) (models.VouchStats, error) {
	return models.VouchStats{ReceivedCount: 1}, nil
}

func (m *mockProvider) AccountAge(ctx context.Context, userkey string) (int, bool, error) {
	days, exists := m.ageDays[userkey]
	return days, exists, nil
}

// loadHistory gives userkey n reciprocal quick exchanges with distinct
// counterparts.
func (m *mockProvider) loadHistory(userkey string, n int) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		counterpart := fmt.Sprintf("%s-peer%d", userkey, i)
		m.received[userkey] = append(m.received[userkey], models.Review{
			ID: fmt.Sprintf("in-%s-%d", userkey, i), Author: counterpart, Subject: userkey,
			Sentiment: models.SentimentPositive, Comment: "regular collaborator", CreatedAt: base,
		})
		m.given[userkey] = append(m.given[userkey], models.Review{
			ID: fmt.Sprintf("out-%s-%d", userkey, i), Author: userkey, Subject: counterpart,
			Sentiment: models.SentimentPositive, Comment: "regular collaborator", CreatedAt: base.Add(2 * time.Hour),
		})
	}
}

func createTestService(t *testing.T, provider Provider) *AnalysisService {
	t.Helper()
	cfg := config.Default()
	cfg.Analysis.Budget = 500 * time.Millisecond
	cfg.Analysis.MaxConcurrency = 2
	cfg.Analysis.MaxBatchSize = 5

	service, err := New(cfg, provider)
	require.NoError(t, err)
	return service
}

func TestAnalyze_FetchesAndScores(t *testing.T) {
	provider := newMockProvider()
	provider.loadHistory("alice", 4)
	provider.ageDays["alice"] = 400
	service := createTestService(t, provider)

	report, err := service.Analyze(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, "alice", report.Userkey)
	assert.Equal(t, 4, report.TotalReviewsReceived)
	assert.Equal(t, 4, report.ReciprocalCount)
	assert.True(t, report.AccountAgeKnown)
	assert.Equal(t, 1, report.Vouches.ReceivedCount)
	assert.Greater(t, report.R4RScore, 0.0)
}

func TestAnalyze_EmptyUserkey(t *testing.T) {
	service := createTestService(t, newMockProvider())

	_, err := service.Analyze(context.Background(), "")
	assert.True(t, errors.Is(err, errs.ErrDataFormat))
}

func TestAnalyze_ServesCachedReport(t *testing.T) {
	provider := newMockProvider()
	provider.loadHistory("alice", 2)
	service := createTestService(t, provider)

	first, err := service.Analyze(context.Background(), "alice")
	require.NoError(t, err)
	second, err := service.Analyze(context.Background(), "alice")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, provider.callCount("alice"))
}

func TestAnalyze_ProviderNotFound(t *testing.T) {
	provider := newMockProvider()
	provider.failures["ghost"] = errs.NotFound("ghost")
	service := createTestService(t, provider)

	_, err := service.Analyze(context.Background(), "ghost")
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	assert.Equal(t, int64(1), service.Stats().ProviderFailures)
}

func TestAnalyze_BudgetExceededIsTimeout(t *testing.T) {
	provider := newMockProvider()
	provider.delay["slow"] = 2 * time.Second
	service := createTestService(t, provider)

	_, err := service.Analyze(context.Background(), "slow")
	assert.True(t, errors.Is(err, errs.ErrTimeout))
}

func TestSummarize_UsesCachedFullReport(t *testing.T) {
	provider := newMockProvider()
	provider.loadHistory("alice", 3)
	service := createTestService(t, provider)

	report, err := service.Analyze(context.Background(), "alice")
	require.NoError(t, err)

	summary, err := service.Summarize(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, report.R4RScore, summary.R4RScore)
	assert.Equal(t, report.RiskLevel, summary.RiskLevel)
	assert.Equal(t, 1, provider.callCount("alice"), "summary reused the cached report")
}

func TestAnalyzeNetwork_PartialFailure(t *testing.T) {
	provider := newMockProvider()
	provider.loadHistory("alice", 3)
	provider.loadHistory("bob", 2)
	provider.delay["slow"] = 2 * time.Second
	service := createTestService(t, provider)

	scan, err := service.AnalyzeNetwork(context.Background(), []string{"alice", "slow", "bob"})
	require.NoError(t, err)

	assert.Len(t, scan.Reports, 2)
	require.Contains(t, scan.Failures, "slow")
	assert.Equal(t, "timeout", scan.Failures["slow"].Kind)
	assert.Contains(t, scan.Reports, "alice")
	assert.Contains(t, scan.Reports, "bob")
}

func TestAnalyzeNetwork_DedupesAndLimits(t *testing.T) {
	provider := newMockProvider()
	provider.loadHistory("alice", 1)
	service := createTestService(t, provider)

	scan, err := service.AnalyzeNetwork(context.Background(), []string{"alice", "alice", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, scan.Userkeys)

	_, err = service.AnalyzeNetwork(context.Background(), []string{"a", "b", "c", "d", "e", "f"})
	assert.True(t, errors.Is(err, errs.ErrDataFormat))
}

func TestAnalyzeNetwork_CallerCancellationEndsScan(t *testing.T) {
	provider := newMockProvider()
	provider.loadHistory("alice", 1)
	provider.delay["slow1"] = time.Minute
	provider.delay["slow2"] = time.Minute
	service := createTestService(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	type outcome struct {
		scan *models.NetworkAnalysis
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		scan, err := service.AnalyzeNetwork(ctx, []string{"slow1", "slow2", "alice"})
		done <- outcome{scan, err}
	}()

	// The scan must return promptly: either the cancellation surfaces as
	// an error or every unfinished member is recorded as a failure.
	select {
	case out := <-done:
		if out.err != nil {
			assert.True(t, errors.Is(out.err, context.Canceled))
		} else {
			// The cancellation results were already drained; every slow
			// member must be recorded as its own failure.
			assert.Contains(t, out.scan.Failures, "slow1")
			assert.Contains(t, out.scan.Failures, "slow2")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not return after caller cancellation")
	}
}

func TestAnalyzeNetwork_ServesCachedScan(t *testing.T) {
	provider := newMockProvider()
	provider.loadHistory("alice", 1)
	provider.loadHistory("bob", 1)
	service := createTestService(t, provider)

	first, err := service.AnalyzeNetwork(context.Background(), []string{"alice", "bob"})
	require.NoError(t, err)

	// Member order does not matter for the cache key.
	second, err := service.AnalyzeNetwork(context.Background(), []string{"bob", "alice"})
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestAnalyzeNetwork_FindsSharedGroups(t *testing.T) {
	provider := newMockProvider()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// a, b, and c trade reviews pairwise, twice per pair.
	members := []string{"a", "b", "c"}
	id := 0
	for i, x := range members {
		for _, y := range members[i+1:] {
			for k := 0; k < 2; k++ {
				at := base.Add(time.Duration(id) * 48 * time.Hour)
				toX := models.Review{
					ID: fmt.Sprintf("r%d", id*2), Author: y, Subject: x,
					Sentiment: models.SentimentPositive, Comment: "longtime project partner", CreatedAt: at,
				}
				toY := models.Review{
					ID: fmt.Sprintf("r%d", id*2+1), Author: x, Subject: y,
					Sentiment: models.SentimentPositive, Comment: "longtime project partner", CreatedAt: at.Add(time.Hour),
				}
				provider.received[x] = append(provider.received[x], toX)
				provider.given[y] = append(provider.given[y], toX)
				provider.received[y] = append(provider.received[y], toY)
				provider.given[x] = append(provider.given[x], toY)
				id++
			}
		}
	}

	service := createTestService(t, provider)
	scan, err := service.AnalyzeNetwork(context.Background(), members)
	require.NoError(t, err)

	require.Len(t, scan.SharedGroups, 1)
	assert.Equal(t, []string{"a", "b", "c"}, scan.SharedGroups[0].Members)
}

func TestUpdateEngineConfig_DropsCaches(t *testing.T) {
	provider := newMockProvider()
	provider.loadHistory("alice", 2)
	service := createTestService(t, provider)

	_, err := service.Analyze(context.Background(), "alice")
	require.NoError(t, err)

	cfg := detector.DefaultConfig()
	cfg.BaseScoreCap = 0.5
	require.NoError(t, service.UpdateEngineConfig(cfg))

	assert.Equal(t, 0.5, service.Engine().Config().BaseScoreCap)

	_, err = service.Analyze(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, provider.callCount("alice"), "cached report was dropped")
}

func TestUpdateEngineConfig_RejectsInvalid(t *testing.T) {
	service := createTestService(t, newMockProvider())

	cfg := detector.DefaultConfig()
	cfg.MinGroupSize = 1
	assert.Error(t, service.UpdateEngineConfig(cfg))
}
