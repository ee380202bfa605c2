package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-lab/internal/config"
	"compliance-lab/internal/domain/models"
	"compliance-lab/internal/infrastructure/store"
	"compliance-lab/pkg/logger"
)

func defaultAnalyticsConfig() config.AnalyticsConfig {
	return config.AnalyticsConfig{
		IncludeStandaloneControls: true,
		GapPlaceholder:            true,
		CacheTTL:                  time.Minute,
	}
}

func newEngine(t *testing.T, cfg config.AnalyticsConfig) (*AnalyticsEngine, *store.FileStore) {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir(), logger.NewNop())
	require.NoError(t, err)
	return NewAnalyticsEngine(fs, nil, cfg, logger.NewNop()), fs
}

func writeFile(t *testing.T, fs *store.FileStore, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(fs.Dir(), name+".json"), []byte(content), 0o644))
}

const fourControls = `[{
	"id": 1, "name": "Q1", "framework": "SOC 2",
	"controls": [
		{"name": "a", "status": "implemented", "test_status": "tested", "test_result": "pass", "risk_level": "High"},
		{"name": "b", "status": "implemented", "test_status": "tested", "test_result": "fail", "risk_level": "High"},
		{"name": "c", "status": "in_progress", "test_result": "not_tested", "risk_level": "Medium"},
		{"name": "d", "status": "not_started", "test_result": "not_tested"}
	]
}]`

func TestAnalyticsEngine_ComplianceScore(t *testing.T) {
	ctx := context.Background()

	t.Run("live data", func(t *testing.T) {
		engine, fs := newEngine(t, defaultAnalyticsConfig())
		writeFile(t, fs, models.CollectionAssessments, fourControls)

		res, err := engine.ComplianceScore(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SourceLive, res.Source)
		assert.Equal(t, 4, res.Value.TotalControls)
		assert.Equal(t, 2, res.Value.ImplementedControls)
		assert.Equal(t, 1, res.Value.PassedControls)
		assert.Equal(t, 50.0, res.Value.ImplementationScore)
		assert.Equal(t, 25.0, res.Value.OverallScore)
	})

	t.Run("existing empty collection is not demo data", func(t *testing.T) {
		engine, fs := newEngine(t, defaultAnalyticsConfig())
		writeFile(t, fs, models.CollectionAssessments, `[]`)

		res, err := engine.ComplianceScore(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SourceLive, res.Source)
		assert.Equal(t, 0, res.Value.TotalControls)
		assert.Equal(t, 0.0, res.Value.OverallScore)
		assert.Empty(t, res.Value.Message)
	})

	t.Run("whitespace-only collection is empty", func(t *testing.T) {
		engine, fs := newEngine(t, defaultAnalyticsConfig())
		writeFile(t, fs, models.CollectionAssessments, "\n  \n")

		res, err := engine.ComplianceScore(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SourceLive, res.Source)
		assert.Zero(t, res.Value.TotalControls)
	})

	t.Run("absent collection serves demo data", func(t *testing.T) {
		engine, _ := newEngine(t, defaultAnalyticsConfig())

		res, err := engine.ComplianceScore(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SourceDemo, res.Source)
		assert.Equal(t, models.ReasonAbsent, res.Reason)
		assert.Equal(t, 75.0, res.Value.OverallScore)
		assert.Equal(t, 80.0, res.Value.ImplementationScore)
		assert.Equal(t, 65.0, res.Value.TestingScore)
		assert.Equal(t, 20, res.Value.TotalControls)
		assert.Equal(t, "Using demo data - no assessments found", res.Value.Message)
	})

	t.Run("corrupt collection serves its own demo data", func(t *testing.T) {
		engine, fs := newEngine(t, defaultAnalyticsConfig())
		writeFile(t, fs, models.CollectionAssessments, `[{"id": 1,`)

		res, err := engine.ComplianceScore(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.ReasonCorrupt, res.Reason)
		assert.Equal(t, 70.0, res.Value.OverallScore)
		assert.Equal(t, 15, res.Value.TotalControls)
		assert.Equal(t, "Using demo data - invalid JSON in assessments", res.Value.Message)
	})

	t.Run("malformed elements are skipped", func(t *testing.T) {
		engine, fs := newEngine(t, defaultAnalyticsConfig())
		writeFile(t, fs, models.CollectionAssessments, `[
			"not an assessment",
			{"framework": "SOC 2", "controls": [7, {"status": "implemented", "test_result": "pass"}]}
		]`)

		res, err := engine.ComplianceScore(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Value.TotalControls)
		assert.Equal(t, 100.0, res.Value.OverallScore)
	})
}

func TestAnalyticsEngine_StandaloneControls(t *testing.T) {
	ctx := context.Background()

	t.Run("included by default", func(t *testing.T) {
		engine, fs := newEngine(t, defaultAnalyticsConfig())
		writeFile(t, fs, models.CollectionAssessments, fourControls)
		writeFile(t, fs, models.CollectionControls, `[{"framework":"HIPAA","status":"implemented","test_result":"pass"}]`)

		res, err := engine.ComplianceScore(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, res.Value.TotalControls)

		fb, err := engine.FrameworkBreakdown(ctx)
		require.NoError(t, err)
		assert.Equal(t, 100.0, fb.Value.FrameworkScores["HIPAA"])
	})

	t.Run("excluded when disabled", func(t *testing.T) {
		cfg := defaultAnalyticsConfig()
		cfg.IncludeStandaloneControls = false
		engine, fs := newEngine(t, cfg)
		writeFile(t, fs, models.CollectionAssessments, fourControls)
		writeFile(t, fs, models.CollectionControls, `[{"framework":"HIPAA","status":"implemented"}]`)

		res, err := engine.ComplianceScore(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, res.Value.TotalControls)
	})

	t.Run("corrupt standalone collection contributes nothing", func(t *testing.T) {
		engine, fs := newEngine(t, defaultAnalyticsConfig())
		writeFile(t, fs, models.CollectionAssessments, fourControls)
		writeFile(t, fs, models.CollectionControls, `{{{`)

		res, err := engine.ComplianceScore(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SourceLive, res.Source)
		assert.Equal(t, 4, res.Value.TotalControls)
	})

	t.Run("fallback keys off assessments only", func(t *testing.T) {
		engine, fs := newEngine(t, defaultAnalyticsConfig())
		writeFile(t, fs, models.CollectionControls, `[{"status":"implemented"}]`)

		res, err := engine.ComplianceScore(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.ReasonAbsent, res.Reason)
	})
}

func TestAnalyticsEngine_GapAnalysis(t *testing.T) {
	ctx := context.Background()

	t.Run("implemented but failing control is reported verbatim", func(t *testing.T) {
		engine, fs := newEngine(t, defaultAnalyticsConfig())
		writeFile(t, fs, models.CollectionAssessments, `[{"framework":"SOC 2","controls":[
			{"name":"Logging","status":"Implemented","test_result":"fail"}
		]}]`)

		res, err := engine.GapAnalysis(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SourceLive, res.Source)
		require.Len(t, res.Value, 1)
		assert.Equal(t, "Implemented", res.Value[0].Status)
		assert.Equal(t, "fail", res.Value[0].TestResult)
	})

	t.Run("placeholder when nothing is missing", func(t *testing.T) {
		engine, fs := newEngine(t, defaultAnalyticsConfig())
		writeFile(t, fs, models.CollectionAssessments, `[{"framework":"SOC 2","controls":[
			{"name":"ok","status":"implemented","test_result":"pass"}
		]}]`)

		res, err := engine.GapAnalysis(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SourcePlaceholder, res.Source)
		assert.Equal(t, []models.Gap{models.PlaceholderGap()}, res.Value)
	})

	t.Run("placeholder can be turned off", func(t *testing.T) {
		cfg := defaultAnalyticsConfig()
		cfg.GapPlaceholder = false
		engine, fs := newEngine(t, cfg)
		writeFile(t, fs, models.CollectionAssessments, `[]`)

		res, err := engine.GapAnalysis(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SourceLive, res.Source)
		assert.Empty(t, res.Value)
	})

	t.Run("absent and corrupt demo lists", func(t *testing.T) {
		engine, fs := newEngine(t, defaultAnalyticsConfig())

		res, err := engine.GapAnalysis(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.DemoGapsAbsent(), res.Value)

		writeFile(t, fs, models.CollectionAssessments, `nope`)
		res, err = engine.GapAnalysis(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.DemoGapsCorrupt(), res.Value)
		assert.Equal(t, models.ReasonCorrupt, res.Reason)
	})

	t.Run("never more than ten", func(t *testing.T) {
		engine, fs := newEngine(t, defaultAnalyticsConfig())
		var controls []map[string]string
		for i := 0; i < 30; i++ {
			controls = append(controls, map[string]string{"status": "not_started"})
		}
		body, err := json.Marshal([]map[string]any{{"framework": "SOC 2", "controls": controls}})
		require.NoError(t, err)
		writeFile(t, fs, models.CollectionAssessments, string(body))

		res, err := engine.GapAnalysis(ctx)
		require.NoError(t, err)
		assert.Len(t, res.Value, MaxGaps)
	})
}

func TestAnalyticsEngine_RiskAndTimeline(t *testing.T) {
	ctx := context.Background()

	t.Run("live risk distribution", func(t *testing.T) {
		engine, fs := newEngine(t, defaultAnalyticsConfig())
		writeFile(t, fs, models.CollectionAssessments, `[{"framework":"SOC 2","controls":[
			{"risk_level":"High"},{"risk_level":"High"},{"risk_level":"Medium"}
		]}]`)

		res, err := engine.RiskAssessment(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Value.RiskCounts[models.RiskHigh])
		assert.InDelta(t, 66.7, res.Value.RiskPercentages[models.RiskHigh], 0.1)
		assert.Empty(t, res.Value.Message)
	})

	t.Run("absent store yields zeros with a message", func(t *testing.T) {
		engine, _ := newEngine(t, defaultAnalyticsConfig())

		risk, err := engine.RiskAssessment(ctx)
		require.NoError(t, err)
		assert.Zero(t, risk.Value.TotalAssessed)
		assert.NotEmpty(t, risk.Value.Message)
		assert.Equal(t, models.ReasonAbsent, risk.Reason)

		tl, err := engine.ImplementationTimeline(ctx)
		require.NoError(t, err)
		assert.Empty(t, tl.Value.Months)
		assert.NotEmpty(t, tl.Value.Message)
	})

	t.Run("timeline buckets by month", func(t *testing.T) {
		engine, fs := newEngine(t, defaultAnalyticsConfig())
		writeFile(t, fs, models.CollectionAssessments, `[{"framework":"SOC 2","controls":[
			{"created_date":"2024-05-02T09:00:00","status":"implemented"},
			{"created_date":"2024-05-30","status":"not_started"},
			{"created_date":"garbage","status":"implemented"}
		]}]`)

		res, err := engine.ImplementationTimeline(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"2024-05"}, res.Value.Months)
		assert.Equal(t, []int{2}, res.Value.Totals)
		assert.Equal(t, []int{1}, res.Value.Implemented)
	})
}

func TestAnalyticsEngine_Trends(t *testing.T) {
	engine, _ := newEngine(t, defaultAnalyticsConfig())
	trends := engine.Trends()
	assert.Equal(t, []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun"}, trends.Labels)
	assert.Equal(t, []int{65, 70, 75, 80, 85, 88}, trends.Scores)
}

// failingStore reports a backend failure on every call
type failingStore struct{}

func (failingStore) Load(context.Context, string) ([]json.RawMessage, error) {
	return nil, assert.AnError
}
func (failingStore) Update(context.Context, string, store.UpdateFunc) error { return assert.AnError }
func (failingStore) NextSequence(context.Context, string, int64) (int64, error) {
	return 0, assert.AnError
}
func (failingStore) Ping(context.Context) error { return assert.AnError }
func (failingStore) Backend() string            { return "failing" }

func TestAnalyticsEngine_UnexpectedErrorsPropagate(t *testing.T) {
	engine := NewAnalyticsEngine(failingStore{}, nil, defaultAnalyticsConfig(), logger.NewNop())

	_, err := engine.ComplianceScore(context.Background())
	assert.ErrorIs(t, err, assert.AnError)

	_, err = engine.GapAnalysis(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

// memoryCache is a ResultCache backed by a map
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) GetJSON(_ context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.data[key]
	if !ok {
		return redis.Nil
	}
	return json.Unmarshal(data, dest)
}

func (c *memoryCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
	c.sets++
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
	return nil
}

func TestAnalyticsEngine_Caching(t *testing.T) {
	ctx := context.Background()

	t.Run("live results are served from cache until invalidated", func(t *testing.T) {
		fs, err := store.NewFileStore(t.TempDir(), logger.NewNop())
		require.NoError(t, err)
		rc := newMemoryCache()
		engine := NewAnalyticsEngine(fs, rc, defaultAnalyticsConfig(), logger.NewNop())

		writeFile(t, fs, models.CollectionAssessments, fourControls)
		first, err := engine.ComplianceScore(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, first.Value.TotalControls)

		writeFile(t, fs, models.CollectionAssessments, `[]`)
		cached, err := engine.ComplianceScore(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, cached)

		require.NoError(t, engine.Invalidate(ctx))
		fresh, err := engine.ComplianceScore(ctx)
		require.NoError(t, err)
		assert.Zero(t, fresh.Value.TotalControls)
	})

	t.Run("demo results are never cached", func(t *testing.T) {
		fs, err := store.NewFileStore(t.TempDir(), logger.NewNop())
		require.NoError(t, err)
		rc := newMemoryCache()
		engine := NewAnalyticsEngine(fs, rc, defaultAnalyticsConfig(), logger.NewNop())

		res, err := engine.ComplianceScore(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SourceDemo, res.Source)
		assert.Zero(t, rc.sets)

		writeFile(t, fs, models.CollectionAssessments, fourControls)
		res, err = engine.ComplianceScore(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.SourceLive, res.Source)
	})

	t.Run("compute that overlaps an invalidation is not cached", func(t *testing.T) {
		fs, err := store.NewFileStore(t.TempDir(), logger.NewNop())
		require.NoError(t, err)
		writeFile(t, fs, models.CollectionAssessments, fourControls)

		gated := &gatedStore{FileStore: fs, entered: make(chan struct{}), release: make(chan struct{})}
		rc := newMemoryCache()
		engine := NewAnalyticsEngine(gated, rc, defaultAnalyticsConfig(), logger.NewNop())

		done := make(chan Result[models.ComplianceScore], 1)
		go func() {
			res, err := engine.ComplianceScore(ctx)
			assert.NoError(t, err)
			done <- res
		}()

		<-gated.entered
		writeFile(t, fs, models.CollectionAssessments, `[]`)
		require.NoError(t, engine.Invalidate(ctx))
		close(gated.release)

		stale := <-done
		assert.Equal(t, 4, stale.Value.TotalControls)

		fresh, err := engine.ComplianceScore(ctx)
		require.NoError(t, err)
		assert.Zero(t, fresh.Value.TotalControls)
	})
}

// gatedStore holds the first assessments load until release is closed.
// The load reads the file before blocking.
type gatedStore struct {
	*store.FileStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Load(ctx context.Context, name string) ([]json.RawMessage, error) {
	items, err := g.FileStore.Load(ctx, name)
	if name == models.CollectionAssessments {
		first := false
		g.once.Do(func() { first = true })
		if first {
			close(g.entered)
			<-g.release
		}
	}
	return items, err
}
