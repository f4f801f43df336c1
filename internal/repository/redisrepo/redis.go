// Package redisrepo implements the experiment Repository and AnalysisCache
// on Redis, the durable key-value store that is the engine's source of
// truth in production.
//
// Key layout (under a configurable prefix):
//
//	experiment:<id>                 experiment record (JSON)
//	assignment:<expID>:<subjectID>  subject binding (JSON, SET NX)
//	results:<expID>                 append-only list of result events
//	analysis:<expID>                cached analysis (JSON, short TTL)
package redisrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/experiment-engine/internal/domain"
	"github.com/ignite/experiment-engine/internal/service/experiment"
)

// DefaultOpTimeout bounds every store call; a timeout is surfaced as a
// failed operation, never a partial one.
const DefaultOpTimeout = 5 * time.Second

// Repository is a Redis-backed experiment store.
type Repository struct {
	client    *redis.Client
	prefix    string
	opTimeout time.Duration
}

// New creates a Redis repository. An empty prefix defaults to "abtest:".
func New(client *redis.Client, prefix string) *Repository {
	if prefix == "" {
		prefix = "abtest:"
	}
	return &Repository{client: client, prefix: prefix, opTimeout: DefaultOpTimeout}
}

func (r *Repository) experimentKey(id string) string {
	return r.prefix + "experiment:" + id
}

func (r *Repository) assignmentKey(expID, subjectID string) string {
	return fmt.Sprintf("%sassignment:%s:%s", r.prefix, expID, subjectID)
}

func (r *Repository) resultsKey(expID string) string {
	return r.prefix + "results:" + expID
}

func (r *Repository) analysisKey(expID string) string {
	return r.prefix + "analysis:" + expID
}

func (r *Repository) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}

func (r *Repository) CreateExperiment(ctx context.Context, e *domain.Experiment) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal experiment: %w", err)
	}
	if err := r.client.Set(ctx, r.experimentKey(e.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("store experiment: %w", err)
	}
	return nil
}

func (r *Repository) GetExperiment(ctx context.Context, id string) (*domain.Experiment, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	data, err := r.client.Get(ctx, r.experimentKey(id)).Bytes()
	if err == redis.Nil {
		return nil, experiment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load experiment: %w", err)
	}
	var e domain.Experiment
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode experiment: %w", err)
	}
	return &e, nil
}

func (r *Repository) ListExperiments(ctx context.Context, f experiment.ListFilter) ([]domain.Experiment, int, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	keys, err := r.scanKeys(ctx, r.prefix+"experiment:*")
	if err != nil {
		return nil, 0, err
	}
	if len(keys) == 0 {
		return nil, 0, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("load experiments: %w", err)
	}

	var out []domain.Experiment
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // key deleted between SCAN and MGET
		}
		var e domain.Experiment
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			continue
		}
		if f.Status != "" && string(e.Status) != f.Status {
			continue
		}
		if f.CompanyID != "" && e.CompanyID != f.CompanyID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (r *Repository) UpdateExperiment(ctx context.Context, e *domain.Experiment) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	exists, err := r.client.Exists(ctx, r.experimentKey(e.ID)).Result()
	if err != nil {
		return fmt.Errorf("check experiment: %w", err)
	}
	if exists == 0 {
		return experiment.ErrNotFound
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal experiment: %w", err)
	}
	if err := r.client.Set(ctx, r.experimentKey(e.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("store experiment: %w", err)
	}
	return nil
}

func (r *Repository) DeleteExperiment(ctx context.Context, id string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	deleted, err := r.client.Del(ctx, r.experimentKey(id)).Result()
	if err != nil {
		return fmt.Errorf("delete experiment: %w", err)
	}
	if deleted == 0 {
		return experiment.ErrNotFound
	}

	if _, err := r.deletePattern(ctx, fmt.Sprintf("%sassignment:%s:*", r.prefix, id)); err != nil {
		return fmt.Errorf("purge assignments: %w", err)
	}
	if err := r.client.Del(ctx, r.resultsKey(id), r.analysisKey(id)).Err(); err != nil {
		return fmt.Errorf("purge results: %w", err)
	}
	return nil
}

func (r *Repository) GetAssignment(ctx context.Context, experimentID, subjectID string) (*domain.Assignment, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	data, err := r.client.Get(ctx, r.assignmentKey(experimentID, subjectID)).Bytes()
	if err == redis.Nil {
		return nil, experiment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load assignment: %w", err)
	}
	var a domain.Assignment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode assignment: %w", err)
	}
	return &a, nil
}

func (r *Repository) SaveAssignment(ctx context.Context, a *domain.Assignment) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal assignment: %w", err)
	}
	// SET NX keeps the first write; losing a race is fine because both
	// writers computed the same variant.
	if err := r.client.SetNX(ctx, r.assignmentKey(a.ExperimentID, a.SubjectID), data, 0).Err(); err != nil {
		return fmt.Errorf("store assignment: %w", err)
	}
	return nil
}

func (r *Repository) ListAssignments(ctx context.Context, experimentID string) ([]domain.Assignment, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	keys, err := r.scanKeys(ctx, fmt.Sprintf("%sassignment:%s:*", r.prefix, experimentID))
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	var out []domain.Assignment
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var a domain.Assignment
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *Repository) AppendResult(ctx context.Context, res *domain.Result) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	if err := r.client.RPush(ctx, r.resultsKey(res.ExperimentID), data).Err(); err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	return nil
}

func (r *Repository) ListResults(ctx context.Context, experimentID string) ([]domain.Result, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	items, err := r.client.LRange(ctx, r.resultsKey(experimentID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	var out []domain.Result
	for _, item := range items {
		var res domain.Result
		if err := json.Unmarshal([]byte(item), &res); err != nil {
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

func (r *Repository) GetAnalysis(ctx context.Context, experimentID string) (*domain.Analysis, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	data, err := r.client.Get(ctx, r.analysisKey(experimentID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cached analysis: %w", err)
	}
	var a domain.Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode cached analysis: %w", err)
	}
	return &a, nil
}

func (r *Repository) PutAnalysis(ctx context.Context, a *domain.Analysis, ttl time.Duration) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	if err := r.client.Set(ctx, r.analysisKey(a.ExperimentID), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache analysis: %w", err)
	}
	return nil
}

func (r *Repository) InvalidateAnalysis(ctx context.Context, experimentID string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	return r.client.Del(ctx, r.analysisKey(experimentID)).Err()
}

// scanKeys collects all keys matching the pattern via cursor-based SCAN.
func (r *Repository) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", pattern, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// deletePattern removes every key matching the pattern and returns how many
// were deleted.
func (r *Repository) deletePattern(ctx context.Context, pattern string) (int, error) {
	keys, err := r.scanKeys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	deleted, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return int(deleted), err
	}
	return int(deleted), nil
}
