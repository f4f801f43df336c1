package experiment_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/experiment-engine/internal/domain"
	"github.com/ignite/experiment-engine/internal/repository/memory"
	"github.com/ignite/experiment-engine/internal/service/experiment"
)

func TestAssignIsIdempotent(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	e := createStarted(t, svc, nil)

	first, err := svc.Assign(ctx, e.ID, "user-42", map[string]string{"source": "web"})
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.Assign(ctx, e.ID, "user-42", nil)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.VariantID, second.VariantID)
	assert.Equal(t, first.AssignedAt, second.AssignedAt)
}

func TestAssignMissingExperimentIsNotAnError(t *testing.T) {
	svc, _ := newService(t)

	a, err := svc.Assign(context.Background(), "ghost", "user-1", nil)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestAssignInactiveExperiment(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	draft, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	a, err := svc.Assign(ctx, draft.ID, "user-1", nil)
	require.NoError(t, err)
	assert.Nil(t, a)

	e := createStarted(t, svc, nil)
	_, err = svc.Pause(ctx, e.ID)
	require.NoError(t, err)

	a, err = svc.Assign(ctx, e.ID, "user-1", nil)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestAssignPreservesExistingBindingWhenPaused(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	e := createStarted(t, svc, nil)

	a, err := svc.Assign(ctx, e.ID, "user-42", nil)
	require.NoError(t, err)
	require.NotNil(t, a)

	_, err = svc.Pause(ctx, e.ID)
	require.NoError(t, err)

	// Pausing stops new assignment but the stored binding survives.
	got, err := svc.GetAssignment(ctx, e.ID, "user-42")
	require.NoError(t, err)
	assert.Equal(t, a.VariantID, got.VariantID)
}

func TestTargetCriteriaFailClosed(t *testing.T) {
	ctx := context.Background()

	target := &domain.TargetCriteria{Roles: []string{"admin"}}

	t.Run("matching subject assigned", func(t *testing.T) {
		repo := memory.New()
		resolver := &fakeResolver{attrs: map[string]*domain.SubjectAttributes{
			"admin-user": {Role: "admin"},
		}}
		svc := experiment.NewService(repo, resolver)
		e := createStarted(t, svc, func(in *experiment.CreateInput) { in.Target = target })

		a, err := svc.Assign(ctx, e.ID, "admin-user", nil)
		require.NoError(t, err)
		assert.NotNil(t, a)
	})

	t.Run("non-matching subject excluded", func(t *testing.T) {
		repo := memory.New()
		resolver := &fakeResolver{attrs: map[string]*domain.SubjectAttributes{
			"member-user": {Role: "member"},
		}}
		svc := experiment.NewService(repo, resolver)
		e := createStarted(t, svc, func(in *experiment.CreateInput) { in.Target = target })

		a, err := svc.Assign(ctx, e.ID, "member-user", nil)
		require.NoError(t, err)
		assert.Nil(t, a)

		_, err = svc.GetAssignment(ctx, e.ID, "member-user")
		assert.ErrorIs(t, err, experiment.ErrNotFound)
	})

	t.Run("resolver failure excludes", func(t *testing.T) {
		repo := memory.New()
		resolver := &fakeResolver{err: fmt.Errorf("identity service down")}
		svc := experiment.NewService(repo, resolver)
		e := createStarted(t, svc, func(in *experiment.CreateInput) { in.Target = target })

		a, err := svc.Assign(ctx, e.ID, "user-1", nil)
		require.NoError(t, err)
		assert.Nil(t, a)
	})

	t.Run("no resolver configured excludes", func(t *testing.T) {
		repo := memory.New()
		svc := experiment.NewService(repo, nil)
		e := createStarted(t, svc, func(in *experiment.CreateInput) { in.Target = target })

		a, err := svc.Assign(ctx, e.ID, "user-1", nil)
		require.NoError(t, err)
		assert.Nil(t, a)

		_, err = svc.GetAssignment(ctx, e.ID, "user-1")
		assert.ErrorIs(t, err, experiment.ErrNotFound)
	})

	t.Run("unknown subject excludes", func(t *testing.T) {
		repo := memory.New()
		resolver := &fakeResolver{}
		svc := experiment.NewService(repo, resolver)
		e := createStarted(t, svc, func(in *experiment.CreateInput) { in.Target = target })

		a, err := svc.Assign(ctx, e.ID, "stranger", nil)
		require.NoError(t, err)
		assert.Nil(t, a)
	})
}

func TestResolverSkippedWithoutTarget(t *testing.T) {
	repo := memory.New()
	resolver := &fakeResolver{err: fmt.Errorf("must not be called")}
	svc := experiment.NewService(repo, resolver)
	e := createStarted(t, svc, nil)

	a, err := svc.Assign(context.Background(), e.ID, "user-1", nil)
	require.NoError(t, err)
	assert.NotNil(t, a)
	assert.Zero(t, resolver.calls)
}

func TestCustomTargetCriteria(t *testing.T) {
	repo := memory.New()
	resolver := &fakeResolver{attrs: map[string]*domain.SubjectAttributes{
		"pro-user":  {Role: "member", Custom: map[string]string{"plan": "pro"}},
		"free-user": {Role: "member", Custom: map[string]string{"plan": "free"}},
	}}
	svc := experiment.NewService(repo, resolver)
	e := createStarted(t, svc, func(in *experiment.CreateInput) {
		in.Target = &domain.TargetCriteria{Custom: map[string]string{"plan": "pro"}}
	})
	ctx := context.Background()

	a, err := svc.Assign(ctx, e.ID, "pro-user", nil)
	require.NoError(t, err)
	assert.NotNil(t, a)

	a, err = svc.Assign(ctx, e.ID, "free-user", nil)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestTrafficAllocationExcludesAndResamples(t *testing.T) {
	repo := memory.New()
	draw := 0.9
	svc := experiment.NewService(repo, &fakeResolver{},
		experiment.WithSampleFunc(func() float64 { return draw }))
	e := createStarted(t, svc, func(in *experiment.CreateInput) { in.TrafficAllocation = 50 })
	ctx := context.Background()

	// Draw of 0.9 means bucket 90, above a 50% allocation.
	a, err := svc.Assign(ctx, e.ID, "user-1", nil)
	require.NoError(t, err)
	assert.Nil(t, a)

	// Exclusion is not memoized: a later call with a passing draw assigns.
	draw = 0.2
	a, err = svc.Assign(ctx, e.ID, "user-1", nil)
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestBucketingIsDeterministic(t *testing.T) {
	ctx := context.Background()

	variantOf := func(svc *experiment.Service, expID, subject string) string {
		a, err := svc.Assign(ctx, expID, subject, nil)
		require.NoError(t, err)
		require.NotNil(t, a)
		return a.VariantID
	}

	svc1, _ := newService(t)
	e1 := createStarted(t, svc1, nil)
	svc2, _ := newService(t)
	e2 := createStarted(t, svc2, nil)

	// Same subjects land in the same split position in two independent
	// stores; variant ids differ but the bucketed index matches.
	for i := 0; i < 50; i++ {
		subject := fmt.Sprintf("subject-%d", i)
		v1 := variantOf(svc1, e1.ID, subject)
		v2 := variantOf(svc2, e2.ID, subject)

		idx1 := variantIndex(t, e1, v1)
		idx2 := variantIndex(t, e2, v2)
		assert.Equal(t, idx1, idx2, "subject %s bucketed differently", subject)
	}
}

func variantIndex(t *testing.T, e *domain.Experiment, variantID string) int {
	t.Helper()
	for i := range e.Variants {
		if e.Variants[i].ID == variantID {
			return i
		}
	}
	t.Fatalf("variant %s not in experiment %s", variantID, e.ID)
	return -1
}

func TestBucketingDistribution(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	e := createStarted(t, svc, nil)

	counts := map[string]int{}
	const subjects = 1000
	for i := 0; i < subjects; i++ {
		a, err := svc.Assign(ctx, e.ID, fmt.Sprintf("subject-%d", i), nil)
		require.NoError(t, err)
		require.NotNil(t, a)
		counts[a.VariantID]++
	}

	require.Len(t, counts, 2)
	for id, n := range counts {
		// 50/50 split with hash bucketing; allow a generous band.
		assert.InDelta(t, subjects/2, n, subjects*0.15, "variant %s got %d of %d", id, n, subjects)
	}
}

func TestUnevenSplitRespected(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	e := createStarted(t, svc, func(in *experiment.CreateInput) {
		in.Variants[0].TrafficSplit = 90
		in.Variants[1].TrafficSplit = 10
	})

	counts := map[string]int{}
	const subjects = 1000
	for i := 0; i < subjects; i++ {
		a, err := svc.Assign(ctx, e.ID, fmt.Sprintf("subject-%d", i), nil)
		require.NoError(t, err)
		require.NotNil(t, a)
		counts[a.VariantID]++
	}

	control := e.Variants[0].ID
	assert.Greater(t, counts[control], 800, "control should dominate a 90/10 split")
}
