package experiment_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/experiment-engine/internal/domain"
	"github.com/ignite/experiment-engine/internal/repository/memory"
	"github.com/ignite/experiment-engine/internal/service/experiment"
)

// fakeResolver returns canned attributes per subject id.
type fakeResolver struct {
	attrs map[string]*domain.SubjectAttributes
	err   error
	calls int
}

func (f *fakeResolver) Resolve(_ context.Context, subjectID string) (*domain.SubjectAttributes, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.attrs[subjectID], nil
}

func newService(t *testing.T, opts ...experiment.Option) (*experiment.Service, *memory.Repository) {
	t.Helper()
	repo := memory.New()
	return experiment.NewService(repo, &fakeResolver{}, opts...), repo
}

func validInput() experiment.CreateInput {
	return experiment.CreateInput{
		Name: "onboarding-flow",
		Variants: []experiment.VariantInput{
			{Name: "control", TrafficSplit: 50, IsControl: true},
			{Name: "treatment", TrafficSplit: 50},
		},
		Metrics: []string{"conversion_signup"},
	}
}

func createStarted(t *testing.T, svc *experiment.Service, mutate func(*experiment.CreateInput)) *domain.Experiment {
	t.Helper()
	in := validInput()
	if mutate != nil {
		mutate(&in)
	}
	e, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	e, err = svc.Start(context.Background(), e.ID)
	require.NoError(t, err)
	return e
}

func TestCreateAppliesDefaults(t *testing.T) {
	svc, _ := newService(t)

	e, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, domain.ExperimentDraft, e.Status)
	assert.Equal(t, 0.95, e.ConfidenceLevel)
	assert.Equal(t, 100.0, e.TrafficAllocation)
	assert.NotEmpty(t, e.ID)
	for _, v := range e.Variants {
		assert.NotEmpty(t, v.ID)
	}
	assert.False(t, e.CreatedAt.IsZero())
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*experiment.CreateInput)
	}{
		{"missing name", func(in *experiment.CreateInput) { in.Name = "" }},
		{"single variant", func(in *experiment.CreateInput) {
			in.Variants = in.Variants[:1]
			in.Variants[0].TrafficSplit = 100
		}},
		{"splits not 100", func(in *experiment.CreateInput) { in.Variants[1].TrafficSplit = 40 }},
		{"no control", func(in *experiment.CreateInput) { in.Variants[0].IsControl = false }},
		{"two controls", func(in *experiment.CreateInput) { in.Variants[1].IsControl = true }},
		{"negative split", func(in *experiment.CreateInput) {
			in.Variants[0].TrafficSplit = -10
			in.Variants[1].TrafficSplit = 110
		}},
		{"confidence too low", func(in *experiment.CreateInput) { in.ConfidenceLevel = 0.5 }},
		{"confidence too high", func(in *experiment.CreateInput) { in.ConfidenceLevel = 0.999 }},
		{"allocation out of range", func(in *experiment.CreateInput) { in.TrafficAllocation = 150 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)

			_, err := svc.Create(ctx, in)
			var cfgErr *experiment.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
		})
	}

	// Nothing was persisted by the failed creates.
	all, total, err := svc.List(ctx, experiment.ListFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, all)
}

func TestSplitToleranceAccepted(t *testing.T) {
	svc, _ := newService(t)

	in := validInput()
	in.Variants[0].TrafficSplit = 33.33
	in.Variants[1].TrafficSplit = 33.33
	in.Variants = append(in.Variants, experiment.VariantInput{Name: "treatment-b", TrafficSplit: 33.34})

	_, err := svc.Create(context.Background(), in)
	assert.NoError(t, err)
}

func TestLifecycleTransitions(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	e, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	e, err = svc.Start(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExperimentActive, e.Status)
	require.NotNil(t, e.StartedAt)

	_, err = svc.Start(ctx, e.ID)
	var stateErr *experiment.StateTransitionError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "Only draft tests can be started", stateErr.Reason)

	e, err = svc.Pause(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExperimentPaused, e.Status)

	_, err = svc.Pause(ctx, e.ID)
	assert.ErrorAs(t, err, &stateErr)

	e, err = svc.Resume(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExperimentActive, e.Status)

	e, err = svc.Complete(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExperimentCompleted, e.Status)
	require.NotNil(t, e.EndedAt)

	// Completed is terminal.
	_, err = svc.Resume(ctx, e.ID)
	assert.ErrorAs(t, err, &stateErr)
	_, err = svc.Complete(ctx, e.ID)
	assert.ErrorAs(t, err, &stateErr)
}

func TestCompleteFromPaused(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	e := createStarted(t, svc, nil)
	_, err := svc.Pause(ctx, e.ID)
	require.NoError(t, err)

	done, err := svc.Complete(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExperimentCompleted, done.Status)
}

func TestUpdateDraftOnly(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	e, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	in := validInput()
	in.Description = "fresh copy"
	updated, err := svc.Update(ctx, e.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "fresh copy", updated.Description)

	_, err = svc.Start(ctx, e.ID)
	require.NoError(t, err)

	_, err = svc.Update(ctx, e.ID, in)
	var stateErr *experiment.StateTransitionError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "Only draft tests can be edited", stateErr.Reason)
}

func TestUpdateRevalidates(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	e, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	in := validInput()
	in.Variants[1].TrafficSplit = 40
	_, err = svc.Update(ctx, e.ID, in)
	var cfgErr *experiment.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestDeleteActiveRefused(t *testing.T) {
	svc, _ := newService(t)
	e := createStarted(t, svc, nil)

	err := svc.Delete(context.Background(), e.ID)
	var opErr *experiment.InvalidOperationError
	require.ErrorAs(t, err, &opErr)
}

func TestDeleteCascades(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	e := createStarted(t, svc, nil)
	_, err := svc.Assign(ctx, e.ID, "user-1", nil)
	require.NoError(t, err)
	require.NoError(t, svc.RecordConversion(ctx, e.ID, "user-1", "signup", nil))

	_, err = svc.Pause(ctx, e.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, e.ID))

	_, err = svc.Get(ctx, e.ID)
	assert.ErrorIs(t, err, experiment.ErrNotFound)
	_, err = repo.GetAssignment(ctx, e.ID, "user-1")
	assert.ErrorIs(t, err, experiment.ErrNotFound)
	results, err := repo.ListResults(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestListFilters(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	_, err = svc.Start(ctx, a.ID)
	require.NoError(t, err)

	in := validInput()
	in.Name = "second"
	in.CompanyID = "globex"
	_, err = svc.Create(ctx, in)
	require.NoError(t, err)

	active, total, err := svc.List(ctx, experiment.ListFilter{Status: "active"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)

	globex, _, err := svc.List(ctx, experiment.ListFilter{CompanyID: "globex"})
	require.NoError(t, err)
	require.Len(t, globex, 1)
	assert.Equal(t, "second", globex[0].Name)
}

func TestAnalysisCacheInvalidatedOnDelete(t *testing.T) {
	repo := memory.New()
	svc := experiment.NewService(repo, &fakeResolver{},
		experiment.WithAnalysisCache(repo, time.Minute))
	ctx := context.Background()

	in := validInput()
	e, err := svc.Create(ctx, in)
	require.NoError(t, err)
	_, err = svc.Analyze(ctx, e.ID)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, e.ID))

	cached, err := repo.GetAnalysis(ctx, e.ID)
	require.NoError(t, err)
	assert.Nil(t, cached)
}
