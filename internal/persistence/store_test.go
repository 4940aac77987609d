package persistence

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/ankala/maestro/pkg/api"
)

func testDef(id, version string) api.WorkflowDefinition {
	return api.WorkflowDefinition{
		ID:      id,
		Version: version,
		Steps:   []api.StepSpec{{ID: "a", Uses: "noop"}},
	}
}

func TestInMemoryStore_WorkflowVersioning(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	require.NoError(t, s.SaveWorkflow(testDef("wf", "v1")))
	require.NoError(t, s.SaveWorkflow(testDef("wf", "v2")))

	// Re-registering an existing version is rejected: definitions are
	// immutable once stored.
	require.Error(t, s.SaveWorkflow(testDef("wf", "v1")))

	def, err := s.GetWorkflow("wf", "v2")
	require.NoError(t, err)
	require.Equal(t, "v2", def.Version)

	_, err = s.GetWorkflow("wf", "v9")
	require.ErrorIs(t, err, api.ErrWorkflowNotFound)
	_, err = s.GetWorkflow("ghost", "v1")
	require.ErrorIs(t, err, api.ErrWorkflowNotFound)

	versions, err := s.ListWorkflowVersions("wf")
	require.NoError(t, err)
	require.Equal(t, []string{"v1", "v2"}, versions)
}

func TestInMemoryStore_GetLatestWorkflow(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	_, err := s.GetLatestWorkflow("wf")
	require.ErrorIs(t, err, api.ErrWorkflowNotFound)

	require.NoError(t, s.SaveWorkflow(testDef("wf", "v1")))
	def, err := s.GetLatestWorkflow("wf")
	require.NoError(t, err)
	require.Equal(t, "v1", def.Version)

	// With several versions the caller has to pick one explicitly.
	require.NoError(t, s.SaveWorkflow(testDef("wf", "v2")))
	_, err = s.GetLatestWorkflow("wf")
	require.Error(t, err)
}

func sampleJob(id string) *api.Job {
	now := time.Now().Truncate(time.Millisecond)
	return &api.Job{
		ID:              id,
		WorkflowID:      "wf",
		WorkflowVersion: "v1",
		Status:          api.StatusRunning,
		CurrentLevel:    2,
		Inputs:          map[string]any{"topic": "go", "count": 3},
		Outputs:         map[string]any{"fetch": "raw", "parsed": []string{"a", "b"}},
		Completed:       map[string]bool{"fetch": true, "parsed": true},
		Skipped:         map[string]bool{"optional": true},
		Failed:          map[string]string{"enrich": "upstream 503"},
		Err:             nil,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Stored jobs are isolated from the callers' copies: mutating either side
// after a save or a get must not leak into the other.
func TestInMemoryStore_JobsAreIsolatedCopies(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	job := sampleJob("job-1")
	require.NoError(t, s.SaveJob(job))

	// Mutating the saved pointer afterwards does not touch the store.
	job.Status = api.StatusFailed
	job.Outputs["late"] = "write"

	got, err := s.GetJob("job-1")
	require.NoError(t, err)
	require.Equal(t, api.StatusRunning, got.Status)
	require.NotContains(t, got.Outputs, "late")

	// Mutating a fetched job does not touch the store either.
	got.Completed["phantom"] = true
	again, err := s.GetJob("job-1")
	require.NoError(t, err)
	require.NotContains(t, again.Completed, "phantom")

	listed, err := s.ListJobs(api.JobListOptions{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	listed[0].Failed["phantom"] = "nope"
	final, err := s.GetJob("job-1")
	require.NoError(t, err)
	require.NotContains(t, final.Failed, "phantom")
}

func TestInMemoryStore_TransitionJob(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	job := sampleJob("job-1")
	job.Status = api.StatusPending
	require.NoError(t, s.SaveJob(job))

	require.ErrorIs(t, s.TransitionJob("ghost", api.StatusPending, api.StatusRunning), api.ErrJobNotFound)

	require.NoError(t, s.TransitionJob("job-1", api.StatusPending, api.StatusRunning))
	got, err := s.GetJob("job-1")
	require.NoError(t, err)
	require.Equal(t, api.StatusRunning, got.Status)

	// A second claimant observes the job already moved on.
	err = s.TransitionJob("job-1", api.StatusPending, api.StatusRunning)
	require.ErrorIs(t, err, api.ErrInvalidTransition)
}

func TestSQLiteJobStore_TransitionJob(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	s, err := NewSQLiteJobStore(db)
	require.NoError(t, err)

	job := sampleJob("job-1")
	job.Status = api.StatusPending
	require.NoError(t, s.SaveJob(job))

	require.ErrorIs(t, s.TransitionJob("ghost", api.StatusPending, api.StatusRunning), api.ErrJobNotFound)

	require.NoError(t, s.TransitionJob("job-1", api.StatusPending, api.StatusRunning))
	got, err := s.GetJob("job-1")
	require.NoError(t, err)
	require.Equal(t, api.StatusRunning, got.Status)

	err = s.TransitionJob("job-1", api.StatusPending, api.StatusRunning)
	require.ErrorIs(t, err, api.ErrInvalidTransition)
}

func TestSQLiteJobStore_RoundTrip(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	s, err := NewSQLiteJobStore(db)
	require.NoError(t, err)

	job := sampleJob("job-1")
	require.NoError(t, s.SaveJob(job))

	got, err := s.GetJob("job-1")
	require.NoError(t, err)
	require.Equal(t, job.WorkflowID, got.WorkflowID)
	require.Equal(t, api.StatusRunning, got.Status)
	require.Equal(t, 2, got.CurrentLevel)
	require.Equal(t, "go", got.Inputs["topic"])
	require.Equal(t, []string{"a", "b"}, got.Outputs["parsed"])
	require.True(t, got.Completed["fetch"])
	require.True(t, got.Skipped["optional"])
	require.Equal(t, "upstream 503", got.Failed["enrich"])
	require.Equal(t, job.CreatedAt.UnixNano(), got.CreatedAt.UnixNano())
}

func TestSQLiteJobStore_UpdateAndErrorText(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	s, err := NewSQLiteJobStore(db)
	require.NoError(t, err)

	require.ErrorIs(t, s.UpdateJob(sampleJob("ghost")), api.ErrJobNotFound)

	job := sampleJob("job-1")
	require.NoError(t, s.SaveJob(job))

	job.Status = api.StatusFailed
	job.Err = errors.New("step enrich: upstream 503")
	require.NoError(t, s.UpdateJob(job))

	got, err := s.GetJob("job-1")
	require.NoError(t, err)
	require.Equal(t, api.StatusFailed, got.Status)
	require.EqualError(t, got.Err, "step enrich: upstream 503")
}

func TestSQLiteJobStore_ListJobsFilters(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	s, err := NewSQLiteJobStore(db)
	require.NoError(t, err)

	a := sampleJob("a")
	b := sampleJob("b")
	b.Status = api.StatusCompleted
	c := sampleJob("c")
	c.WorkflowID = "other"
	for _, j := range []*api.Job{a, b, c} {
		require.NoError(t, s.SaveJob(j))
	}

	all, err := s.ListJobs(api.JobListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Deterministic listing order by ID.
	require.Equal(t, "a", all[0].ID)

	running, err := s.ListJobs(api.JobListOptions{Status: api.StatusRunning, WorkflowID: "wf"})
	require.NoError(t, err)
	require.Len(t, running, 1)
	require.Equal(t, "a", running[0].ID)

	_, err = s.GetJob("missing")
	require.ErrorIs(t, err, api.ErrJobNotFound)
}

func TestCodec_NilAndTypeMismatch(t *testing.T) {
	t.Parallel()

	data, err := EncodeValue(nil)
	require.NoError(t, err)
	require.Nil(t, data)

	m, err := DecodeValue[map[string]any](nil)
	require.NoError(t, err)
	require.Nil(t, m)

	data, err = EncodeValue(map[string]string{"k": "v"})
	require.NoError(t, err)
	_, err = DecodeValue[map[string]bool](data)
	var dte *DecodeTypeError
	require.ErrorAs(t, err, &dte)
}
