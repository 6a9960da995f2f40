package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/reportforge/reportengine/internal/models"
)

// newTestClient spins up a disposable Postgres container, applies the
// package's embedded migrations through Connect, and registers cleanup,
// adapting the teacher's test/database.NewTestClient testcontainers-per-test
// pattern to this package's plain pgx client instead of an ent client.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping testcontainers-backed test in -short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("reportengine_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := Connect(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

func newTestTask() models.Task {
	now := time.Now().UTC().Truncate(time.Second)
	return models.Task{
		ID:           uuid.NewString(),
		OwnerID:      "owner-1",
		Name:         "monthly ops report",
		TemplateID:   uuid.NewString(),
		DataSourceID: uuid.NewString(),
		Schedule:     "0 0 1 * *",
		Recipients:   []string{"ops@example.com"},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestTaskRepository_CreateGetActiveTasks(t *testing.T) {
	client := newTestClient(t)
	repo := NewTaskRepository(client)
	ctx := context.Background()

	active := newTestTask()
	require.NoError(t, repo.Create(ctx, active))

	inactive := newTestTask()
	inactive.IsActive = false
	require.NoError(t, repo.Create(ctx, inactive))

	got, err := repo.Get(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, active.Name, got.Name)
	assert.Equal(t, active.Recipients, got.Recipients)
	assert.True(t, got.IsActive)

	tasks, err := repo.ActiveTasks(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(tasks))
	for _, tk := range tasks {
		ids = append(ids, tk.ID)
	}
	assert.Contains(t, ids, active.ID)
	assert.NotContains(t, ids, inactive.ID)
}

func TestLockRepository_TryAcquireReleaseReap(t *testing.T) {
	client := newTestClient(t)
	taskRepo := NewTaskRepository(client)
	lockRepo := NewLockRepository(client)
	ctx := context.Background()

	task := newTestTask()
	require.NoError(t, taskRepo.Create(ctx, task))

	acquired, err := lockRepo.TryAcquire(ctx, task.ID, "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquiredByPeer, err := lockRepo.TryAcquire(ctx, task.ID, "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquiredByPeer, "a live lock held by another owner must not be stolen")

	reacquiredBySameOwner, err := lockRepo.TryAcquire(ctx, task.ID, "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, reacquiredBySameOwner, "the same owner may refresh its own lock")

	require.NoError(t, lockRepo.Release(ctx, task.ID, "owner-a"))

	reacquiredAfterRelease, err := lockRepo.TryAcquire(ctx, task.ID, "owner-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, reacquiredAfterRelease)

	expired, err := lockRepo.TryAcquire(ctx, task.ID, "owner-b", -time.Second)
	require.NoError(t, err)
	assert.True(t, expired)

	n, err := lockRepo.ReapExpired(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)
}

func TestExecutionRepository_CreateIsIdempotentPerTrigger(t *testing.T) {
	client := newTestClient(t)
	taskRepo := NewTaskRepository(client)
	execRepo := NewExecutionRepository(client)
	ctx := context.Background()

	task := newTestTask()
	require.NoError(t, taskRepo.Create(ctx, task))

	exec := models.TaskExecution{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		TriggerID: "2026-07-30T00:00:00Z",
		Status:    models.StatusPending,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, execRepo.Create(ctx, exec))

	dup := exec
	dup.ID = uuid.NewString()
	err := execRepo.Create(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateTrigger)

	got, found, err := execRepo.ByTrigger(ctx, task.ID, exec.TriggerID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, exec.ID, got.ID)

	result := models.ResultBlob{FailedPlaceholders: []string{"total_revenue"}}
	require.NoError(t, execRepo.UpdateStatus(ctx, exec.ID, models.StatusFailed, 1.0, result, "agent exhausted"))

	updated, err := execRepo.Get(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, updated.Status)
	assert.NotNil(t, updated.FinishedAt)
	assert.Equal(t, []string{"total_revenue"}, updated.Result.FailedPlaceholders)

	nonTerminal, err := execRepo.NonTerminal(ctx)
	require.NoError(t, err)
	for _, e := range nonTerminal {
		assert.NotEqual(t, exec.ID, e.ID, "the now-failed execution must not appear among non-terminal ones")
	}
}
