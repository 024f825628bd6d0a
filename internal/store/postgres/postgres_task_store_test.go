package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/taskfire/internal/constants"
	"github.com/RezaEskandarii/taskfire/internal/lock"
	"github.com/RezaEskandarii/taskfire/internal/state"
	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLockManager struct {
	acquireErr error
	acquired   []int
	released   []int
}

func (m *mockLockManager) Acquire(ctx context.Context, lockID int) error {
	m.acquired = append(m.acquired, lockID)
	return m.acquireErr
}

func (m *mockLockManager) Release(ctx context.Context, lockID int) error {
	m.released = append(m.released, lockID)
	return nil
}

var _ lock.DistributedLockManager = (*mockLockManager)(nil)

var taskRowColumns = []string{
	"id", "task_type", "queue", "name", "data", "reference_ids", "dependency_list", "state",
	"addition_timestamp", "retry_counter", "total_try_counter",
	"max_number_of_retries", "max_number_of_tries", "created_at", "updated_at",
}

func expectMigration(mock sqlmock.Sqlmock) {
	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "taskdatabase_test"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "taskdatabase_test".tasks`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS tasks_queue_state_idx`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS tasks_dependency_list_idx`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "taskdatabase_test".queues`).WillReturnResult(sqlmock.NewResult(0, 0))
}

func newOpenStore(t *testing.T) (*PostgresTaskStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	s := NewPostgresTaskStore(db, nil)
	expectMigration(mock)
	require.NoError(t, s.Open(context.Background(), "TaskDatabase_test"))
	return s, mock, db
}

func TestNewPostgresTaskStore(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NotNil(t, NewPostgresTaskStore(db, nil))
}

func TestPostgresTaskStore_OpenTakesMigrationLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lockMgr := &mockLockManager{}
	s := NewPostgresTaskStore(db, lockMgr)
	expectMigration(mock)

	require.NoError(t, s.Open(context.Background(), "TaskDatabase_test"))
	assert.Equal(t, []int{constants.MigrationLock}, lockMgr.acquired)
	assert.Equal(t, []int{constants.MigrationLock}, lockMgr.released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_OpenLockFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTaskStore(db, &mockLockManager{acquireErr: errors.New("lock busy")})
	err = s.Open(context.Background(), "TaskDatabase_test")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = s.RunningTasks(context.Background())
	assert.ErrorIs(t, err, store.ErrStoreClosed)
}

func TestPostgresTaskStore_OpenMigrationFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewPostgresTaskStore(db, nil)
	mock.ExpectExec(`CREATE SCHEMA`).WillReturnError(sql.ErrConnDone)

	err = s.Open(context.Background(), "TaskDatabase_test")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "migrate")
}

func TestPostgresTaskStore_SaveTask(t *testing.T) {
	s, mock, db := newOpenStore(t)
	defer db.Close()

	task := types.NewTask("email", map[string]any{"to": "x"}, types.WithReferenceIDs("r1"))
	task.QueueName = "q"

	mock.ExpectExec(`INSERT INTO "taskdatabase_test".tasks`).
		WithArgs(task.ID, "email", "q", "", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			state.StateReady, sqlmock.AnyArg(), 0, 0, 3, 3, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.SaveTask(context.Background(), task))
	assert.False(t, task.CreatedAt.IsZero())
	assert.False(t, task.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_SaveTask_MarshalError(t *testing.T) {
	s, _, db := newOpenStore(t)
	defer db.Close()

	task := types.NewTask("x", map[string]any{"ch": make(chan int)})
	err := s.SaveTask(context.Background(), task)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "marshal")
}

func TestPostgresTaskStore_ApplyBatchCommits(t *testing.T) {
	s, mock, db := newOpenStore(t)
	defer db.Close()

	a := types.NewTask("x", nil)
	b := types.NewTask("x", nil)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "taskdatabase_test".tasks`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "taskdatabase_test".tasks`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "taskdatabase_test".tasks WHERE id = ANY`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.ApplyBatch(context.Background(), store.Batch{Save: []*types.Task{a, b}, Remove: []string{"gone"}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_ApplyBatchRollsBack(t *testing.T) {
	s, mock, db := newOpenStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "taskdatabase_test".tasks`).WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := s.ApplyBatch(context.Background(), store.Batch{Save: []*types.Task{types.NewTask("x", nil)}})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_ApplyBatchEmpty(t *testing.T) {
	s, mock, db := newOpenStore(t)
	defer db.Close()

	require.NoError(t, s.ApplyBatch(context.Background(), store.Batch{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_FirstReadyTask(t *testing.T) {
	s, mock, db := newOpenStore(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(taskRowColumns).
		AddRow("id-1", "email", "q", "welcome", []byte(`{"to":"x"}`), "{r1,r2}", "{}", "ready",
			now, 1, 2, 3, 3, now, now)

	mock.ExpectQuery(`SELECT .* FROM "taskdatabase_test".tasks WHERE queue = \$1 AND state = \$2 ORDER BY addition_timestamp ASC LIMIT 1`).
		WithArgs("q", state.StateReady).
		WillReturnRows(rows)

	task, err := s.FirstReadyTask(context.Background(), "q")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, "id-1", task.ID)
	assert.Equal(t, "welcome", task.Name)
	assert.Equal(t, []string{"r1", "r2"}, task.ReferenceIDs)
	assert.Empty(t, task.DependencyList)
	assert.Equal(t, state.StateReady, task.State)
	assert.Equal(t, "x", task.Data["to"])
	assert.Equal(t, 1, task.RetryCounter)
	assert.Equal(t, 2, task.TotalTryCounter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_FirstReadyTask_None(t *testing.T) {
	s, mock, db := newOpenStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM "taskdatabase_test".tasks`).
		WillReturnRows(sqlmock.NewRows(taskRowColumns))

	task, err := s.FirstReadyTask(context.Background(), "q")
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestPostgresTaskStore_ScanRejectsUnknownState(t *testing.T) {
	s, mock, db := newOpenStore(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM "taskdatabase_test".tasks WHERE state = \$1`).
		WithArgs(state.StateRunning).
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow("id-1", "x", "q", "", []byte(`{}`), "{}", "{}", "delayed", now, 0, 0, 3, 3, now, now))

	_, err := s.RunningTasks(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown state")
}

func TestPostgresTaskStore_TasksDependingOn(t *testing.T) {
	s, mock, db := newOpenStore(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM "taskdatabase_test".tasks WHERE \$1 = ANY\(dependency_list\)`).
		WithArgs("parent").
		WillReturnRows(sqlmock.NewRows(taskRowColumns).
			AddRow("child", "x", "q", "", []byte(`{}`), "{}", "{parent,other}", "notReady", now, 0, 0, 3, 3, now, now))

	tasks, err := s.TasksDependingOn(context.Background(), "parent")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, []string{"parent", "other"}, tasks[0].DependencyList)
	assert.Equal(t, state.StateNotReady, tasks[0].State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_FindTaskIDs(t *testing.T) {
	s, mock, db := newOpenStore(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT id FROM "taskdatabase_test".tasks WHERE \(task_type = \$1 AND reference_ids @> \$2\) OR \(reference_ids @> \$3\)`).
		WithArgs("upload", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("a").AddRow("b"))

	ids, err := s.FindTaskIDs(context.Background(), []types.Dependency{
		types.DependOn("upload", "x"),
		{},
		{ReferenceIDs: []string{"y"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_FindTaskIDs_OnlyEmptyDeclarations(t *testing.T) {
	s, mock, db := newOpenStore(t)
	defer db.Close()

	ids, err := s.FindTaskIDs(context.Background(), []types.Dependency{{}})
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDependencyFilter(t *testing.T) {
	where, args := dependencyFilter([]types.Dependency{types.DependOn("a"), types.DependOn("b", "t1", "t2")})
	assert.Equal(t, "(task_type = $1) OR (task_type = $2 AND reference_ids @> $3)", where)
	assert.Len(t, args, 3)

	where, args = dependencyFilter(nil)
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestPostgresTaskStore_Queues(t *testing.T) {
	s, mock, db := newOpenStore(t)
	defer db.Close()
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO "taskdatabase_test".queues`).
		WithArgs("q1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT name, thread_number FROM "taskdatabase_test".queues`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "thread_number"}).AddRow("q1", 2))

	require.NoError(t, s.SaveQueue(ctx, store.QueueRecord{Name: "q1", ThreadNumber: 2}))
	queues, err := s.LoadQueues(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.QueueRecord{{Name: "q1", ThreadNumber: 2}}, queues)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_Close(t *testing.T) {
	s, mock, db := newOpenStore(t)
	defer db.Close()

	require.NoError(t, s.Close())
	_, err := s.LoadQueues(context.Background())
	assert.ErrorIs(t, err, store.ErrStoreClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTaskStore_ReopenAfterClose(t *testing.T) {
	s, mock, db := newOpenStore(t)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, s.Close())

	expectMigration(mock)
	require.NoError(t, s.Open(ctx, "TaskDatabase_test"))

	mock.ExpectQuery(`SELECT name, thread_number FROM "taskdatabase_test".queues`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "thread_number"}).AddRow("emails", 2))
	queues, err := s.LoadQueues(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.QueueRecord{{Name: "emails", ThreadNumber: 2}}, queues)
	assert.NoError(t, mock.ExpectationsWereMet())
}
