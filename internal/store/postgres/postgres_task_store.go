package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RezaEskandarii/taskfire/internal/constants"
	"github.com/RezaEskandarii/taskfire/internal/lock"
	"github.com/RezaEskandarii/taskfire/internal/state"
	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/types"
	"github.com/lib/pq"
)

const taskColumns = `id, task_type, queue, name, data, reference_ids, dependency_list, state,
		       addition_timestamp, retry_counter, total_try_counter,
		       max_number_of_retries, max_number_of_tries, created_at, updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresTaskStore persists tasks and queues in a schema named after the store name.
type PostgresTaskStore struct {
	db          *sql.DB
	lockManager lock.DistributedLockManager
	mu          sync.RWMutex
	schema      string
	now         func() time.Time
}

// NewPostgresTaskStore creates a store on db. lockManager may be nil, in which case schema
// migration runs unguarded.
func NewPostgresTaskStore(db *sql.DB, lockManager lock.DistributedLockManager) *PostgresTaskStore {
	return &PostgresTaskStore{
		db:          db,
		lockManager: lockManager,
		now:         time.Now,
	}
}

// Open pings the database and creates the schema and tables for name if they do not exist.
func (s *PostgresTaskStore) Open(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("open postgres store: empty name")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}

	schema := pq.QuoteIdentifier(strings.ToLower(name))

	if s.lockManager != nil {
		if err := s.lockManager.Acquire(ctx, constants.MigrationLock); err != nil {
			return err
		}
		defer s.lockManager.Release(ctx, constants.MigrationLock)
	}

	for _, script := range migrationScripts(schema) {
		if _, err := s.db.ExecContext(ctx, script); err != nil {
			return fmt.Errorf("migrate %s: %w", schema, err)
		}
	}

	s.mu.Lock()
	s.schema = schema
	s.mu.Unlock()
	return nil
}

func migrationScripts(schema string) []string {
	return []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.tasks (
			id                    TEXT PRIMARY KEY,
			task_type             TEXT        NOT NULL,
			queue                 TEXT        NOT NULL,
			name                  TEXT        NOT NULL DEFAULT '',
			data                  JSONB       NOT NULL DEFAULT '{}',
			reference_ids         TEXT[]      NOT NULL DEFAULT '{}',
			dependency_list       TEXT[]      NOT NULL DEFAULT '{}',
			state                 TEXT        NOT NULL,
			addition_timestamp    TIMESTAMPTZ NOT NULL,
			retry_counter         INT         NOT NULL DEFAULT 0,
			total_try_counter     INT         NOT NULL DEFAULT 0,
			max_number_of_retries INT         NOT NULL,
			max_number_of_tries   INT         NOT NULL,
			created_at            TIMESTAMPTZ NOT NULL,
			updated_at            TIMESTAMPTZ NOT NULL
		)`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS tasks_queue_state_idx ON %s.tasks (queue, state, addition_timestamp)`, schema),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS tasks_dependency_list_idx ON %s.tasks USING GIN (dependency_list)`, schema),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.queues (
			name          TEXT PRIMARY KEY,
			thread_number INT NOT NULL
		)`, schema),
	}
}

func (s *PostgresTaskStore) currentSchema() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.schema == "" {
		return "", store.ErrStoreClosed
	}
	return s.schema, nil
}

func (s *PostgresTaskStore) SaveTask(ctx context.Context, task *types.Task) error {
	schema, err := s.currentSchema()
	if err != nil {
		return err
	}
	return s.upsert(ctx, s.db, schema, task)
}

func (s *PostgresTaskStore) ApplyBatch(ctx context.Context, batch store.Batch) error {
	schema, err := s.currentSchema()
	if err != nil {
		return err
	}
	if batch.IsEmpty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	for _, task := range batch.Save {
		if err := s.upsert(ctx, tx, schema, task); err != nil {
			return err
		}
	}
	if len(batch.Remove) > 0 {
		query := fmt.Sprintf(`DELETE FROM %s.tasks WHERE id = ANY($1)`, schema)
		if _, err := tx.ExecContext(ctx, query, pq.Array(batch.Remove)); err != nil {
			return fmt.Errorf("remove tasks: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *PostgresTaskStore) upsert(ctx context.Context, db execer, schema string, task *types.Task) error {
	payload, err := json.Marshal(task.Data)
	if err != nil {
		return fmt.Errorf("marshal task %s data: %w", task.ID, err)
	}

	now := s.now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now

	query := fmt.Sprintf(`
		INSERT INTO %s.tasks (
			id, task_type, queue, name, data, reference_ids, dependency_list, state,
			addition_timestamp, retry_counter, total_try_counter,
			max_number_of_retries, max_number_of_tries, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			queue = EXCLUDED.queue,
			name = EXCLUDED.name,
			data = EXCLUDED.data,
			reference_ids = EXCLUDED.reference_ids,
			dependency_list = EXCLUDED.dependency_list,
			state = EXCLUDED.state,
			addition_timestamp = EXCLUDED.addition_timestamp,
			retry_counter = EXCLUDED.retry_counter,
			total_try_counter = EXCLUDED.total_try_counter,
			max_number_of_retries = EXCLUDED.max_number_of_retries,
			max_number_of_tries = EXCLUDED.max_number_of_tries,
			updated_at = EXCLUDED.updated_at
	`, schema)

	_, err = db.ExecContext(ctx, query,
		task.ID,
		task.Type,
		task.QueueName,
		task.Name,
		payload,
		pq.Array(task.ReferenceIDs),
		pq.Array(task.DependencyList),
		task.State,
		task.AdditionTimestamp,
		task.RetryCounter,
		task.TotalTryCounter,
		task.MaxNumberOfRetries,
		task.MaxNumberOfTries,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

func (s *PostgresTaskStore) FirstReadyTask(ctx context.Context, queueName string) (*types.Task, error) {
	tasks, err := s.selectTasks(ctx, "queue = $1 AND state = $2", "LIMIT 1", queueName, state.StateReady)
	if err != nil || len(tasks) == 0 {
		return nil, err
	}
	return tasks[0], nil
}

func (s *PostgresTaskStore) TasksDependingOn(ctx context.Context, taskID string) ([]*types.Task, error) {
	return s.selectTasks(ctx, "$1 = ANY(dependency_list)", "", taskID)
}

func (s *PostgresTaskStore) RunningTasks(ctx context.Context) ([]*types.Task, error) {
	return s.selectTasks(ctx, "state = $1", "", state.StateRunning)
}

func (s *PostgresTaskStore) FindTaskIDs(ctx context.Context, dependencies []types.Dependency) ([]string, error) {
	schema, err := s.currentSchema()
	if err != nil {
		return nil, err
	}

	where, args := dependencyFilter(dependencies)
	if where == "" {
		return []string{}, nil
	}

	query := fmt.Sprintf(`SELECT id FROM %s.tasks WHERE %s ORDER BY addition_timestamp ASC`, schema, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find dependency ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// dependencyFilter builds "(type AND tags) OR (...)" for the non-empty declarations.
func dependencyFilter(dependencies []types.Dependency) (string, []any) {
	var clauses []string
	var args []any
	argIndex := 1

	for _, dep := range dependencies {
		if dep.IsEmpty() {
			continue
		}
		var parts []string
		if dep.TaskType != "" {
			parts = append(parts, fmt.Sprintf("task_type = $%d", argIndex))
			args = append(args, dep.TaskType)
			argIndex++
		}
		if len(dep.ReferenceIDs) > 0 {
			parts = append(parts, fmt.Sprintf("reference_ids @> $%d", argIndex))
			args = append(args, pq.Array(dep.ReferenceIDs))
			argIndex++
		}
		clauses = append(clauses, "("+strings.Join(parts, " AND ")+")")
	}

	return strings.Join(clauses, " OR "), args
}

func (s *PostgresTaskStore) selectTasks(ctx context.Context, where, suffix string, args ...any) ([]*types.Task, error) {
	schema, err := s.currentSchema()
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s.tasks WHERE %s ORDER BY addition_timestamp ASC %s`,
		taskColumns, schema, where, suffix)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanTask(rows *sql.Rows) (*types.Task, error) {
	var task types.Task
	var payload []byte
	var taskState string
	if err := rows.Scan(
		&task.ID,
		&task.Type,
		&task.QueueName,
		&task.Name,
		&payload,
		pq.Array(&task.ReferenceIDs),
		pq.Array(&task.DependencyList),
		&taskState,
		&task.AdditionTimestamp,
		&task.RetryCounter,
		&task.TotalTryCounter,
		&task.MaxNumberOfRetries,
		&task.MaxNumberOfTries,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	task.State = state.TaskState(taskState)
	if !task.State.Valid() {
		return nil, fmt.Errorf("scan task %s: unknown state %q", task.ID, taskState)
	}
	task.Data = map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &task.Data); err != nil {
			return nil, fmt.Errorf("decode task %s data: %w", task.ID, err)
		}
	}
	if task.ReferenceIDs == nil {
		task.ReferenceIDs = []string{}
	}
	if task.DependencyList == nil {
		task.DependencyList = []string{}
	}
	return &task, nil
}

func (s *PostgresTaskStore) SaveQueue(ctx context.Context, queue store.QueueRecord) error {
	schema, err := s.currentSchema()
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s.queues (name, thread_number)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET thread_number = EXCLUDED.thread_number
	`, schema)
	if _, err := s.db.ExecContext(ctx, query, queue.Name, queue.ThreadNumber); err != nil {
		return fmt.Errorf("save queue %s: %w", queue.Name, err)
	}
	return nil
}

func (s *PostgresTaskStore) LoadQueues(ctx context.Context) ([]store.QueueRecord, error) {
	schema, err := s.currentSchema()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT name, thread_number FROM %s.queues ORDER BY name`, schema))
	if err != nil {
		return nil, fmt.Errorf("load queues: %w", err)
	}
	defer rows.Close()

	var queues []store.QueueRecord
	for rows.Next() {
		var q store.QueueRecord
		if err := rows.Scan(&q.Name, &q.ThreadNumber); err != nil {
			return nil, err
		}
		queues = append(queues, q)
	}
	return queues, rows.Err()
}

// Close detaches the store from its schema. The database handle stays open so the store can
// be opened again; its owner closes it.
func (s *PostgresTaskStore) Close() error {
	s.mu.Lock()
	s.schema = ""
	s.mu.Unlock()
	return nil
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)
