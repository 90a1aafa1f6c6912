package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/metagraph/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the PostgreSQL implementation of schemas.Store.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.Store = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const (
	componentColumns            = "id, type, name, label, path, api_version, notes, job_id, org_id, integration_id, created_at"
	componentColumnsWithContent = "id, type, name, label, path, content, api_version, notes, job_id, org_id, integration_id, created_at"
	edgeColumns                 = "id, from_component_id, to_component_id, kind, description, job_id, created_at"
	jobColumns                  = "id, org_id, integration_id, source, status, remote_job_id, submitted_at, completed_at, " +
		"total_files, components_stored, dependencies_stored, skipped_files, parse_failures, unresolved_references, error, progress"
)

// -- Components and edges --

func (s *Store) CreateComponent(ctx context.Context, in schemas.ComponentInput) (int64, error) {
	const sql = `INSERT INTO metadata_components
		(job_id, org_id, integration_id, type, name, label, path, content, api_version, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, sql,
		in.JobID, in.Scope.OrgID, in.Scope.IntegrationID,
		string(in.Family), in.Name, in.Label, in.Path, in.Content,
		in.APIVersion, in.Notes, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, opError("create component", err)
	}
	return id, nil
}

// CreateEdge inserts a directed edge. Self edges are dropped before they
// reach the database and report id 0.
func (s *Store) CreateEdge(ctx context.Context, jobID string, fromID, toID int64, kind schemas.EdgeKind, description string) (int64, error) {
	if fromID == toID {
		return 0, nil
	}
	const sql = `INSERT INTO metadata_dependencies
		(job_id, from_component_id, to_component_id, kind, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, sql, jobID, fromID, toID, string(kind), description, time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, opError("create edge", err)
	}
	return id, nil
}

func (s *Store) GetComponent(ctx context.Context, id int64) (schemas.MetadataComponent, error) {
	sql := "SELECT " + componentColumnsWithContent + " FROM metadata_components WHERE id = $1"
	row := s.pool.QueryRow(ctx, sql, id)
	c, err := scanComponent(row, true)
	if err != nil {
		return schemas.MetadataComponent{}, opError("get component", notFound(err))
	}
	return c, nil
}

func (s *Store) ComponentsByJob(ctx context.Context, jobID string) ([]schemas.MetadataComponent, error) {
	sql := "SELECT " + componentColumns + " FROM metadata_components WHERE job_id = $1 ORDER BY id"
	out, err := s.queryComponents(ctx, sql, jobID)
	if err != nil {
		return nil, opError("list components", err)
	}
	return out, nil
}

// SearchComponents matches the query text as a case-insensitive substring of
// name, label or content, within the query's scope.
func (s *Store) SearchComponents(ctx context.Context, q schemas.SearchQuery) ([]schemas.MetadataComponent, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	sql := "SELECT " + componentColumns + ` FROM metadata_components
		WHERE org_id = $1
		  AND ($2 = '' OR integration_id = $2)
		  AND (name ILIKE $3 OR label ILIKE $3 OR content ILIKE $3)
		  AND ($4 = '' OR type = $4)
		ORDER BY type, name, id
		LIMIT $5`

	pattern := "%" + escapeLike(q.Text) + "%"
	out, err := s.queryComponents(ctx, sql, q.Scope.OrgID, q.Scope.IntegrationID, pattern, string(q.Family), limit)
	if err != nil {
		return nil, opError("search components", err)
	}
	return out, nil
}

func (s *Store) TypeStatsByJob(ctx context.Context, jobID string) ([]schemas.TypeCount, error) {
	const sql = `SELECT type, COUNT(*) FROM metadata_components
		WHERE job_id = $1 GROUP BY type ORDER BY COUNT(*) DESC, type`

	rows, err := s.pool.Query(ctx, sql, jobID)
	if err != nil {
		return nil, opError("type stats", err)
	}
	defer rows.Close()

	var out []schemas.TypeCount
	for rows.Next() {
		var tc schemas.TypeCount
		var family string
		if err := rows.Scan(&family, &tc.Count); err != nil {
			return nil, opError("type stats", err)
		}
		tc.Family = schemas.Family(family)
		out = append(out, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, opError("type stats", err)
	}
	return out, nil
}

func (s *Store) EdgesByComponent(ctx context.Context, componentID int64) ([]schemas.DependencyEdge, error) {
	sql := "SELECT " + edgeColumns + ` FROM metadata_dependencies
		WHERE from_component_id = $1 OR to_component_id = $1 ORDER BY id`
	out, err := s.queryEdges(ctx, sql, componentID)
	if err != nil {
		return nil, opError("list component edges", err)
	}
	return out, nil
}

func (s *Store) EdgesByJob(ctx context.Context, jobID string) ([]schemas.DependencyEdge, error) {
	sql := "SELECT " + edgeColumns + " FROM metadata_dependencies WHERE job_id = $1 ORDER BY id"
	out, err := s.queryEdges(ctx, sql, jobID)
	if err != nil {
		return nil, opError("list job edges", err)
	}
	return out, nil
}

func (s *Store) queryComponents(ctx context.Context, sql string, args ...any) ([]schemas.MetadataComponent, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schemas.MetadataComponent
	for rows.Next() {
		c, err := scanComponent(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) queryEdges(ctx context.Context, sql string, args ...any) ([]schemas.DependencyEdge, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schemas.DependencyEdge
	for rows.Next() {
		var e schemas.DependencyEdge
		var kind string
		if err := rows.Scan(&e.ID, &e.FromID, &e.ToID, &kind, &e.Description, &e.JobID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = schemas.EdgeKind(kind)
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanComponent(row pgx.Row, withContent bool) (schemas.MetadataComponent, error) {
	var c schemas.MetadataComponent
	var family string
	dest := []any{&c.ID, &family, &c.Name, &c.Label, &c.Path}
	if withContent {
		dest = append(dest, &c.Content)
	}
	dest = append(dest, &c.APIVersion, &c.Notes, &c.JobID, &c.OrgID, &c.IntegrationID, &c.CreatedAt)
	if err := row.Scan(dest...); err != nil {
		return schemas.MetadataComponent{}, err
	}
	c.Family = schemas.Family(family)
	return c, nil
}

// -- Jobs --

func (s *Store) CreateJob(ctx context.Context, job schemas.ExtractionJob) error {
	progress, err := encodeProgress(job.Progress)
	if err != nil {
		return opError("create job", err)
	}
	const sql = `INSERT INTO extraction_jobs
		(id, org_id, integration_id, source, status, remote_job_id, submitted_at, completed_at,
		 total_files, components_stored, dependencies_stored, skipped_files, parse_failures, unresolved_references,
		 error, progress)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = s.pool.Exec(ctx, sql,
		job.ID, job.Scope.OrgID, job.Scope.IntegrationID, string(job.Source), string(job.Status),
		job.RemoteJobID, job.SubmittedAt.UTC(), utcPtr(job.CompletedAt),
		job.Stats.TotalFiles, job.Stats.ComponentsStored, job.Stats.DependenciesStored,
		job.Stats.SkippedFiles, job.Stats.ParseFailures, job.Stats.UnresolvedReferences,
		job.Error, progress,
	)
	if err != nil {
		return opError("create job", err)
	}
	return nil
}

// SaveJob overwrites the mutable columns of a job. Scope, source and the
// submission time are fixed at creation.
func (s *Store) SaveJob(ctx context.Context, job schemas.ExtractionJob) error {
	progress, err := encodeProgress(job.Progress)
	if err != nil {
		return opError("save job", err)
	}
	const sql = `UPDATE extraction_jobs SET
		status = $2, remote_job_id = $3, completed_at = $4,
		total_files = $5, components_stored = $6, dependencies_stored = $7,
		skipped_files = $8, parse_failures = $9, unresolved_references = $10,
		error = $11, progress = $12
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, sql,
		job.ID, string(job.Status), job.RemoteJobID, utcPtr(job.CompletedAt),
		job.Stats.TotalFiles, job.Stats.ComponentsStored, job.Stats.DependenciesStored,
		job.Stats.SkippedFiles, job.Stats.ParseFailures, job.Stats.UnresolvedReferences,
		job.Error, progress,
	)
	if err != nil {
		return opError("save job", err)
	}
	if tag.RowsAffected() == 0 {
		return opError("save job", ErrNotFound)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (schemas.ExtractionJob, error) {
	sql := "SELECT " + jobColumns + " FROM extraction_jobs WHERE id = $1"
	job, err := scanJob(s.pool.QueryRow(ctx, sql, id))
	if err != nil {
		return schemas.ExtractionJob{}, opError("get job", notFound(err))
	}
	return job, nil
}

// ListJobs returns the most recent jobs of a scope, newest first. An empty
// integration id lists every integration of the org.
func (s *Store) ListJobs(ctx context.Context, scope schemas.Scope, limit int) ([]schemas.ExtractionJob, error) {
	if limit <= 0 {
		limit = DefaultJobListLimit
	}
	sql := "SELECT " + jobColumns + ` FROM extraction_jobs
		WHERE org_id = $1 AND ($2 = '' OR integration_id = $2)
		ORDER BY submitted_at DESC, id
		LIMIT $3`

	rows, err := s.pool.Query(ctx, sql, scope.OrgID, scope.IntegrationID, limit)
	if err != nil {
		return nil, opError("list jobs", err)
	}
	defer rows.Close()

	var out []schemas.ExtractionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, opError("list jobs", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, opError("list jobs", err)
	}
	return out, nil
}

func (s *Store) LatestJob(ctx context.Context, scope schemas.Scope) (schemas.ExtractionJob, error) {
	sql := "SELECT " + jobColumns + ` FROM extraction_jobs
		WHERE org_id = $1 AND integration_id = $2
		ORDER BY submitted_at DESC, id
		LIMIT 1`
	job, err := scanJob(s.pool.QueryRow(ctx, sql, scope.OrgID, scope.IntegrationID))
	if err != nil {
		return schemas.ExtractionJob{}, opError("latest job", notFound(err))
	}
	return job, nil
}

func scanJob(row pgx.Row) (schemas.ExtractionJob, error) {
	var (
		job         schemas.ExtractionJob
		source      string
		status      string
		completedAt *time.Time
		progress    []byte
	)
	err := row.Scan(
		&job.ID, &job.Scope.OrgID, &job.Scope.IntegrationID, &source, &status,
		&job.RemoteJobID, &job.SubmittedAt, &completedAt,
		&job.Stats.TotalFiles, &job.Stats.ComponentsStored, &job.Stats.DependenciesStored,
		&job.Stats.SkippedFiles, &job.Stats.ParseFailures, &job.Stats.UnresolvedReferences,
		&job.Error, &progress,
	)
	if err != nil {
		return schemas.ExtractionJob{}, err
	}
	job.Source = schemas.JobSource(source)
	job.Status = schemas.JobStatus(status)
	job.CompletedAt = completedAt
	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &job.Progress); err != nil {
			return schemas.ExtractionJob{}, fmt.Errorf("failed to decode progress: %w", err)
		}
	}
	return job, nil
}

func encodeProgress(entries []schemas.ProgressEntry) ([]byte, error) {
	if entries == nil {
		entries = []schemas.ProgressEntry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode progress: %w", err)
	}
	return b, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
