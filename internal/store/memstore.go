package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/metagraph/api/schemas"
)

const (
	// DefaultSearchLimit caps search results when the query sets no limit.
	DefaultSearchLimit = 50
	// DefaultJobListLimit caps job listings when the caller sets no limit.
	DefaultJobListLimit = 20
)

// MemStore is an ephemeral, in-memory implementation of schemas.Store. It
// backs local analysis runs and tests where persistence isn't required.
type MemStore struct {
	mu         sync.RWMutex
	components []schemas.MetadataComponent // index i holds id i+1
	edges      []schemas.DependencyEdge    // index i holds id i+1
	byNode     map[int64][]int             // component id -> edge indexes
	jobs       map[string]schemas.ExtractionJob
	jobOrder   []string
	now        func() time.Time
	log        *zap.Logger
}

var _ schemas.Store = (*MemStore)(nil)

// NewMemStore creates a new, empty in-memory store.
func NewMemStore(logger *zap.Logger) *MemStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemStore{
		byNode: make(map[int64][]int),
		jobs:   make(map[string]schemas.ExtractionJob),
		now:    func() time.Time { return time.Now().UTC() },
		log:    logger.Named("memstore"),
	}
}

func (m *MemStore) CreateComponent(ctx context.Context, in schemas.ComponentInput) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, opError("create component", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id := int64(len(m.components) + 1)
	m.components = append(m.components, schemas.MetadataComponent{
		ID:            id,
		Family:        in.Family,
		Name:          in.Name,
		Label:         in.Label,
		Path:          in.Path,
		Content:       in.Content,
		APIVersion:    in.APIVersion,
		Notes:         in.Notes,
		JobID:         in.JobID,
		OrgID:         in.Scope.OrgID,
		IntegrationID: in.Scope.IntegrationID,
		CreatedAt:     m.now(),
	})
	m.log.Debug("Component added", zap.Int64("id", id), zap.String("type", string(in.Family)), zap.String("name", in.Name))
	return id, nil
}

func (m *MemStore) CreateEdge(ctx context.Context, jobID string, fromID, toID int64, kind schemas.EdgeKind, description string) (int64, error) {
	if fromID == toID {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, opError("create edge", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasComponent(fromID) {
		return 0, opError("create edge", fmt.Errorf("source component %d: %w", fromID, ErrNotFound))
	}
	if !m.hasComponent(toID) {
		return 0, opError("create edge", fmt.Errorf("target component %d: %w", toID, ErrNotFound))
	}

	id := int64(len(m.edges) + 1)
	m.edges = append(m.edges, schemas.DependencyEdge{
		ID:          id,
		FromID:      fromID,
		ToID:        toID,
		Kind:        kind,
		Description: description,
		JobID:       jobID,
		CreatedAt:   m.now(),
	})
	idx := len(m.edges) - 1
	m.byNode[fromID] = append(m.byNode[fromID], idx)
	m.byNode[toID] = append(m.byNode[toID], idx)
	return id, nil
}

// hasComponent assumes the caller holds the lock.
func (m *MemStore) hasComponent(id int64) bool {
	return id > 0 && id <= int64(len(m.components))
}

func (m *MemStore) GetComponent(ctx context.Context, id int64) (schemas.MetadataComponent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.hasComponent(id) {
		return schemas.MetadataComponent{}, opError("get component", ErrNotFound)
	}
	return m.components[id-1], nil
}

func (m *MemStore) ComponentsByJob(ctx context.Context, jobID string) ([]schemas.MetadataComponent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []schemas.MetadataComponent
	for _, c := range m.components {
		if c.JobID == jobID {
			c.Content = ""
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemStore) SearchComponents(ctx context.Context, q schemas.SearchQuery) ([]schemas.MetadataComponent, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	needle := strings.ToLower(q.Text)

	m.mu.RLock()
	var out []schemas.MetadataComponent
	for _, c := range m.components {
		if c.OrgID != q.Scope.OrgID {
			continue
		}
		if q.Scope.IntegrationID != "" && c.IntegrationID != q.Scope.IntegrationID {
			continue
		}
		if q.Family != "" && c.Family != q.Family {
			continue
		}
		if !strings.Contains(strings.ToLower(c.Name), needle) &&
			!strings.Contains(strings.ToLower(c.Label), needle) &&
			!strings.Contains(strings.ToLower(c.Content), needle) {
			continue
		}
		c.Content = ""
		out = append(out, c)
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Family != out[j].Family {
			return out[i].Family < out[j].Family
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) TypeStatsByJob(ctx context.Context, jobID string) ([]schemas.TypeCount, error) {
	m.mu.RLock()
	counts := make(map[schemas.Family]int)
	for _, c := range m.components {
		if c.JobID == jobID {
			counts[c.Family]++
		}
	}
	m.mu.RUnlock()

	out := make([]schemas.TypeCount, 0, len(counts))
	for f, n := range counts {
		out = append(out, schemas.TypeCount{Family: f, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Family < out[j].Family
	})
	return out, nil
}

func (m *MemStore) EdgesByComponent(ctx context.Context, componentID int64) ([]schemas.DependencyEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idxs := m.byNode[componentID]
	out := make([]schemas.DependencyEdge, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, m.edges[i])
	}
	return out, nil
}

func (m *MemStore) EdgesByJob(ctx context.Context, jobID string) ([]schemas.DependencyEdge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []schemas.DependencyEdge
	for _, e := range m.edges {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemStore) CreateJob(ctx context.Context, job schemas.ExtractionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.ID]; exists {
		return opError("create job", fmt.Errorf("job %q already exists", job.ID))
	}
	m.jobs[job.ID] = job.Clone()
	m.jobOrder = append(m.jobOrder, job.ID)
	return nil
}

func (m *MemStore) SaveJob(ctx context.Context, job schemas.ExtractionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, exists := m.jobs[job.ID]
	if !exists {
		return opError("save job", ErrNotFound)
	}
	next := job.Clone()
	next.Scope, next.Source, next.SubmittedAt = prev.Scope, prev.Source, prev.SubmittedAt
	m.jobs[job.ID] = next
	return nil
}

func (m *MemStore) GetJob(ctx context.Context, id string) (schemas.ExtractionJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return schemas.ExtractionJob{}, opError("get job", ErrNotFound)
	}
	return job.Clone(), nil
}

func (m *MemStore) ListJobs(ctx context.Context, scope schemas.Scope, limit int) ([]schemas.ExtractionJob, error) {
	if limit <= 0 {
		limit = DefaultJobListLimit
	}
	out := m.scopedJobs(scope, false)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) LatestJob(ctx context.Context, scope schemas.Scope) (schemas.ExtractionJob, error) {
	out := m.scopedJobs(scope, true)
	if len(out) == 0 {
		return schemas.ExtractionJob{}, opError("latest job", ErrNotFound)
	}
	return out[0], nil
}

// scopedJobs returns the jobs of a scope, newest first. Jobs submitted at the
// same instant keep reverse creation order.
func (m *MemStore) scopedJobs(scope schemas.Scope, exactIntegration bool) []schemas.ExtractionJob {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []schemas.ExtractionJob
	for i := len(m.jobOrder) - 1; i >= 0; i-- {
		job := m.jobs[m.jobOrder[i]]
		if job.Scope.OrgID != scope.OrgID {
			continue
		}
		if (exactIntegration || scope.IntegrationID != "") && job.Scope.IntegrationID != scope.IntegrationID {
			continue
		}
		out = append(out, job.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}
