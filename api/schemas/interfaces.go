package schemas

import "context"

// -- Store Interfaces --

// ComponentStore persists components and the resolved edges between them.
// Component creation is append-only: every call inserts a new row.
type ComponentStore interface {
	// CreateComponent inserts a component and returns its store-assigned id.
	CreateComponent(ctx context.Context, in ComponentInput) (int64, error)
	// CreateEdge inserts a directed edge. It is a no-op returning 0 when
	// fromID == toID.
	CreateEdge(ctx context.Context, jobID string, fromID, toID int64, kind EdgeKind, description string) (int64, error)

	GetComponent(ctx context.Context, id int64) (MetadataComponent, error)
	// ComponentsByJob returns the components of a job in creation order.
	ComponentsByJob(ctx context.Context, jobID string) ([]MetadataComponent, error)
	// EdgesByComponent returns inbound and outbound edges of a component.
	EdgesByComponent(ctx context.Context, componentID int64) ([]DependencyEdge, error)
	EdgesByJob(ctx context.Context, jobID string) ([]DependencyEdge, error)
	SearchComponents(ctx context.Context, q SearchQuery) ([]MetadataComponent, error)
	TypeStatsByJob(ctx context.Context, jobID string) ([]TypeCount, error)
}

// JobStore is the durable job table behind the job state tracker.
type JobStore interface {
	CreateJob(ctx context.Context, job ExtractionJob) error
	// SaveJob overwrites the mutable columns of an existing job.
	SaveJob(ctx context.Context, job ExtractionJob) error
	GetJob(ctx context.Context, id string) (ExtractionJob, error)
	ListJobs(ctx context.Context, scope Scope, limit int) ([]ExtractionJob, error)
	LatestJob(ctx context.Context, scope Scope) (ExtractionJob, error)
}

// Store is the full persistence surface used by the pipeline and readers.
type Store interface {
	ComponentStore
	JobStore
}

// ArchiveSink keeps a copy of each downloaded archive so a run can be
// analyzed again without a new remote job.
type ArchiveSink interface {
	PutArchive(ctx context.Context, jobID string, data []byte) error
	GetArchive(ctx context.Context, jobID string) ([]byte, error)
}
