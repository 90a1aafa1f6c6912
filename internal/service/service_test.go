package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/metagraph/api/schemas"
	"github.com/xkilldash9x/metagraph/internal/config"
	"github.com/xkilldash9x/metagraph/internal/jobs"
	"github.com/xkilldash9x/metagraph/internal/metadataapi"
	"github.com/xkilldash9x/metagraph/internal/pipeline"
	"github.com/xkilldash9x/metagraph/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testScope = schemas.Scope{OrgID: "org-1", IntegrationID: "int-1"}

func archiveBytes(t *testing.T) []byte {
	t.Helper()
	files := []struct{ path, content string }{
		{"unpackaged/classes/Foo.cls", "public class Foo { void run() { List<Account> a = [SELECT Id FROM Account]; } }"},
		{"unpackaged/objects/Account.object", `<?xml version="1.0"?><CustomObject xmlns="http://soap.sforce.com/2006/04/metadata"></CustomObject>`},
		{"unpackaged/package.xml", "<Package/>"},
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.path)
		require.NoError(t, err)
		_, err = w.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type stubRemote struct {
	archive []byte
}

func (s *stubRemote) Submit(ctx context.Context) (metadataapi.RetrieveHandle, error) {
	return metadataapi.RetrieveHandle{AsyncID: "09S000000000001", State: "Queued"}, nil
}

func (s *stubRemote) CheckStatus(ctx context.Context, asyncID string) (metadataapi.RetrieveStatus, error) {
	return metadataapi.RetrieveStatus{Done: true, State: "Succeeded", Success: true, Archive: s.archive}, nil
}

type mapSink struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapSink) PutArchive(ctx context.Context, jobID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[jobID] = data
	return nil
}

func (m *mapSink) GetArchive(ctx context.Context, jobID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[jobID]
	if !ok {
		return nil, errors.New("snapshot not found")
	}
	return data, nil
}

func newTestService(t *testing.T, sink schemas.ArchiveSink, factory ClientFactory) (*Service, *store.MemStore) {
	t.Helper()
	mem := store.NewMemStore(nil)
	logger := zap.NewNop()
	tracker := jobs.NewTracker(mem, logger)
	analyzer := pipeline.NewAnalyzer(mem, nil, pipeline.AnalyzerConfig{APIVersion: "62.0"}, logger)
	driver := pipeline.NewDriver(analyzer, sink, pipeline.DriverConfig{MaxPollAttempts: 3}, logger)
	return New(tracker, driver, sink, factory, logger), mem
}

func TestStartExtraction(t *testing.T) {
	data := archiveBytes(t)
	validSession := metadataapi.Session{SessionID: "00D!token", ServerURL: "https://example.my.salesforce.com/services/Soap/u/62.0"}

	t.Run("should run the job in the background and keep the snapshot", func(t *testing.T) {
		sink := &mapSink{data: map[string][]byte{}}
		svc, mem := newTestService(t, sink, func(metadataapi.Session) (pipeline.RemoteClient, error) {
			return &stubRemote{archive: data}, nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		id, err := svc.StartExtraction(ctx, validSession, testScope)
		require.NoError(t, err)
		// Cancelling the request must not abort the job.
		cancel()
		svc.Wait()

		job, err := svc.Job(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, schemas.JobSucceeded, job.Status, job.Error)
		assert.Equal(t, "09S000000000001", job.RemoteJobID)
		assert.Equal(t, 2, job.Stats.ComponentsStored)
		assert.Equal(t, 1, job.Stats.DependenciesStored)

		comps, err := mem.ComponentsByJob(context.Background(), id)
		require.NoError(t, err)
		assert.Len(t, comps, 2)

		stored, err := sink.GetArchive(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, data, stored)
	})

	t.Run("should reject a bad session without creating a job", func(t *testing.T) {
		svc, mem := newTestService(t, nil, func(session metadataapi.Session) (pipeline.RemoteClient, error) {
			if err := session.Validate(); err != nil {
				return nil, err
			}
			return &stubRemote{archive: data}, nil
		})

		_, err := svc.StartExtraction(context.Background(), metadataapi.Session{ServerURL: validSession.ServerURL}, testScope)
		var authErr *metadataapi.AuthenticationError
		require.ErrorAs(t, err, &authErr)

		listed, err := mem.ListJobs(context.Background(), testScope, 0)
		require.NoError(t, err)
		assert.Empty(t, listed)
	})

	t.Run("should fail without a client factory", func(t *testing.T) {
		svc, _ := newTestService(t, nil, nil)
		_, err := svc.StartExtraction(context.Background(), validSession, testScope)
		assert.Error(t, err)
	})
}

func TestStartLocalAnalysis(t *testing.T) {
	ctx := context.Background()

	t.Run("should analyze archive bytes", func(t *testing.T) {
		svc, _ := newTestService(t, nil, nil)
		id, err := svc.StartLocalAnalysis(ctx, testScope, archiveBytes(t))
		require.NoError(t, err)
		svc.Wait()

		job, err := svc.Job(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, schemas.JobSucceeded, job.Status)
		assert.Equal(t, schemas.SourceArchive, job.Source)
		assert.Equal(t, 3, job.Stats.TotalFiles)
		assert.Equal(t, 1, job.Stats.SkippedFiles)
	})

	t.Run("should record a corrupt archive as a failed job", func(t *testing.T) {
		svc, _ := newTestService(t, nil, nil)
		id, err := svc.StartLocalAnalysis(ctx, testScope, []byte("not a zip"))
		require.NoError(t, err)
		svc.Wait()

		job, err := svc.Job(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, schemas.JobFailed, job.Status)
		assert.NotEmpty(t, job.Error)
	})

	t.Run("should run many jobs concurrently", func(t *testing.T) {
		svc, mem := newTestService(t, nil, nil)
		data := archiveBytes(t)
		ids := make([]string, 10)
		for i := range ids {
			id, err := svc.StartLocalAnalysis(ctx, testScope, data)
			require.NoError(t, err)
			ids[i] = id
		}
		svc.Wait()

		for _, id := range ids {
			job, err := svc.Job(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, schemas.JobSucceeded, job.Status)
			edges, err := mem.EdgesByJob(ctx, id)
			require.NoError(t, err)
			assert.Len(t, edges, 1, "edges stay partitioned by job")
		}
	})
}

func TestStartSnapshotAnalysis(t *testing.T) {
	ctx := context.Background()

	t.Run("should require a sink", func(t *testing.T) {
		svc, _ := newTestService(t, nil, nil)
		_, err := svc.StartSnapshotAnalysis(ctx, testScope, "job-1")
		assert.ErrorIs(t, err, ErrSnapshotsDisabled)
	})

	t.Run("should re-analyze a stored archive", func(t *testing.T) {
		sink := &mapSink{data: map[string][]byte{"job-1": archiveBytes(t)}}
		svc, _ := newTestService(t, sink, nil)
		id, err := svc.StartSnapshotAnalysis(ctx, testScope, "job-1")
		require.NoError(t, err)
		svc.Wait()

		job, err := svc.Job(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, schemas.JobSucceeded, job.Status)
		assert.Equal(t, schemas.SourceSnapshot, job.Source)
	})

	t.Run("should surface a missing snapshot", func(t *testing.T) {
		sink := &mapSink{data: map[string][]byte{}}
		svc, _ := newTestService(t, sink, nil)
		_, err := svc.StartSnapshotAnalysis(ctx, testScope, "missing")
		assert.ErrorContains(t, err, "missing")
	})
}

func TestComponentFactory(t *testing.T) {
	ctx := context.Background()

	t.Run("should build an in-memory stack", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		c, err := NewComponentFactory().Create(ctx, cfg, Options{InMemory: true}, zap.NewNop())
		require.NoError(t, err)
		defer c.Shutdown()

		assert.IsType(t, &store.MemStore{}, c.Store)
		assert.Nil(t, c.Snapshots)
		assert.Nil(t, c.DBPool)
		require.NotNil(t, c.Service)
		require.NotNil(t, c.Graph)

		id, err := c.Service.StartLocalAnalysis(ctx, testScope, archiveBytes(t))
		require.NoError(t, err)
		c.Service.Wait()
		job, err := c.Tracker.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, schemas.JobSucceeded, job.Status)
	})

	t.Run("should require a database URL", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.DatabaseCfg.URL = ""
		_, err := NewComponentFactory().Create(ctx, cfg, Options{}, zap.NewNop())
		assert.ErrorContains(t, err, "database URL is not configured")
	})

	t.Run("should reject an invalid proxy", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.NetworkCfg.ProxyURL = "://bad"
		_, err := NewComponentFactory().Create(ctx, cfg, Options{InMemory: true}, zap.NewNop())
		assert.ErrorContains(t, err, "proxy_url")
	})
}
