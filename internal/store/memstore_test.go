package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/metagraph/api/schemas"
)

func addComponent(t *testing.T, m *MemStore, family schemas.Family, name, content string) int64 {
	t.Helper()
	id, err := m.CreateComponent(context.Background(), schemas.ComponentInput{
		Family: family, Name: name, Label: name, Content: content, JobID: "job-1", Scope: testScope,
	})
	require.NoError(t, err)
	return id
}

func TestMemStoreComponents(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore(nil)

	foo := addComponent(t, m, schemas.FamilyApexClass, "Foo", "public class Foo { Account a; }")
	acct := addComponent(t, m, schemas.FamilyCustomObject, "Account", "<CustomObject/>")
	assert.Equal(t, int64(1), foo)
	assert.Equal(t, int64(2), acct)

	t.Run("should be append-only for duplicate names", func(t *testing.T) {
		dup := addComponent(t, m, schemas.FamilyApexClass, "Foo", "again")
		assert.NotEqual(t, foo, dup)

		got, err := m.GetComponent(ctx, foo)
		require.NoError(t, err)
		assert.Equal(t, "public class Foo { Account a; }", got.Content, "existing rows are never overwritten")
	})

	t.Run("should list job components in creation order without content", func(t *testing.T) {
		out, err := m.ComponentsByJob(ctx, "job-1")
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, []int64{1, 2, 3}, []int64{out[0].ID, out[1].ID, out[2].ID})
		assert.Empty(t, out[0].Content)
	})

	t.Run("should return ErrNotFound for unknown components", func(t *testing.T) {
		_, err := m.GetComponent(ctx, 42)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should count components per family", func(t *testing.T) {
		stats, err := m.TypeStatsByJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, []schemas.TypeCount{
			{Family: schemas.FamilyApexClass, Count: 2},
			{Family: schemas.FamilyCustomObject, Count: 1},
		}, stats)
	})
}

func TestMemStoreEdges(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore(nil)
	foo := addComponent(t, m, schemas.FamilyApexClass, "Foo", "")
	bar := addComponent(t, m, schemas.FamilyApexClass, "Bar", "")
	acct := addComponent(t, m, schemas.FamilyCustomObject, "Account", "")

	t.Run("should not create self edges", func(t *testing.T) {
		id, err := m.CreateEdge(ctx, "job-1", foo, foo, schemas.EdgeQueryReference, "")
		require.NoError(t, err)
		assert.Zero(t, id)
	})

	t.Run("should reject edges to unknown components", func(t *testing.T) {
		_, err := m.CreateEdge(ctx, "job-1", foo, 99, schemas.EdgeQueryReference, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	_, err := m.CreateEdge(ctx, "job-1", foo, acct, schemas.EdgeQueryReference, "Foo queries Account")
	require.NoError(t, err)
	_, err = m.CreateEdge(ctx, "job-1", bar, foo, schemas.EdgeInheritance, "Bar extends Foo")
	require.NoError(t, err)
	_, err = m.CreateEdge(ctx, "job-1", foo, acct, schemas.EdgeMutationReference, "Foo updates Account")
	require.NoError(t, err)

	t.Run("should return inbound and outbound edges", func(t *testing.T) {
		edges, err := m.EdgesByComponent(ctx, foo)
		require.NoError(t, err)
		assert.Len(t, edges, 3)

		edges, err = m.EdgesByComponent(ctx, bar)
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, schemas.EdgeInheritance, edges[0].Kind)
	})

	t.Run("should keep duplicate edges of different kinds", func(t *testing.T) {
		edges, err := m.EdgesByJob(ctx, "job-1")
		require.NoError(t, err)
		assert.Len(t, edges, 3)
		for _, e := range edges {
			assert.NotEqual(t, e.FromID, e.ToID)
		}
	})
}

func TestMemStoreSearch(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore(nil)
	addComponent(t, m, schemas.FamilyApexClass, "InvoiceService", "SELECT Id FROM Invoice__c")
	addComponent(t, m, schemas.FamilyCustomObject, "Invoice__c", "")
	addComponent(t, m, schemas.FamilyFlow, "Approve", "invoice approval")
	_, err := m.CreateComponent(ctx, schemas.ComponentInput{
		Family: schemas.FamilyApexClass, Name: "Invoice", JobID: "job-2",
		Scope: schemas.Scope{OrgID: "other", IntegrationID: "int-1"},
	})
	require.NoError(t, err)

	t.Run("should match name label and content case-insensitively", func(t *testing.T) {
		out, err := m.SearchComponents(ctx, schemas.SearchQuery{Scope: testScope, Text: "INVOICE"})
		require.NoError(t, err)
		require.Len(t, out, 3)
		assert.Equal(t, schemas.FamilyApexClass, out[0].Family)
		assert.Equal(t, schemas.FamilyCustomObject, out[1].Family)
		assert.Equal(t, schemas.FamilyFlow, out[2].Family)
	})

	t.Run("should filter by family and never cross scopes", func(t *testing.T) {
		out, err := m.SearchComponents(ctx, schemas.SearchQuery{Scope: testScope, Text: "invoice", Family: schemas.FamilyApexClass})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "InvoiceService", out[0].Name)
	})

	t.Run("should honor the limit", func(t *testing.T) {
		out, err := m.SearchComponents(ctx, schemas.SearchQuery{Scope: testScope, Text: "invoice", Limit: 2})
		require.NoError(t, err)
		assert.Len(t, out, 2)
	})
}

func TestMemStoreJobs(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore(nil)
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.CreateJob(ctx, schemas.ExtractionJob{ID: "a", Scope: testScope, Status: schemas.JobStarting, SubmittedAt: t0}))
	require.NoError(t, m.CreateJob(ctx, schemas.ExtractionJob{ID: "b", Scope: testScope, Status: schemas.JobStarting, SubmittedAt: t0.Add(time.Hour)}))
	require.NoError(t, m.CreateJob(ctx, schemas.ExtractionJob{ID: "c", Scope: schemas.Scope{OrgID: "org-1", IntegrationID: "int-2"}, SubmittedAt: t0.Add(2 * time.Hour)}))

	t.Run("should reject duplicate job ids", func(t *testing.T) {
		assert.Error(t, m.CreateJob(ctx, schemas.ExtractionJob{ID: "a"}))
	})

	t.Run("should return the latest job of an exact scope", func(t *testing.T) {
		job, err := m.LatestJob(ctx, testScope)
		require.NoError(t, err)
		assert.Equal(t, "b", job.ID)

		_, err = m.LatestJob(ctx, schemas.Scope{OrgID: "nobody"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should list an org across integrations when integration is empty", func(t *testing.T) {
		jobs, err := m.ListJobs(ctx, schemas.Scope{OrgID: "org-1"}, 0)
		require.NoError(t, err)
		require.Len(t, jobs, 3)
		assert.Equal(t, "c", jobs[0].ID)
	})

	t.Run("should save mutable fields and keep creation fields", func(t *testing.T) {
		job, err := m.GetJob(ctx, "a")
		require.NoError(t, err)
		job.Status = schemas.JobFailed
		job.Error = "boom"
		job.SubmittedAt = time.Time{}
		job.Progress = append(job.Progress, schemas.ProgressEntry{Message: "x"})
		require.NoError(t, m.SaveJob(ctx, job))

		got, err := m.GetJob(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, schemas.JobFailed, got.Status)
		assert.Equal(t, t0, got.SubmittedAt)
		require.Len(t, got.Progress, 1)

		job.Progress[0].Message = "mutated"
		again, _ := m.GetJob(ctx, "a")
		assert.Equal(t, "x", again.Progress[0].Message, "stored progress must not alias the caller's slice")
	})

	t.Run("should report ErrNotFound when saving an unknown job", func(t *testing.T) {
		assert.ErrorIs(t, m.SaveJob(ctx, schemas.ExtractionJob{ID: "zzz"}), ErrNotFound)
	})
}

func TestMemStoreConcurrentWrites(t *testing.T) {
	m := NewMemStore(nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := m.CreateComponent(context.Background(), schemas.ComponentInput{Family: schemas.FamilyFlow, Name: "F", JobID: "job-1"})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	out, err := m.ComponentsByJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Len(t, out, 800)
	seen := make(map[int64]bool, len(out))
	for _, c := range out {
		assert.False(t, seen[c.ID], "ids must be unique")
		seen[c.ID] = true
	}
}
