package cmd

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/metagraph/api/schemas"
	"github.com/xkilldash9x/metagraph/internal/config"
	"github.com/xkilldash9x/metagraph/internal/graph"
	"github.com/xkilldash9x/metagraph/internal/service"
)

// memFactory hands every command of a test the same in-memory stack so one
// command can read what another wrote.
type memFactory struct {
	once sync.Once
	c    *service.Components
	err  error
}

func (f *memFactory) Create(ctx context.Context, cfg config.Interface, opts service.Options, logger *zap.Logger) (*service.Components, error) {
	f.once.Do(func() {
		f.c, f.err = service.NewComponentFactory().Create(ctx, cfg, service.Options{InMemory: true}, logger)
	})
	return f.c, f.err
}

func execute(t *testing.T, factory service.ComponentFactory, args ...string) (string, *app, error) {
	t.Helper()
	if factory == nil {
		factory = &memFactory{}
	}
	root, a := newRootCmd(factory)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.ExecuteContext(context.Background())
	return buf.String(), a, err
}

func writeArchive(t *testing.T) string {
	t.Helper()
	files := []struct{ path, content string }{
		{"unpackaged/classes/Foo.cls", "public class Foo { void run() { List<Account> a = [SELECT Id FROM Account]; update Account; } }"},
		{"unpackaged/objects/Account.object", `<CustomObject xmlns="http://soap.sforce.com/2006/04/metadata"/>`},
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

	path := filepath.Join(t.TempDir(), "retrieve.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, nil, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestConfigLoading(t *testing.T) {
	t.Run("should apply a config file over the defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		content := "remote:\n  max_poll_attempts: 7\n  api_version: \"60.0\"\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		_, a, err := execute(t, nil, "--config", path, "job", "list", "--org", "org-1")
		require.NoError(t, err)
		require.NotNil(t, a.cfg)
		assert.Equal(t, 7, a.cfg.Remote().MaxPollAttempts)
		assert.Equal(t, "60.0", a.cfg.Remote().APIVersion)
		assert.Equal(t, 1024, a.cfg.Graph().CacheSize, "unset keys keep defaults")
	})

	t.Run("should read the environment", func(t *testing.T) {
		t.Setenv("METAGRAPH_REMOTE_MAX_POLL_ATTEMPTS", "12")
		_, a, err := execute(t, nil, "job", "list", "--org", "org-1")
		require.NoError(t, err)
		assert.Equal(t, 12, a.cfg.Remote().MaxPollAttempts)
	})

	t.Run("should load a dotenv file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte("METAGRAPH_GRAPH_CACHE_SIZE=33\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("METAGRAPH_GRAPH_CACHE_SIZE") })

		root, a := newRootCmd(&memFactory{})
		root.SetOut(new(bytes.Buffer))
		root.SetArgs([]string{"--env-file", path, "job", "list", "--org", "org-1"})
		require.NoError(t, root.ExecuteContext(context.Background()))
		assert.Equal(t, 33, a.cfg.Graph().CacheSize)
	})

	t.Run("should reject an invalid configuration", func(t *testing.T) {
		t.Setenv("METAGRAPH_GRAPH_CACHE_SIZE", "0")
		_, _, err := execute(t, nil, "job", "list", "--org", "org-1")
		assert.ErrorContains(t, err, "graph.cache_size")
	})
}

func TestFlagValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"extract without org", []string{"extract", "--integration", "i"}, "--org is required"},
		{"extract without integration", []string{"extract", "--org", "o"}, "--integration is required"},
		{"extract with zero attempts", []string{"extract", "--org", "o", "--integration", "i", "--max-attempts", "0"}, "--max-attempts"},
		{"analyze without source", []string{"analyze", "--org", "o", "--integration", "i"}, "exactly one of --archive or --snapshot"},
		{"analyze with both sources", []string{"analyze", "--archive", "a.zip", "--snapshot", "j", "--org", "o", "--integration", "i"}, "exactly one of"},
		{"components without job", []string{"components"}, "--job is required"},
		{"search without org", []string{"search", "Foo"}, "--org is required"},
		{"latest without integration", []string{"job", "list", "--org", "o", "--latest"}, "--integration is required"},
		{"graph with a bad id", []string{"graph", "abc"}, "invalid component id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, nil, tt.args...)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestExtractOverrides(t *testing.T) {
	root, a := newRootCmd(&memFactory{})
	extract, _, err := root.Find([]string{"extract"})
	require.NoError(t, err)
	extract.RunE = nil
	extract.Run = func(*cobra.Command, []string) {}

	root.SetOut(new(bytes.Buffer))
	root.SetArgs([]string{"--env-file", "", "extract", "--org", "o", "--integration", "i", "--max-attempts", "5", "--poll-interval", "2s"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Equal(t, 5, a.cfg.Remote().MaxPollAttempts)
	assert.Equal(t, "2s", a.cfg.Remote().PollInterval.String())
}

func TestLocalAnalysisFlow(t *testing.T) {
	factory := &memFactory{}
	archive := writeArchive(t)

	out, _, err := execute(t, factory, "analyze", "--archive", archive, "--org", "org-1", "--integration", "int-1", "--concurrency", "2")
	require.NoError(t, err)

	var job schemas.ExtractionJob
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, schemas.JobSucceeded, job.Status)
	assert.Equal(t, schemas.JobStats{TotalFiles: 2, ComponentsStored: 2, DependenciesStored: 2}, job.Stats)

	t.Run("job status", func(t *testing.T) {
		out, _, err := execute(t, factory, "job", "status", job.ID)
		require.NoError(t, err)
		var got schemas.ExtractionJob
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, job.ID, got.ID)
	})

	t.Run("job list", func(t *testing.T) {
		out, _, err := execute(t, factory, "job", "list", "--org", "org-1", "--integration", "int-1", "--latest")
		require.NoError(t, err)
		var got schemas.ExtractionJob
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, job.ID, got.ID)
	})

	t.Run("components", func(t *testing.T) {
		out, _, err := execute(t, factory, "components", "--job", job.ID)
		require.NoError(t, err)
		var got []schemas.MetadataComponent
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		require.Len(t, got, 2)
		assert.Equal(t, "Foo", got[0].Name)
		assert.Equal(t, "Account", got[1].Name)

		out, _, err = execute(t, factory, "components", "--job", job.ID, "--stats")
		require.NoError(t, err)
		var counts []schemas.TypeCount
		require.NoError(t, json.Unmarshal([]byte(out), &counts))
		assert.Len(t, counts, 2)
	})

	t.Run("search", func(t *testing.T) {
		out, _, err := execute(t, factory, "search", "acc", "--org", "org-1", "--type", "CustomObject")
		require.NoError(t, err)
		var got []schemas.MetadataComponent
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "Account", got[0].Name)
	})

	t.Run("graph", func(t *testing.T) {
		out, _, err := execute(t, factory, "graph", "2")
		require.NoError(t, err)
		var net graph.Network
		require.NoError(t, json.Unmarshal([]byte(out), &net))
		assert.Equal(t, "Account", net.Component.Name)
		assert.Equal(t, graph.NetworkStats{Total: 2, Incoming: 2}, net.Stats)

		out, _, err = execute(t, factory, "graph", "1", "2")
		require.NoError(t, err)
		var sub graph.Subgraph
		require.NoError(t, json.Unmarshal([]byte(out), &sub))
		assert.Len(t, sub.Nodes, 2)
		assert.Len(t, sub.Edges, 2)
	})
}

func TestAnalyzeFailedJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o600))

	out, _, err := execute(t, nil, "analyze", "--archive", path, "--org", "o", "--integration", "i")
	assert.ErrorContains(t, err, "failed")

	var job schemas.ExtractionJob
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, schemas.JobFailed, job.Status)
}

func TestAnalyzeSnapshotDisabled(t *testing.T) {
	_, _, err := execute(t, nil, "analyze", "--snapshot", "job-1", "--org", "o", "--integration", "i")
	assert.ErrorIs(t, err, service.ErrSnapshotsDisabled)
}

func TestMigrateRequiresDatabase(t *testing.T) {
	_, _, err := execute(t, nil, "migrate")
	assert.ErrorContains(t, err, "database URL is not configured")
}
