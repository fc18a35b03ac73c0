package generator

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/ChuLiYu/conflict-engine/internal/rpc"
	"github.com/ChuLiYu/conflict-engine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

const catalogYAML = `
solutions:
  "*":
    - id: template
      strategy: MOVE_NONCRITICAL
      description: Move a non-critical task of {resource} off {date}
      feasibility_score: 0.8
      complexity_score: 0.3
      preserves_deadline: true
      impact_analysis:
        affected_tasks: [review]
        days_impact: 2
        resources_needed: 0
  "res-1-2025-02-05":
    - id: hire
      strategy: ADD_RESOURCE
      description: Bring in a contractor for {conflict}
      feasibility_score: 0.4
      complexity_score: 0.7
      preserves_deadline: true
`

func conflicts() []types.Conflict {
	return []types.Conflict{
		{ID: "res-1-2025-02-05", ResourceName: "Joao", Date: types.MustParseDate("2025-02-05")},
		{ID: "res-1-2025-02-06", ResourceName: "Joao", Date: types.MustParseDate("2025-02-06")},
	}
}

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "solutions.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalogYAML), 0o644))
	return path
}

func TestFileGenerator(t *testing.T) {
	gen, err := LoadFileGenerator(writeCatalog(t))
	require.NoError(t, err)

	out, err := gen.Generate(context.Background(), conflicts())
	require.NoError(t, err)
	require.Len(t, out, 2)

	explicit := out["res-1-2025-02-05"]
	require.Len(t, explicit, 1)
	assert.Equal(t, "hire", explicit[0].ID)
	assert.Equal(t, types.StrategyAddResource, explicit[0].Strategy)
	assert.Equal(t, "Bring in a contractor for res-1-2025-02-05", explicit[0].Description)

	wildcard := out["res-1-2025-02-06"]
	require.Len(t, wildcard, 1)
	assert.Empty(t, wildcard[0].ID, "wildcard ids are assigned by the engine")
	assert.Equal(t, "res-1-2025-02-06", wildcard[0].ConflictID)
	assert.Equal(t, "Move a non-critical task of Joao off 2025-02-06", wildcard[0].Description)
	assert.Equal(t, []string{"review"}, wildcard[0].Impact.AffectedTasks)
	assert.NoError(t, wildcard[0].Validate())
}

func TestFileGeneratorWithoutWildcard(t *testing.T) {
	gen := NewFileGenerator(Catalog{})
	out, err := gen.Generate(context.Background(), conflicts())
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFileGeneratorHonoursContext(t *testing.T) {
	gen, err := LoadFileGenerator(writeCatalog(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = gen.Generate(ctx, conflicts())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadFileGeneratorErrors(t *testing.T) {
	_, err := LoadFileGenerator(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("solutions: [oops"), 0o644))
	_, err = LoadFileGenerator(bad)
	assert.Error(t, err)
}

func TestExecutionIDContext(t *testing.T) {
	assert.Empty(t, ExecutionID(context.Background()))
	assert.Equal(t, "exec-7", ExecutionID(WithExecutionID(context.Background(), "exec-7")))
}

// ============================================================================
// gRPC
// ============================================================================

func dialGenerator(t *testing.T, gen Generator) *GRPCGenerator {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	rpc.RegisterSolutionGeneratorServer(srv, NewServer(gen))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewGRPCGenerator(conn)
}

func TestGRPCGeneratorRoundTrip(t *testing.T) {
	var seenID string
	remote := Func(func(ctx context.Context, in []types.Conflict) (map[string][]types.Solution, error) {
		seenID = ExecutionID(ctx)
		return map[string][]types.Solution{
			in[0].ID: {{ID: "s1", ConflictID: in[0].ID, Strategy: types.StrategyExtendDuration, Description: "extend"}},
		}, nil
	})
	gen := dialGenerator(t, remote)

	out, err := gen.Generate(WithExecutionID(context.Background(), "exec-1"), conflicts())
	require.NoError(t, err)
	require.Len(t, out["res-1-2025-02-05"], 1)
	assert.Equal(t, "s1", out["res-1-2025-02-05"][0].ID)
	assert.Equal(t, "exec-1", seenID)
}

func TestGRPCGeneratorPropagatesRemoteFailure(t *testing.T) {
	remote := Func(func(context.Context, []types.Conflict) (map[string][]types.Solution, error) {
		return nil, errors.New("model overloaded")
	})
	gen := dialGenerator(t, remote)

	_, err := gen.Generate(context.Background(), conflicts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestGRPCGeneratorEmptyResponse(t *testing.T) {
	remote := Func(func(context.Context, []types.Conflict) (map[string][]types.Solution, error) {
		return nil, nil
	})
	gen := dialGenerator(t, remote)

	out, err := gen.Generate(context.Background(), conflicts())
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}
