package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ChuLiYu/conflict-engine/internal/orchestrator"
	"github.com/ChuLiYu/conflict-engine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ orchestrator.FeedbackSink = (*FeedbackLog)(nil)

func TestFeedbackLogAppendAndRead(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "checkpoints")
	fl, err := NewFeedbackLog(filepath.Join(dir, FeedbackFile))
	require.NoError(t, err)

	require.NoError(t, fl.RecordFeedback(ctx, types.Feedback{
		ExecutionID: "exec-1", SolutionID: "s1", Accepted: true, ManagerRating: 5,
		Outcome: types.OutcomeSuccess, EffectivenessScore: 1, Strategy: types.StrategyMoveNonCritical,
		Context: map[string]string{"team": "platform"},
	}))
	require.NoError(t, fl.RecordFeedback(ctx, types.Feedback{
		ExecutionID: "exec-2", SolutionID: "s9", ManagerRating: 2, Outcome: types.OutcomeFailed,
	}))
	require.NoError(t, fl.RecordFeedback(ctx, types.Feedback{
		ExecutionID: "exec-1", SolutionID: "s2", Accepted: true, ManagerRating: 4,
		Outcome: types.OutcomePartial, EffectivenessScore: 0.56,
	}))

	// a second handle on the same file sees every record
	reopened, err := NewFeedbackLog(fl.Path())
	require.NoError(t, err)

	records, err := reopened.Feedback(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "s1", records[0].SolutionID)
	assert.Equal(t, types.StrategyMoveNonCritical, records[0].Strategy)
	assert.Equal(t, "platform", records[0].Context["team"])
	assert.False(t, records[0].SubmittedAt.IsZero())
	assert.Equal(t, "s2", records[1].SolutionID)
	assert.Equal(t, 0.56, records[1].EffectivenessScore)

	all, err := reopened.Feedback(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestFeedbackLogMissingFileIsEmpty(t *testing.T) {
	fl, err := NewFeedbackLog(filepath.Join(t.TempDir(), FeedbackFile))
	require.NoError(t, err)

	records, err := fl.Feedback(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFeedbackLogSkipsDamagedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), FeedbackFile)
	require.NoError(t, os.WriteFile(path, []byte("{not json\n\n"), 0o644))

	fl, err := NewFeedbackLog(path)
	require.NoError(t, err)
	fl.now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }
	require.NoError(t, fl.RecordFeedback(context.Background(), types.Feedback{
		ExecutionID: "exec-1", SolutionID: "s1", ManagerRating: 3, Outcome: types.OutcomeSuccess,
	}))

	records, err := fl.Feedback(context.Background(), "exec-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].SubmittedAt.Equal(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)))
}

func TestFeedbackLogDoesNotShowUpAsCheckpoint(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	fl, err := NewFeedbackLog(filepath.Join(m.Dir(), FeedbackFile))
	require.NoError(t, err)

	require.NoError(t, m.Save(ctx, sampleRun("exec-1")))
	require.NoError(t, fl.RecordFeedback(ctx, types.Feedback{
		ExecutionID: "exec-1", SolutionID: "s1", ManagerRating: 3, Outcome: types.OutcomeSuccess,
	}))

	summaries, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "exec-1", summaries[0].ExecutionID)
}
