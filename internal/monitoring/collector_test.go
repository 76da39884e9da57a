package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pipeline"
)

func TestCollector_Snapshot(t *testing.T) {
	c := NewCollector()

	// One lead all the way through, one disqualified, one failed.
	c.Emit(pipeline.Event{LeadID: "a", From: model.StageDiscovered, To: model.StageEnriching})
	c.Emit(pipeline.Event{LeadID: "a", From: model.StageEnriching, To: model.StageEnriched})
	c.Emit(pipeline.Event{LeadID: "a", From: model.StageQualifying, To: model.StageQualified, Score: 85})
	c.Emit(pipeline.Event{LeadID: "a", From: model.StageOutreachDrafting, To: model.StageOutreachSent})
	c.Emit(pipeline.Event{LeadID: "b", From: model.StageQualifying, To: model.StageDisqualified, Score: 45})
	c.Emit(pipeline.Event{LeadID: "c", From: model.StageEnriching, To: model.StageFailed})

	snap := c.Snapshot()
	assert.Equal(t, 6, snap.Transitions)
	assert.Equal(t, 3, snap.Finished)
	assert.Equal(t, 1, snap.Failed)
	assert.InDelta(t, 1.0/3.0, snap.FailRate, 1e-9)
	assert.Equal(t, 65.0, snap.AvgScore)
	assert.Equal(t, 1, snap.Terminal[model.StageOutreachSent])
	assert.Equal(t, 1, snap.Terminal[model.StageDisqualified])
}

func TestCollector_EmptySnapshot(t *testing.T) {
	snap := NewCollector().Snapshot()
	assert.Equal(t, 0, snap.Transitions)
	assert.Equal(t, 0.0, snap.FailRate)
	assert.Equal(t, 0.0, snap.AvgScore)
}
