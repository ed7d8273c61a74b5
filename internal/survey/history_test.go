package survey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryCopiesInput(t *testing.T) {
	in := []ConversationNode{
		{Role: RoleQuestion, Type: NodeNormal, Text: "How was combat?"},
		{Role: RoleAnswer, Type: NodeNormal, Text: "Fine"},
	}
	h := NewHistory(in)
	h.AppendQuestion("Anything else?", NodeTail)

	assert.Len(t, in, 2, "caller slice must not grow")
	assert.Equal(t, 3, h.Len())
}

func TestHistoryAppendOnlyOrder(t *testing.T) {
	h := NewHistory(nil)
	h.AppendQuestion("Q1", NodeNormal)
	h.AppendAnswer("")
	h.AppendQuestion("Could you try answering again?", NodeRetry)

	nodes := h.Snapshot()
	require.Len(t, nodes, 3)
	assert.Equal(t, RoleAnswer, nodes[1].Role)
	assert.Equal(t, NodeRetry, nodes[2].Type)
	assert.Equal(t, RoleQuestion, nodes[2].Role)
}

func TestSnapshotIsolation(t *testing.T) {
	h := NewHistory(nil)
	h.AppendQuestion("Q1", NodeNormal)
	snap := h.Snapshot()
	snap[0].Text = "mutated"

	assert.Equal(t, "Q1", h.Snapshot()[0].Text)
}

func TestTranscript(t *testing.T) {
	h := NewHistory(nil)
	h.AppendQuestion("How was the tutorial?", NodeNormal)
	h.AppendAnswer("Too long")

	assert.Equal(t, "Q: How was the tutorial?\nA: Too long\n", h.Transcript())
	assert.Empty(t, NewHistory(nil).Transcript())
}

func TestValidateRequest(t *testing.T) {
	req := InteractionRequest{SessionID: "s1", CurrentQuestion: "Q1"}
	assert.NoError(t, req.Validate())

	// empty answer is legal input
	req.UserAnswer = ""
	assert.NoError(t, req.Validate())

	bad := InteractionRequest{UserAnswer: "hi"}
	err := bad.Validate()
	require.Error(t, err)
}
