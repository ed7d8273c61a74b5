package survey

import "strings"

// History is the append-only conversation log for one run. The caller
// supplies the prior nodes with each request and persists the result;
// the engine never stores it.
type History struct {
	nodes []ConversationNode
}

// NewHistory copies the caller-supplied nodes so the request body is
// never aliased by the run.
func NewHistory(nodes []ConversationNode) *History {
	h := &History{nodes: make([]ConversationNode, len(nodes))}
	copy(h.nodes, nodes)
	return h
}

// Append adds a node at the end. This is the only mutator: nodes are
// never reordered, rewritten or removed.
func (h *History) Append(n ConversationNode) {
	h.nodes = append(h.nodes, n)
}

// AppendQuestion appends a question node with the given tag.
func (h *History) AppendQuestion(text string, t NodeType) {
	h.Append(ConversationNode{Role: RoleQuestion, Type: t, Text: text})
}

// AppendAnswer appends a user answer node.
func (h *History) AppendAnswer(text string) {
	h.Append(ConversationNode{Role: RoleAnswer, Type: NodeNormal, Text: text})
}

// Len returns the number of nodes.
func (h *History) Len() int { return len(h.nodes) }

// Snapshot returns a copy of the ordered node sequence.
func (h *History) Snapshot() []ConversationNode {
	out := make([]ConversationNode, len(h.nodes))
	copy(out, h.nodes)
	return out
}

// Transcript renders the log as alternating Q/A lines for prompt
// construction.
func (h *History) Transcript() string {
	if len(h.nodes) == 0 {
		return ""
	}
	var b strings.Builder
	for _, n := range h.nodes {
		switch n.Role {
		case RoleQuestion:
			b.WriteString("Q: ")
		case RoleAnswer:
			b.WriteString("A: ")
		}
		b.WriteString(n.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
