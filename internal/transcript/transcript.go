// Package transcript reconstructs the rendered order of an assistant message:
// prose interleaved with the tool calls it emitted and their outputs.
package transcript

import (
	"sort"

	"github.com/chirino/chat-store/internal/content"
	"github.com/chirino/chat-store/internal/model"
)

// NodeKind discriminates rendered nodes.
type NodeKind string

const (
	NodeText NodeKind = "text"
	NodeTool NodeKind = "tool"
)

// ToolNode is a tool call with every output correlated to it.
type ToolNode struct {
	Call    model.ToolCall     `json:"call"`
	Outputs []model.ToolOutput `json:"outputs"`
}

// Node is either a text segment or a tool node.
type Node struct {
	Kind NodeKind  `json:"kind"`
	Text string    `json:"text,omitempty"`
	Tool *ToolNode `json:"tool,omitempty"`
}

// Correlate attaches outputs to calls. Outputs match by tool call id first;
// an output whose id matches no call falls back to the first call with the
// same tool name, preferring calls that have no outputs yet. Calls keep their
// input order and outputs keep their multiplicity.
func Correlate(calls []model.ToolCall, outputs []model.ToolOutput) []ToolNode {
	nodes := make([]ToolNode, len(calls))
	byID := make(map[string]int, len(calls))
	for i, c := range calls {
		nodes[i] = ToolNode{Call: c}
		if _, dup := byID[c.ID]; !dup {
			byID[c.ID] = i
		}
	}

	var unmatched []model.ToolOutput
	for _, o := range outputs {
		if i, ok := byID[o.ToolCallID]; ok {
			nodes[i].Outputs = append(nodes[i].Outputs, o)
			continue
		}
		unmatched = append(unmatched, o)
	}

	for _, o := range unmatched {
		if o.ToolName == nil || *o.ToolName == "" {
			continue
		}
		target := -1
		for i := range nodes {
			if nodes[i].Call.ToolName != *o.ToolName {
				continue
			}
			if target < 0 {
				target = i
			}
			if len(nodes[i].Outputs) == 0 {
				target = i
				break
			}
		}
		if target >= 0 {
			nodes[target].Outputs = append(nodes[target].Outputs, o)
		}
	}
	return nodes
}

func usableOffset(c model.ToolCall) bool {
	return c.TextOffset != nil && *c.TextOffset > 0
}

// Build reconstructs the rendering sequence for a message's flattened text.
//
// When any call carries a usable offset (> 0) the calls are ordered by offset,
// ties broken by call index, and the text is sliced at each offset (rune
// offsets, clamped to the text length). Calls without a usable offset sit at
// offset 0. Otherwise every call is rendered first in call index order,
// followed by the full text.
func Build(text string, calls []model.ToolCall, outputs []model.ToolOutput) []Node {
	tools := Correlate(calls, outputs)
	if len(tools) == 0 {
		if text == "" {
			return nil
		}
		return []Node{{Kind: NodeText, Text: text}}
	}

	offsetMode := false
	for _, t := range tools {
		if usableOffset(t.Call) {
			offsetMode = true
			break
		}
	}

	offsetOf := func(t ToolNode) int {
		if usableOffset(t.Call) {
			return *t.Call.TextOffset
		}
		return 0
	}

	if !offsetMode {
		sort.SliceStable(tools, func(i, j int) bool {
			return tools[i].Call.CallIndex < tools[j].Call.CallIndex
		})
		nodes := make([]Node, 0, len(tools)+1)
		for i := range tools {
			nodes = append(nodes, Node{Kind: NodeTool, Tool: &tools[i]})
		}
		if text != "" {
			nodes = append(nodes, Node{Kind: NodeText, Text: text})
		}
		return nodes
	}

	sort.SliceStable(tools, func(i, j int) bool {
		oi, oj := offsetOf(tools[i]), offsetOf(tools[j])
		if oi != oj {
			return oi < oj
		}
		return tools[i].Call.CallIndex < tools[j].Call.CallIndex
	})

	runes := []rune(text)
	nodes := make([]Node, 0, 2*len(tools)+1)
	cursor := 0
	for i := range tools {
		off := offsetOf(tools[i])
		if off > len(runes) {
			off = len(runes)
		}
		if off > cursor {
			nodes = append(nodes, Node{Kind: NodeText, Text: string(runes[cursor:off])})
			cursor = off
		}
		nodes = append(nodes, Node{Kind: NodeTool, Tool: &tools[i]})
	}
	if cursor < len(runes) {
		nodes = append(nodes, Node{Kind: NodeText, Text: string(runes[cursor:])})
	}
	return nodes
}

// ForMessage builds the rendering sequence from a message with its attached artifacts.
func ForMessage(m *model.Message) []Node {
	text := content.Parse(m.Content, m.ContentJSON).Flat()
	return Build(text, m.ToolCalls, m.ToolOutputs)
}

// ToolMessageStatus returns the status a tool-role message should surface:
// the status of its correlated output when one exists, otherwise its own.
func ToolMessageStatus(m *model.Message, outputs []model.ToolOutput) model.MessageStatus {
	if m.Role != model.RoleTool || m.ToolCallID == nil {
		return m.Status
	}
	for _, o := range outputs {
		if o.ToolCallID == *m.ToolCallID && o.Status != "" {
			return model.MessageStatus(o.Status)
		}
	}
	return m.Status
}

// RuneLen is the offset unit used for text_offset.
func RuneLen(s string) int {
	return len([]rune(s))
}
