// Package extract reduces an ordered sequence of eventparser.ParsedEvent
// values into Messages and ToolUses, following the teacher's
// ExtractTextContent/ExtractToolCalls helpers generalized to a
// streaming reduction over the whole session rather than one message.
package extract

import (
	"strings"
	"time"

	"github.com/memnexus/memnex/internal/eventparser"
)

// Config toggles extraction behavior.
type Config struct {
	// IncludeThinking controls whether thinking blocks contribute to a
	// Message's content. Default: false.
	IncludeThinking bool
}

// DefaultConfig returns the spec's default extraction behavior.
func DefaultConfig() Config {
	return Config{IncludeThinking: false}
}

// ToolStatus is the lifecycle state of a ToolUse.
type ToolStatus string

const (
	ToolStatusPending   ToolStatus = "pending"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusError     ToolStatus = "error"
)

// Message is a reduced User/Assistant turn.
type Message struct {
	UUID        string
	Role        string // "user" or "assistant"
	Content     string
	ParentID    string
	IsSidechain bool
	Timestamp   time.Time
	Line        int
}

// ToolUse is a reduced tool invocation, optionally filled in by a later
// matching ToolResult event.
type ToolUse struct {
	ID        string
	MessageID string // UUID of the Assistant message that produced it
	Name      string
	Input     []byte
	Result    string
	IsError   bool
	Status    ToolStatus
	Line      int
}

// Extractor reduces a ParsedEvent sequence into Messages and ToolUses.
// It is stateful across calls to Feed because a ToolResult event may
// arrive any number of lines after its matching ToolUse.
type Extractor struct {
	cfg      Config
	messages []Message
	toolUses []ToolUse
	byToolID map[string]int // tool use id -> index into toolUses
	summary  string
}

// New constructs an Extractor with the given configuration.
func New(cfg Config) *Extractor {
	return &Extractor{
		cfg:      cfg,
		byToolID: make(map[string]int),
	}
}

// Feed processes one ParsedEvent, updating the Extractor's accumulated
// Messages and ToolUses. Determinism requirement: feeding the same
// sequence in the same order always yields byte-identical output.
func (e *Extractor) Feed(ev *eventparser.ParsedEvent) {
	switch ev.Kind {
	case eventparser.KindUser, eventparser.KindAssistant:
		e.feedMessage(ev)
	case eventparser.KindToolUse:
		e.feedStandaloneToolUse(ev)
	case eventparser.KindToolResult:
		e.feedToolResult(ev)
	case eventparser.KindSummary:
		e.summary = ev.SummaryText
	case eventparser.KindSystem:
		// System events carry no Message/ToolUse payload.
	}
}

func (e *Extractor) feedMessage(ev *eventparser.ParsedEvent) {
	role := "user"
	if ev.Kind == eventparser.KindAssistant {
		role = "assistant"
	}

	msg := Message{
		UUID:        ev.UUID,
		Role:        role,
		Content:     joinTextBlocks(ev.Content, e.cfg.IncludeThinking),
		ParentID:    ev.ParentUUID,
		IsSidechain: ev.IsSidechain,
		Timestamp:   ev.Timestamp,
		Line:        ev.Line,
	}
	e.messages = append(e.messages, msg)

	if role != "assistant" {
		return
	}
	for _, block := range ev.Content {
		if block.Type != eventparser.BlockToolUse {
			continue
		}
		e.addToolUse(ToolUse{
			ID:        block.ToolUseID,
			MessageID: ev.UUID,
			Name:      block.ToolName,
			Input:     []byte(block.ToolInput),
			Status:    ToolStatusPending,
			Line:      ev.Line,
		})
	}
}

func (e *Extractor) feedStandaloneToolUse(ev *eventparser.ParsedEvent) {
	e.addToolUse(ToolUse{
		ID:        ev.ToolUseID,
		MessageID: ev.ParentUUID,
		Name:      ev.ToolName,
		Input:     []byte(ev.ToolInput),
		Status:    ToolStatusPending,
		Line:      ev.Line,
	})
}

func (e *Extractor) addToolUse(tu ToolUse) {
	if idx, ok := e.byToolID[tu.ID]; ok {
		// A tool_use line re-announcing an id already seen (duplicate
		// emission) refreshes name/input but keeps any result already
		// recorded against it.
		existing := e.toolUses[idx]
		tu.Result = existing.Result
		tu.IsError = existing.IsError
		if existing.Status != ToolStatusPending {
			tu.Status = existing.Status
		}
		e.toolUses[idx] = tu
		return
	}
	e.byToolID[tu.ID] = len(e.toolUses)
	e.toolUses = append(e.toolUses, tu)
}

func (e *Extractor) feedToolResult(ev *eventparser.ParsedEvent) {
	idx, ok := e.byToolID[ev.ToolResultForID]
	if !ok {
		// Result arrived with no matching tool use recorded yet (can
		// happen if the checkpoint resume point lands between the two
		// lines). Record a placeholder so the result isn't lost.
		e.byToolID[ev.ToolResultForID] = len(e.toolUses)
		e.toolUses = append(e.toolUses, ToolUse{
			ID:      ev.ToolResultForID,
			Result:  ev.ToolResultContent,
			IsError: ev.ToolResultIsError,
			Status:  resultStatus(ev.ToolResultIsError),
			Line:    ev.Line,
		})
		return
	}
	tu := &e.toolUses[idx]
	tu.Result = ev.ToolResultContent
	tu.IsError = ev.ToolResultIsError
	tu.Status = resultStatus(ev.ToolResultIsError)
}

func resultStatus(isError bool) ToolStatus {
	if isError {
		return ToolStatusError
	}
	return ToolStatusCompleted
}

// joinTextBlocks concatenates text (and, if enabled, thinking) blocks
// with single spaces, then trims and whitespace-normalizes the result.
func joinTextBlocks(blocks []eventparser.ContentBlock, includeThinking bool) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case eventparser.BlockText:
			if t := strings.TrimSpace(b.Text); t != "" {
				parts = append(parts, t)
			}
		case eventparser.BlockThinking:
			if !includeThinking {
				continue
			}
			if t := strings.TrimSpace(b.Text); t != "" {
				parts = append(parts, t)
			}
		}
	}
	joined := strings.Join(parts, " ")
	return normalizeWhitespace(joined)
}

// normalizeWhitespace collapses runs of whitespace into single spaces
// and trims the result.
func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// Messages returns all Messages accumulated so far, in event order.
func (e *Extractor) Messages() []Message { return e.messages }

// DrainMessages returns the Messages accumulated since the last drain (or
// since New) and clears them from the Extractor's internal slice. Safe to
// call mid-stream: Messages are immutable once fed (unlike ToolUses, which
// a later ToolResult event can still mutate), so nothing reads a drained
// Message again. Callers that need bounded memory over a long stream
// (the sync pipeline's chunked flush) drain after every chunk instead of
// calling Messages() once at the end.
func (e *Extractor) DrainMessages() []Message {
	drained := e.messages
	e.messages = nil
	return drained
}

// ToolUses returns all ToolUses accumulated so far, in first-seen order.
func (e *Extractor) ToolUses() []ToolUse { return e.toolUses }

// Summary returns the most recent Summary event's text, or "" if none
// was seen.
func (e *Extractor) Summary() string { return e.summary }
