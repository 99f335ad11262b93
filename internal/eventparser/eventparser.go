// Package eventparser turns a session's JSONL byte stream into a lazy,
// forward-only sequence of ParsedEvent values. It is grounded on the
// teacher's session.ParseJSONLFile line-by-line scan, but unlike that
// function it never buffers the session into a slice: callers pull one
// event at a time via Next, so memory use stays proportional to the
// current line, not the file.
package eventparser

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"time"

	. "github.com/memnexus/memnex/internal/logging"
)

// Kind is the JSONL record's top-level type discriminator.
type Kind string

const (
	KindUser       Kind = "user"
	KindAssistant  Kind = "assistant"
	KindToolUse    Kind = "tool_use"
	KindToolResult Kind = "tool_result"
	KindSummary    Kind = "summary"
	KindSystem     Kind = "system"
)

// BlockType is the type discriminator for a content block nested inside
// a User/Assistant event's content array.
type BlockType string

const (
	BlockText                BlockType = "text"
	BlockToolUse             BlockType = "tool_use"
	BlockThinking            BlockType = "thinking"
	BlockImage               BlockType = "image"
	BlockProgress            BlockType = "progress"
	BlockFileHistorySnapshot BlockType = "file-history-snapshot"
)

// ContentBlock is one element of a User/Assistant event's content array.
// Order is preserved by the parser; image/progress/file-history-snapshot
// blocks are kept here but carry no payload worth indexing downstream.
type ContentBlock struct {
	Type      BlockType
	Text      string          // BlockText, BlockThinking
	ToolUseID string          // BlockToolUse
	ToolName  string          // BlockToolUse
	ToolInput json.RawMessage // BlockToolUse
}

// ParsedEvent is the tagged union the Event Parser contract describes:
// one value per JSONL line that survived parsing, carrying only the
// fields relevant to its Kind.
type ParsedEvent struct {
	Line        int
	Kind        Kind
	UUID        string
	ParentUUID  string // empty means no parent
	IsSidechain bool
	Timestamp   time.Time

	// KindUser / KindAssistant
	Content []ContentBlock

	// KindToolUse (standalone line form)
	ToolUseID string
	ToolName  string
	ToolInput json.RawMessage

	// KindToolResult
	ToolResultForID   string
	ToolResultContent string
	ToolResultIsError bool

	// KindSummary
	SummaryText string

	// KindSystem
	SystemText string
}

// DiagnosticKind classifies a non-fatal parse diagnostic.
type DiagnosticKind string

const (
	DiagParseError DiagnosticKind = "parse_error"
	DiagUnknown    DiagnosticKind = "unknown"
	DiagIoError    DiagnosticKind = "io_error"
)

// Diagnostic is emitted for a line that could not produce an event, or
// for a terminal IO failure. The stream continues after every Diagnostic
// except DiagIoError, which always ends it.
type Diagnostic struct {
	Line   int
	Kind   DiagnosticKind
	Reason string
	Tag    string // populated for DiagUnknown
}

// rawEvent mirrors the on-disk JSONL shape before it is projected into a
// ParsedEvent.
type rawEvent struct {
	Type        Kind            `json:"type"`
	UUID        string          `json:"uuid"`
	ParentUUID  string          `json:"parentUuid"`
	IsSidechain bool            `json:"isSidechain"`
	Timestamp   time.Time       `json:"timestamp"`
	Message     *rawMessage     `json:"message"`
	ToolUseID   string          `json:"toolUseId"`
	ToolName    string          `json:"toolName"`
	ToolInput   json.RawMessage `json:"toolInput"`
	Content     string          `json:"content"`
	IsError     bool            `json:"isError"`
	Summary     string          `json:"summary"`
}

type rawMessage struct {
	Role    string     `json:"role"`
	Content []rawBlock `json:"content"`
}

type rawBlock struct {
	Type     BlockType       `json:"type"`
	Text     string          `json:"text"`
	Thinking string          `json:"thinking"`
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Input    json.RawMessage `json:"input"`
}

// Parser pulls one JSONL line at a time from an underlying reader.
type Parser struct {
	r         *bufio.Reader
	line      int
	startLine int
	onDiag    func(Diagnostic)
	ioErr     error
}

// Option configures a Parser.
type Option func(*Parser)

// WithStartLine resumes the stream at a given 1-based line number: every
// earlier line is discarded without being unmarshaled, satisfying the
// checkpoint-resume contract.
func WithStartLine(line int) Option {
	return func(p *Parser) { p.startLine = line }
}

// WithDiagnostics registers a callback invoked for every non-fatal parse
// diagnostic (and the single terminal IO diagnostic, if any).
func WithDiagnostics(fn func(Diagnostic)) Option {
	return func(p *Parser) { p.onDiag = fn }
}

// New constructs a Parser reading from r. The reader is wrapped in a
// bounded-size bufio.Reader; ReadString grows its internal buffer only
// for the current line, so total memory stays O(longest line seen), not
// O(file size).
func New(r io.Reader, opts ...Option) *Parser {
	p := &Parser{
		r:    bufio.NewReaderSize(r, 64*1024),
		line: 0,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Next returns the next ParsedEvent in the stream, or ok=false once the
// stream is exhausted (EOF or a terminal IO error, both non-fatal to the
// caller: the parser itself never returns an error from Next).
func (p *Parser) Next() (event *ParsedEvent, ok bool) {
	for {
		raw, lineNo, readErr := p.readLine()
		if readErr != nil {
			if readErr != io.EOF {
				p.ioErr = readErr
				p.emit(Diagnostic{Line: lineNo, Kind: DiagIoError, Reason: readErr.Error()})
			}
			return nil, false
		}
		if raw == nil {
			// Blank line; keep reading.
			continue
		}

		if lineNo < p.startLine {
			continue
		}

		ev, diag := parseLine(lineNo, raw)
		if diag != nil {
			p.emit(*diag)
			continue
		}
		return ev, true
	}
}

// emit forwards a diagnostic to the registered callback, if any, and
// logs it at debug level regardless (diagnostics are common and
// expected on real-world transcripts, not worth a warning).
func (p *Parser) emit(d Diagnostic) {
	L_debug("eventparser: diagnostic", "line", d.Line, "kind", d.Kind, "reason", d.Reason, "tag", d.Tag)
	if p.onDiag != nil {
		p.onDiag(d)
	}
}

// readLine reads one newline-terminated chunk, trims its trailing
// newline, and returns nil for blank lines (still advancing the line
// counter so diagnostics and resume stay aligned).
func (p *Parser) readLine() (raw []byte, lineNo int, err error) {
	line, err := p.r.ReadString('\n')
	if len(line) == 0 && err != nil {
		return nil, p.line + 1, err
	}
	p.line++
	lineNo = p.line
	trimmed := strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(trimmed) == "" {
		if err == io.EOF {
			return nil, lineNo, io.EOF
		}
		return nil, lineNo, nil
	}
	if err != nil && err != io.EOF {
		return nil, lineNo, err
	}
	// err == io.EOF with non-empty trailing content: yield this final
	// line, then report EOF on the next call (ReadString already
	// consumed everything).
	return []byte(trimmed), lineNo, nil
}

// parseLine decodes one JSON line into a ParsedEvent, or into a
// diagnostic when the line is malformed or its type tag is unrecognized.
func parseLine(lineNo int, data []byte) (*ParsedEvent, *Diagnostic) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &Diagnostic{Line: lineNo, Kind: DiagParseError, Reason: err.Error()}
	}

	ev := &ParsedEvent{
		Line:        lineNo,
		Kind:        raw.Type,
		UUID:        raw.UUID,
		ParentUUID:  raw.ParentUUID,
		IsSidechain: raw.IsSidechain,
		Timestamp:   raw.Timestamp,
	}

	switch raw.Type {
	case KindUser, KindAssistant:
		ev.Content = projectBlocks(raw.Message)
	case KindToolUse:
		ev.ToolUseID = raw.ToolUseID
		ev.ToolName = raw.ToolName
		ev.ToolInput = raw.ToolInput
	case KindToolResult:
		ev.ToolResultForID = raw.ToolUseID
		ev.ToolResultContent = raw.Content
		ev.ToolResultIsError = raw.IsError
	case KindSummary:
		ev.SummaryText = raw.Summary
	case KindSystem:
		ev.SystemText = raw.Content
	default:
		return nil, &Diagnostic{Line: lineNo, Kind: DiagUnknown, Reason: "unrecognized event type", Tag: string(raw.Type)}
	}

	return ev, nil
}

// projectBlocks converts the raw content array into ContentBlocks,
// preserving order. Blocks with a type this parser doesn't recognize are
// kept as BlockProgress-equivalent opaque entries (dropped downstream,
// never fail the line).
func projectBlocks(msg *rawMessage) []ContentBlock {
	if msg == nil {
		return nil
	}
	blocks := make([]ContentBlock, 0, len(msg.Content))
	for _, rb := range msg.Content {
		switch rb.Type {
		case BlockText:
			blocks = append(blocks, ContentBlock{Type: BlockText, Text: rb.Text})
		case BlockThinking:
			blocks = append(blocks, ContentBlock{Type: BlockThinking, Text: rb.Thinking})
		case BlockToolUse:
			blocks = append(blocks, ContentBlock{
				Type:      BlockToolUse,
				ToolUseID: rb.ID,
				ToolName:  rb.Name,
				ToolInput: rb.Input,
			})
		case BlockImage, BlockProgress, BlockFileHistorySnapshot:
			blocks = append(blocks, ContentBlock{Type: rb.Type})
		default:
			blocks = append(blocks, ContentBlock{Type: BlockProgress})
		}
	}
	return blocks
}

// Err returns the terminal IO error that ended the stream, if Next
// stopped for a reason other than clean EOF.
func (p *Parser) Err() error {
	return p.ioErr
}
