// Package store is the embedded relational engine behind memnex: SQLite
// with an FTS5 shadow table for message content, grounded on the
// teacher's internal/memorygraph (CRUD repository shape,
// trigger-maintained FTS shadow) and internal/transcript (a TEXT-keyed
// content table driving content_rowid='rowid', and BM25-based ranking)
// packages, adapted to memnex's Session/Message/ToolUse/Link data model.
package store

import "time"

// Session is one recorded interaction, derived from a single session file.
type Session struct {
	ID                 string
	ProjectPathDecoded string
	ProjectPathEncoded string
	ProjectName        string
	StartTime          time.Time
	EndTime            *time.Time
	MessageCount       int
	UpdatedAt          time.Time
}

// Role is a Message's speaker.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a derived per-turn unit owned by a Session.
type Message struct {
	ID          string
	SessionID   string
	Role        Role
	Content     string
	Timestamp   time.Time
	ParentID    string // empty means no parent
	IsSidechain bool
	ToolUseIDs  []string
}

// ToolUseStatus is a ToolUse's lifecycle state.
type ToolUseStatus string

const (
	ToolUseStatusSuccess ToolUseStatus = "success"
	ToolUseStatusError   ToolUseStatus = "error"
	ToolUseStatusPending ToolUseStatus = "pending"
)

// ToolUse is a structured invocation captured inside an Assistant message.
type ToolUse struct {
	ID         string
	SessionID  string
	MessageID  string // empty if never matched to a message
	Name       string
	Input      string
	Result     string
	HasResult  bool
	Status     ToolUseStatus
	Timestamp  time.Time
	DurationMS *int
}

// LinkEndpointType is the kind of node a Link's endpoint identifies.
type LinkEndpointType string

const (
	LinkSession LinkEndpointType = "session"
	LinkMessage LinkEndpointType = "message"
	LinkTopic   LinkEndpointType = "topic"
	LinkEntity  LinkEndpointType = "entity"
)

// Link is a directed, weighted relation between two identified items.
type Link struct {
	SourceType   LinkEndpointType
	SourceID     string
	TargetType   LinkEndpointType
	TargetID     string
	Relationship string
	Weight       float64
	CreatedAt    time.Time
}

// ExtractionStatus is a session file's ingestion progress.
type ExtractionStatus string

const (
	ExtractionPending    ExtractionStatus = "pending"
	ExtractionInProgress ExtractionStatus = "in_progress"
	ExtractionComplete   ExtractionStatus = "complete"
	ExtractionFailed     ExtractionStatus = "failed"
)

// ExtractionState tracks how far a session file has been ingested, keyed
// by its path, so a resumed or repeated sync can skip unchanged files and
// fast-forward partially-ingested ones.
type ExtractionState struct {
	SessionFilePath   string
	Mtime             time.Time
	SizeBytes         int64
	LastExtractedLine int
	LastExtractedAt   time.Time
	SessionID         string // empty until a Session row exists for this file
	Status            ExtractionStatus
}
