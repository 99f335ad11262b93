// Package syncpipeline drives the discover -> resume-probe -> parse ->
// extract -> persist -> checkpoint loop that ingests session JSONL files
// into the Store. It is grounded on the teacher's
// memorygraph.IngestWithBatchingAndTotal (scan-channel consumption,
// per-item skip-if-unchanged, progress-string formatting over a known
// total), generalized from LLM-batch-ingestion semantics to deterministic
// structured-record sync: there is no LLM call here, and "batching" means
// bounding memory within one file rather than combining many files into
// one extraction call.
package syncpipeline

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/memnexus/memnex/internal/checkpoint"
	"github.com/memnexus/memnex/internal/eventparser"
	"github.com/memnexus/memnex/internal/extract"
	. "github.com/memnexus/memnex/internal/logging"
	"github.com/memnexus/memnex/internal/pathcodec"
	"github.com/memnexus/memnex/internal/paths"
	"github.com/memnexus/memnex/internal/store"
)

// ChunkSize is the soft per-session message threshold above which a
// file's accumulated Messages are flushed mid-file instead of held in
// memory for the whole file, keeping per-file peak working set
// O(chunk_size * message_size) rather than O(file_size).
const ChunkSize = 10000

// ErrorKind classifies a per-file sync failure for the structured error
// object returned to callers, by recognizable substrings in the
// underlying error message.
type ErrorKind string

const (
	ErrorFileNotFound ErrorKind = "FileNotFound"
	ErrorInvalidJSON  ErrorKind = "InvalidJSON"
	ErrorStoreError   ErrorKind = "StoreError"
	ErrorUnknown      ErrorKind = "Unknown"
)

// FileError records one file's sync failure. ExtractionState for the
// file is left untouched so the next run retries it.
type FileError struct {
	Path   string
	Kind   ErrorKind
	Reason string
}

// Phase names the pipeline's announced stage.
type Phase string

const (
	PhaseResuming    Phase = "resuming"
	PhaseDiscovering Phase = "discovering"
	PhaseExtracting  Phase = "extracting"
)

// Progress is delivered to Options.OnProgress as the pipeline advances.
type Progress struct {
	Phase     Phase
	Current   int
	Total     int
	SessionID string
}

// Options configures a sync run.
type Options struct {
	Force             bool
	ProjectFilter     string // case-insensitive substring on decoded project path
	SessionFilter     string // exact session id
	DryRun            bool
	CheckpointEnabled bool
	OnProgress        func(Progress)
	// ShouldAbort is polled between files (and between chunks within a
	// file). nil means the run can never be cooperatively aborted. Kept
	// as a plain func rather than an import of internal/lifecycle so the
	// pipeline has no dependency on the signal/prompt machinery.
	ShouldAbort func() bool
}

// Result summarizes a completed or gracefully aborted sync run.
type Result struct {
	Discovered       int
	Processed        int
	Skipped          int
	MessagesInserted int
	ToolUsesInserted int
	Errors           []FileError
	Aborted          bool
}

// discoveredFile pairs an on-disk session file with its decoded project
// identity.
type discoveredFile struct {
	Path               string
	ProjectPathEncoded string
	ProjectPathDecoded string
	ProjectName        string
	SessionID          string
}

// Sync runs the full pipeline. st is nil only when opts.DryRun is true;
// Sync never dereferences it in that mode.
func Sync(st *store.Store, opts Options) (*Result, error) {
	result := &Result{}

	files, err := discover(opts.ProjectFilter, opts.SessionFilter)
	if err != nil {
		return nil, fmt.Errorf("discover session files: %w", err)
	}
	result.Discovered = len(files)
	emit(opts.OnProgress, Progress{Phase: PhaseDiscovering, Total: len(files)})

	var cp *checkpoint.Checkpoint
	completed := make(map[string]bool)
	if opts.CheckpointEnabled && !opts.DryRun {
		loaded, err := checkpoint.Load()
		if err != nil {
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
		// A checkpoint "matches the current configuration" when it was
		// started against the same discovered file count; anything else
		// (a different filter, a changed source tree) starts fresh
		// rather than risk skipping files the prior run never saw.
		if loaded != nil && loaded.Total == len(files) && !loaded.IsComplete() {
			cp = loaded
			for _, p := range cp.Completed {
				completed[p] = true
			}
			emit(opts.OnProgress, Progress{Phase: PhaseResuming, Current: len(completed), Total: cp.Total})
			L_info("syncpipeline: resuming", "completed", len(completed), "total", cp.Total)
		} else {
			cp = checkpoint.New(len(files))
		}
	}

	for i, f := range files {
		if opts.ShouldAbort != nil && opts.ShouldAbort() {
			result.Aborted = true
			L_info("syncpipeline: abort requested, stopping before next file", "processed", result.Processed)
			break
		}

		if completed[f.Path] {
			result.Skipped++
			continue
		}

		emit(opts.OnProgress, Progress{Phase: PhaseExtracting, Current: i + 1, Total: len(files), SessionID: f.SessionID})

		msgCount, toolCount, skipped, fileAborted, err := syncFile(st, f, opts)
		if err != nil {
			fe := classifyError(f.Path, err)
			result.Errors = append(result.Errors, fe)
			L_warn("syncpipeline: file failed", "path", f.Path, "kind", fe.Kind, "reason", fe.Reason)
			continue
		}

		if fileAborted {
			// Partially scanned: ExtractionState was left in_progress,
			// so this file is neither processed nor skipped, and must
			// not be recorded as a checkpoint-completed path.
			result.Aborted = true
			break
		}

		if skipped {
			result.Skipped++
		} else {
			result.Processed++
			result.MessagesInserted += msgCount
			result.ToolUsesInserted += toolCount
		}

		if cp != nil {
			cp.MarkCompleted(f.Path)
			if err := checkpoint.Save(cp); err != nil {
				L_warn("syncpipeline: checkpoint save failed", "error", err)
			}
		}
	}

	if !opts.DryRun && st != nil {
		if err := st.CheckpointWAL(); err != nil {
			L_warn("syncpipeline: wal checkpoint failed", "error", err)
		}
	}
	if cp != nil && !result.Aborted && cp.IsComplete() {
		if err := checkpoint.Clear(); err != nil {
			L_warn("syncpipeline: checkpoint clear failed", "error", err)
		}
	}

	return result, nil
}

// discover enumerates session files under the source directory, one
// subdirectory per pathcodec-encoded project path, applying filters
// early. Results are sorted by path for a stable processing order.
func discover(projectFilter, sessionFilter string) ([]discoveredFile, error) {
	root, err := paths.SourceDir()
	if err != nil {
		return nil, err
	}

	projectEntries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read source dir %s: %w", root, err)
	}

	var files []discoveredFile
	for _, pe := range projectEntries {
		if !pe.IsDir() {
			continue
		}
		encoded := pe.Name()
		decoded := pathcodec.Decode(encoded)
		if projectFilter != "" && !strings.Contains(strings.ToLower(decoded), strings.ToLower(projectFilter)) {
			continue
		}
		name := pathcodec.ProjectName(decoded)

		projDir := filepath.Join(root, encoded)
		sessionEntries, err := os.ReadDir(projDir)
		if err != nil {
			L_warn("syncpipeline: failed to read project dir", "path", projDir, "error", err)
			continue
		}
		for _, se := range sessionEntries {
			if se.IsDir() || !strings.HasSuffix(se.Name(), ".jsonl") {
				continue
			}
			sessionID := strings.TrimSuffix(se.Name(), ".jsonl")
			if sessionFilter != "" && sessionID != sessionFilter {
				continue
			}
			files = append(files, discoveredFile{
				Path:               filepath.Join(projDir, se.Name()),
				ProjectPathEncoded: encoded,
				ProjectPathDecoded: decoded,
				ProjectName:        name,
				SessionID:          sessionID,
			})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// fileState accumulates the cross-chunk bookkeeping a single file's sync
// needs: the session's time bounds and running message count, the
// tool-use timestamps learned while scanning (ToolUse itself carries no
// timestamp), and the line number to resume from on a future run.
type fileState struct {
	haveFirst      bool
	firstTimestamp time.Time
	lastTimestamp  time.Time
	messageCount   int
	toolTimestamps map[string]time.Time
}

// syncFile parses, extracts, and persists one session file, flushing
// Messages in chunks so peak memory stays bounded by ChunkSize rather
// than the file's total message count. Returns the number of Messages
// and ToolUses written, or skipped=true if the file's stored
// ExtractionState already matches its current (mtime, size) and force
// was not requested.
func syncFile(st *store.Store, f discoveredFile, opts Options) (messages, toolUses int, skipped, aborted bool, err error) {
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0, 0, false, false, fmt.Errorf("stat %s: %w", f.Path, err)
	}

	var existing *store.ExtractionState
	if st != nil {
		existing, err = st.GetExtractionState(f.Path)
		if err != nil {
			return 0, 0, false, false, fmt.Errorf("load extraction state for %s: %w", f.Path, err)
		}
	}

	if !opts.Force && existing != nil && existing.Status == store.ExtractionComplete &&
		existing.Mtime.Equal(info.ModTime()) && existing.SizeBytes == info.Size() {
		return 0, 0, true, false, nil
	}

	startLine := 0
	if existing != nil && existing.Status == store.ExtractionInProgress {
		startLine = existing.LastExtractedLine + 1
	}

	reader, err := os.Open(f.Path)
	if err != nil {
		return 0, 0, false, false, fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer reader.Close()

	parser := eventparser.New(reader, eventparser.WithStartLine(startLine))
	extractor := extract.New(extract.DefaultConfig())

	state := &fileState{toolTimestamps: make(map[string]time.Time)}
	lastLine := startLine
	stoppedEarly := false

	for {
		ev, ok := parser.Next()
		if !ok {
			break
		}
		trackToolTimestamp(state, ev)
		extractor.Feed(ev)
		lastLine = ev.Line

		if opts.DryRun {
			continue
		}
		if len(extractor.Messages()) >= ChunkSize {
			if opts.ShouldAbort != nil && opts.ShouldAbort() {
				stoppedEarly = true
				break
			}
			if err := flush(st, f, info, extractor, state, lastLine, store.ExtractionInProgress); err != nil {
				return 0, 0, false, false, err
			}
		}
	}
	if err := parser.Err(); err != nil {
		return 0, 0, false, false, fmt.Errorf("read %s: %w", f.Path, err)
	}

	if opts.DryRun {
		return len(extractor.Messages()), len(extractor.ToolUses()), false, false, nil
	}

	messages = state.messageCount + len(extractor.Messages())
	toolUses = len(extractor.ToolUses())

	if stoppedEarly {
		// Flush what was accumulated so it isn't lost, but leave the
		// file's ExtractionState at in_progress: it was not fully
		// scanned, so the next run must resume it, not skip it.
		if err := flush(st, f, info, extractor, state, lastLine, store.ExtractionInProgress); err != nil {
			return 0, 0, false, false, err
		}
		return messages, toolUses, false, true, nil
	}

	if err := flush(st, f, info, extractor, state, lastLine, store.ExtractionComplete); err != nil {
		return 0, 0, false, false, err
	}

	return messages, toolUses, false, false, nil
}

// trackToolTimestamp records the first-seen timestamp for every ToolUse
// id this event mentions, so a later conversion to store.ToolUse (which
// the Content Extractor's ToolUse type carries no timestamp for) can look
// it up. A ToolResult arriving for an id already seen does not overwrite
// the original tool_use's timestamp.
func trackToolTimestamp(state *fileState, ev *eventparser.ParsedEvent) {
	switch ev.Kind {
	case eventparser.KindToolUse:
		if _, seen := state.toolTimestamps[ev.ToolUseID]; !seen {
			state.toolTimestamps[ev.ToolUseID] = ev.Timestamp
		}
	case eventparser.KindToolResult:
		if _, seen := state.toolTimestamps[ev.ToolResultForID]; !seen {
			state.toolTimestamps[ev.ToolResultForID] = ev.Timestamp
		}
	case eventparser.KindAssistant:
		for _, b := range ev.Content {
			if b.Type != eventparser.BlockToolUse {
				continue
			}
			if _, seen := state.toolTimestamps[b.ToolUseID]; !seen {
				state.toolTimestamps[b.ToolUseID] = ev.Timestamp
			}
		}
	}
}

// flush drains the extractor's accumulated Messages and writes them,
// the session row, the full current ToolUses slice, and the
// ExtractionState, all inside one transaction. ToolUses are re-upserted
// in full at every flush rather than chunk-advanced like Messages: a
// ToolResult event can mutate an already-seen ToolUse arbitrarily later
// in the file, and InsertToolUses' upsert-on-id makes re-writing an
// unchanged row a harmless no-op.
func flush(st *store.Store, f discoveredFile, info os.FileInfo, extractor *extract.Extractor, state *fileState, lastLine int, status store.ExtractionStatus) error {
	drained := extractor.DrainMessages()
	toolUseIDs := toolUseIDsByMessage(extractor.ToolUses())

	for _, m := range drained {
		if !state.haveFirst {
			state.firstTimestamp = m.Timestamp
			state.haveFirst = true
		}
		state.lastTimestamp = m.Timestamp
	}
	state.messageCount += len(drained)

	sess := &store.Session{
		ID:                 f.SessionID,
		ProjectPathDecoded: f.ProjectPathDecoded,
		ProjectPathEncoded: f.ProjectPathEncoded,
		ProjectName:        f.ProjectName,
		MessageCount:       state.messageCount,
		UpdatedAt:          time.Now().UTC(),
	}
	if state.haveFirst {
		sess.StartTime = state.firstTimestamp
		end := state.lastTimestamp
		sess.EndTime = &end
	} else {
		sess.StartTime = time.Now().UTC()
	}

	storeMessages := make([]*store.Message, len(drained))
	for i, m := range drained {
		storeMessages[i] = &store.Message{
			ID:          m.UUID,
			SessionID:   f.SessionID,
			Role:        store.Role(m.Role),
			Content:     m.Content,
			Timestamp:   m.Timestamp,
			ParentID:    m.ParentID,
			IsSidechain: m.IsSidechain,
			ToolUseIDs:  toolUseIDs[m.UUID],
		}
	}

	storeToolUses := toStoreToolUses(extractor.ToolUses(), f.SessionID, state.toolTimestamps)

	return st.WithTx(func(tx *sql.Tx) error {
		if err := store.UpsertSession(tx, sess); err != nil {
			return err
		}
		if len(storeMessages) > 0 {
			if err := store.InsertMessages(tx, storeMessages); err != nil {
				return err
			}
		}
		if len(storeToolUses) > 0 {
			if err := store.InsertToolUses(tx, storeToolUses); err != nil {
				return err
			}
		}
		return store.UpsertExtractionState(tx, &store.ExtractionState{
			SessionFilePath:   f.Path,
			Mtime:             info.ModTime(),
			SizeBytes:         info.Size(),
			LastExtractedLine: lastLine,
			LastExtractedAt:   time.Now().UTC(),
			SessionID:         f.SessionID,
			Status:            status,
		})
	})
}

func toolUseIDsByMessage(uses []extract.ToolUse) map[string][]string {
	out := make(map[string][]string)
	for _, u := range uses {
		if u.MessageID == "" {
			continue
		}
		out[u.MessageID] = append(out[u.MessageID], u.ID)
	}
	return out
}

func toStoreToolUses(uses []extract.ToolUse, sessionID string, timestamps map[string]time.Time) []*store.ToolUse {
	out := make([]*store.ToolUse, len(uses))
	for i, u := range uses {
		ts, ok := timestamps[u.ID]
		if !ok {
			ts = time.Now().UTC()
		}
		out[i] = &store.ToolUse{
			ID:        u.ID,
			SessionID: sessionID,
			MessageID: u.MessageID,
			Name:      u.Name,
			Input:     string(u.Input),
			Result:    u.Result,
			HasResult: u.Status != extract.ToolStatusPending,
			Status:    toStoreToolUseStatus(u.Status),
			Timestamp: ts,
		}
	}
	return out
}

func toStoreToolUseStatus(s extract.ToolStatus) store.ToolUseStatus {
	switch s {
	case extract.ToolStatusCompleted:
		return store.ToolUseStatusSuccess
	case extract.ToolStatusError:
		return store.ToolUseStatusError
	default:
		return store.ToolUseStatusPending
	}
}

// classifyError maps an underlying error to the §4.G error taxonomy by
// recognizable substring, falling back to Unknown.
func classifyError(path string, err error) FileError {
	msg := err.Error()
	lower := strings.ToLower(msg)

	kind := ErrorUnknown
	switch {
	case strings.Contains(lower, "no such file or directory"), strings.Contains(lower, "not found"), strings.Contains(lower, "does not exist"):
		kind = ErrorFileNotFound
	case strings.Contains(lower, "json"), strings.Contains(lower, "unexpected end of"), strings.Contains(lower, "invalid character"):
		kind = ErrorInvalidJSON
	case strings.Contains(lower, "database"), strings.Contains(lower, "sql"), strings.Contains(lower, "transaction"), strings.Contains(lower, "constraint"), strings.Contains(lower, "sqlite"):
		kind = ErrorStoreError
	}

	return FileError{Path: path, Kind: kind, Reason: msg}
}

func emit(cb func(Progress), p Progress) {
	if cb != nil {
		cb(p)
	}
}
