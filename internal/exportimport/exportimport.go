// Package exportimport implements the `memnex export`/`memnex import`
// round-trip (§6, §8 invariant 5). Grounded on internal/config/file.go's
// buffered marshal-then-atomic-write pattern, extended from a single
// config object to the multi-table document the store holds.
//
// memnex's schema folds topics and entities into the polymorphic links
// table rather than dedicated entity/session_entity/entity_link tables,
// so the export document's sessionEntities/entityLinks arrays are not
// separate sections here: every link row (including session->topic and
// session->entity edges) travels in the single links array.
package exportimport

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/memnexus/memnex/internal/config"
	"github.com/memnexus/memnex/internal/memerr"
	"github.com/memnexus/memnex/internal/store"
	"github.com/tidwall/gjson"
)

// Version is the export document format version written by Export and
// accepted by Import.
const Version = "1.0"

// Document is the full on-disk export format, §6.
type Document struct {
	Version          string                   `json:"version"`
	ExportedAt       time.Time                `json:"exportedAt"`
	Sessions         []*store.Session         `json:"sessions"`
	Messages         []*store.Message         `json:"messages"`
	ToolUses         []*store.ToolUse         `json:"toolUses"`
	Links            []*store.Link            `json:"links"`
	ExtractionStates []*store.ExtractionState `json:"extractionStates"`
}

// Summary reports the row counts written or read, for the CLI's
// human/JSON output.
type Summary struct {
	Sessions         int `json:"sessions"`
	Messages         int `json:"messages"`
	ToolUses         int `json:"toolUses"`
	Links            int `json:"links"`
	ExtractionStates int `json:"extractionStates"`
}

func summarize(doc *Document) Summary {
	return Summary{
		Sessions:         len(doc.Sessions),
		Messages:         len(doc.Messages),
		ToolUses:         len(doc.ToolUses),
		Links:            len(doc.Links),
		ExtractionStates: len(doc.ExtractionStates),
	}
}

// Export buffers every entity table into one Document and writes it as
// indented JSON to path. The whole database is held in memory at once
// (matching the source tool's own export behavior, sufficient at the
// scale §8's round-trip property is tested at).
func Export(st *store.Store, path string) (Summary, error) {
	doc := Document{Version: Version, ExportedAt: time.Now().UTC()}

	sessions, err := st.ListSessions(store.ListSessionsOptions{})
	if err != nil {
		return Summary{}, fmt.Errorf("list sessions: %w", err)
	}
	if sessions == nil {
		// Import requires a "sessions" array; nil would marshal as null.
		sessions = []*store.Session{}
	}
	doc.Sessions = sessions

	messages, err := st.ListAllMessages()
	if err != nil {
		return Summary{}, fmt.Errorf("list messages: %w", err)
	}
	doc.Messages = messages

	toolUses, err := st.ListAllToolUses()
	if err != nil {
		return Summary{}, fmt.Errorf("list tool uses: %w", err)
	}
	doc.ToolUses = toolUses

	links, err := st.AllLinks()
	if err != nil {
		return Summary{}, fmt.Errorf("list links: %w", err)
	}
	doc.Links = links

	states, err := st.ListExtractionStates()
	if err != nil {
		return Summary{}, fmt.Errorf("list extraction states: %w", err)
	}
	doc.ExtractionStates = states

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return Summary{}, fmt.Errorf("marshal export document: %w", err)
	}
	if err := config.AtomicWrite(path, data, 0o600); err != nil {
		return Summary{}, memerr.Wrap(memerr.CodeDiskFull, "write export file", err).WithContext(map[string]any{"path": path})
	}

	return summarize(&doc), nil
}

// Options controls Import's behavior.
type Options struct {
	// Clear wipes every existing row before restoring the document. Without
	// it, import upserts on top of whatever the store already holds.
	Clear bool
}

// Import reads a Document from path and restores it into st inside a
// single transaction: all-or-nothing, so a malformed document never
// leaves the store half-restored.
func Import(st *store.Store, path string, opts Options) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, memerr.Wrap(memerr.CodeSourceInaccessible, "read export file", err).WithContext(map[string]any{"path": path})
	}

	if err := validateDocument(data); err != nil {
		return Summary{}, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Summary{}, memerr.Wrap(memerr.CodeInvalidJSON, "parse export document", err).WithContext(map[string]any{"path": path})
	}

	err = st.WithTx(func(tx *sql.Tx) error {
		if opts.Clear {
			if err := store.ClearAll(tx); err != nil {
				return err
			}
		}
		for _, s := range doc.Sessions {
			if err := store.UpsertSession(tx, s); err != nil {
				return err
			}
		}
		if len(doc.Messages) > 0 {
			if err := store.InsertMessages(tx, doc.Messages); err != nil {
				return err
			}
		}
		if len(doc.ToolUses) > 0 {
			if err := store.InsertToolUses(tx, doc.ToolUses); err != nil {
				return err
			}
		}
		if len(doc.Links) > 0 {
			if err := store.UpsertLinks(tx, doc.Links); err != nil {
				return err
			}
		}
		for _, es := range doc.ExtractionStates {
			if err := store.UpsertExtractionState(tx, es); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("restore export document: %w", err)
	}

	return summarize(&doc), nil
}

// validateDocument sanity-checks the document's shape with gjson before a
// full unmarshal, so a non-export JSON file is rejected with
// UNKNOWN_FORMAT rather than a confusing field-mismatch error.
func validateDocument(data []byte) error {
	if !gjson.ValidBytes(data) {
		return memerr.New(memerr.CodeInvalidJSON, "export file is not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.Get("version").Exists() || !root.Get("sessions").IsArray() {
		return memerr.New(memerr.CodeUnknownFormat, "file does not look like a memnex export document")
	}
	return nil
}
