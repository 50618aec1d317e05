package db

import (
	"encoding/json"
	"fmt"

	"github.com/hpungsan/scriptflow/internal/project"
)

// Record is one stored project in the shape of a specific schema version.
// The set of implementations is closed: V1Record, V2Record, V3Record.
type Record interface {
	SchemaVersion() int
	Base() RecordBase
	isRecord()
}

// RecordBase holds the fields every schema version shares.
type RecordBase struct {
	ID        int64
	CreatedAt int64
	UpdatedAt int64
	Title     string
	Script    string
}

// V1Record is a project written before chat was persisted.
type V1Record struct {
	RecordBase
}

// V2Record keeps brainstorm and assistant chats in separate buckets.
type V2Record struct {
	RecordBase
	ChatHistories LegacyHistories
}

// LegacyHistories is the v2 two-bucket chat layout.
type LegacyHistories struct {
	Brainstorm []LegacyMessage `json:"brainstorm"`
	Assistant  []LegacyMessage `json:"assistant"`
}

// LegacyMessage is a v2 chat turn. It carries neither context nor timestamp.
type LegacyMessage struct {
	Role  project.Role   `json:"role"`
	Parts []project.Part `json:"parts"`
}

// V3Record is the current shape: one chronological, context-tagged log.
type V3Record struct {
	RecordBase
	ChatHistory project.History
}

func (V1Record) SchemaVersion() int { return 1 }
func (V2Record) SchemaVersion() int { return 2 }
func (V3Record) SchemaVersion() int { return 3 }

func (r V1Record) Base() RecordBase { return r.RecordBase }
func (r V2Record) Base() RecordBase { return r.RecordBase }
func (r V3Record) Base() RecordBase { return r.RecordBase }

func (V1Record) isRecord() {}
func (V2Record) isRecord() {}
func (V3Record) isRecord() {}

// Project converts a current-shape record to the domain type.
func (r V3Record) Project() *project.Project {
	history := r.ChatHistory.Clone()
	if history == nil {
		history = project.History{}
	}
	return &project.Project{
		ID:          r.ID,
		Title:       r.Title,
		Script:      r.Script,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		ChatHistory: history,
	}
}

// Stored documents. Only title/script/chat live in the JSON doc; id and
// timestamps are columns.
type v1Doc struct {
	Title  string `json:"title"`
	Script string `json:"script"`
}

type v2Doc struct {
	Title         string           `json:"title"`
	Script        string           `json:"script"`
	ChatHistories *LegacyHistories `json:"chatHistories,omitempty"`
}

type v3Doc struct {
	Title       string          `json:"title"`
	Script      string          `json:"script"`
	ChatHistory project.History `json:"chatHistory"`
}

// projectRow is a raw row of the projects table.
type projectRow struct {
	ID            int64  `db:"id"`
	SchemaVersion int    `db:"schema_version"`
	CreatedAt     int64  `db:"created_at"`
	UpdatedAt     int64  `db:"updated_at"`
	Doc           string `db:"doc"`
}

// decodeRecord turns a stored row into the record type its tag names.
func decodeRecord(row projectRow) (Record, error) {
	base := RecordBase{ID: row.ID, CreatedAt: row.CreatedAt, UpdatedAt: row.UpdatedAt}

	switch row.SchemaVersion {
	case 1:
		var d v1Doc
		if err := json.Unmarshal([]byte(row.Doc), &d); err != nil {
			return nil, fmt.Errorf("decode v1 doc: %w", err)
		}
		base.Title, base.Script = d.Title, d.Script
		return V1Record{RecordBase: base}, nil

	case 2:
		var d v2Doc
		if err := json.Unmarshal([]byte(row.Doc), &d); err != nil {
			return nil, fmt.Errorf("decode v2 doc: %w", err)
		}
		base.Title, base.Script = d.Title, d.Script
		rec := V2Record{RecordBase: base}
		if d.ChatHistories != nil {
			rec.ChatHistories = *d.ChatHistories
		}
		return rec, nil

	case 3:
		var d v3Doc
		if err := json.Unmarshal([]byte(row.Doc), &d); err != nil {
			return nil, fmt.Errorf("decode v3 doc: %w", err)
		}
		base.Title, base.Script = d.Title, d.Script
		return V3Record{RecordBase: base, ChatHistory: d.ChatHistory}, nil

	default:
		return nil, fmt.Errorf("unknown schema version %d", row.SchemaVersion)
	}
}

// encodeRecord serializes the JSON doc for rec.
func encodeRecord(rec Record) (string, error) {
	var doc any
	switch r := rec.(type) {
	case V1Record:
		doc = v1Doc{Title: r.Title, Script: r.Script}
	case V2Record:
		histories := r.ChatHistories
		if histories.Brainstorm == nil {
			histories.Brainstorm = []LegacyMessage{}
		}
		if histories.Assistant == nil {
			histories.Assistant = []LegacyMessage{}
		}
		doc = v2Doc{Title: r.Title, Script: r.Script, ChatHistories: &histories}
	case V3Record:
		history := r.ChatHistory
		if history == nil {
			history = project.History{}
		}
		doc = v3Doc{Title: r.Title, Script: r.Script, ChatHistory: history}
	default:
		return "", fmt.Errorf("unknown record type %T", rec)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// recordForVersion shapes p as a record of the given schema version, so a
// store opened at an older version keeps writing records it can read back.
func recordForVersion(p *project.Project, version int) (Record, error) {
	base := RecordBase{
		ID:        p.ID,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		Title:     p.Title,
		Script:    p.Script,
	}

	switch version {
	case 1:
		return V1Record{RecordBase: base}, nil
	case 2:
		var histories LegacyHistories
		for _, m := range p.ChatHistory {
			legacy := LegacyMessage{Role: m.Role, Parts: append([]project.Part(nil), m.Parts...)}
			if m.Context == project.ContextAssistant {
				histories.Assistant = append(histories.Assistant, legacy)
			} else {
				histories.Brainstorm = append(histories.Brainstorm, legacy)
			}
		}
		return V2Record{RecordBase: base, ChatHistories: histories}, nil
	case 3:
		return V3Record{RecordBase: base, ChatHistory: p.ChatHistory.Clone()}, nil
	default:
		return nil, fmt.Errorf("unknown schema version %d", version)
	}
}
