package db

import (
	"testing"

	"github.com/hpungsan/scriptflow/internal/project"
)

func TestUpgrade_V2ToV3Ordering(t *testing.T) {
	rec := V2Record{
		RecordBase: RecordBase{ID: 1, CreatedAt: 100},
		ChatHistories: LegacyHistories{
			Brainstorm: []LegacyMessage{
				{Role: project.RoleUser, Parts: []project.Part{{Text: "A"}}},
				{Role: project.RoleModel, Parts: []project.Part{{Text: "B"}}},
			},
			Assistant: []LegacyMessage{
				{Role: project.RoleUser, Parts: []project.Part{{Text: "C"}}},
			},
		},
	}

	out, err := Upgrade(rec, CurrentSchemaVersion)
	if err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}
	v3, ok := out.(V3Record)
	if !ok {
		t.Fatalf("Upgrade() returned %T, want V3Record", out)
	}

	h := v3.ChatHistory
	if len(h) != 3 {
		t.Fatalf("len(history) = %d, want 3", len(h))
	}
	if h[0].Text() != "A" || h[1].Text() != "B" || h[2].Text() != "C" {
		t.Errorf("order = %q %q %q", h[0].Text(), h[1].Text(), h[2].Text())
	}
	if h[2].Context != project.ContextAssistant || h[0].Context != project.ContextBrainstorm {
		t.Errorf("contexts = %s %s %s", h[0].Context, h[1].Context, h[2].Context)
	}
	if h[0].Timestamp != 100 || h[2].Timestamp != 100+2*SyntheticTimestampStep {
		t.Errorf("timestamps = %d %d %d", h[0].Timestamp, h[1].Timestamp, h[2].Timestamp)
	}
}

func TestUpgrade_EmptyBuckets(t *testing.T) {
	out, err := Upgrade(V2Record{}, CurrentSchemaVersion)
	if err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}
	if h := out.(V3Record).ChatHistory; len(h) != 0 {
		t.Errorf("history = %v, want empty", h)
	}
}

func TestUpgrade_AlreadyCurrent(t *testing.T) {
	in := V3Record{RecordBase: RecordBase{ID: 7, Title: "x"}}
	out, err := Upgrade(in, CurrentSchemaVersion)
	if err != nil {
		t.Fatalf("Upgrade() error = %v", err)
	}
	if out.Base().ID != 7 || out.SchemaVersion() != 3 {
		t.Errorf("Upgrade() = %+v", out)
	}
}

func TestUpgrade_UnknownRoleFails(t *testing.T) {
	rec := V2Record{ChatHistories: LegacyHistories{
		Assistant: []LegacyMessage{{Role: "system"}},
	}}
	if _, err := Upgrade(rec, CurrentSchemaVersion); err == nil {
		t.Error("Upgrade() with unknown role should fail")
	}
}

func TestDecodeRecord_UnknownVersion(t *testing.T) {
	if _, err := decodeRecord(projectRow{ID: 1, SchemaVersion: 9, Doc: "{}"}); err == nil {
		t.Error("decodeRecord() with unknown version should fail")
	}
	if _, err := decodeRecord(projectRow{ID: 1, SchemaVersion: 3, Doc: "not json"}); err == nil {
		t.Error("decodeRecord() with bad JSON should fail")
	}
}

func TestRecordForVersion_SplitsByContext(t *testing.T) {
	p := &project.Project{
		ChatHistory: project.History{
			project.NewMessage(project.RoleUser, project.ContextAssistant, 1, "edit"),
			project.NewMessage(project.RoleUser, project.ContextBrainstorm, 2, "idea"),
		},
	}
	rec, err := recordForVersion(p, 2)
	if err != nil {
		t.Fatalf("recordForVersion() error = %v", err)
	}
	v2 := rec.(V2Record)
	if len(v2.ChatHistories.Assistant) != 1 || len(v2.ChatHistories.Brainstorm) != 1 {
		t.Errorf("buckets = %+v", v2.ChatHistories)
	}
}
