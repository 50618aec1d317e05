package db

import (
	"context"
	"sync"
	"testing"

	"github.com/hpungsan/scriptflow/internal/errors"
	"github.com/hpungsan/scriptflow/internal/project"
)

func stringPtr(s string) *string {
	return &s
}

func TestCreateAndGetByID(t *testing.T) {
	clock := newFakeClock(1_700_000_000_000)
	s := openTestStore(t, t.TempDir(), 0, clock)
	ctx := context.Background()

	history := project.History{
		project.NewMessage(project.RoleUser, project.ContextBrainstorm, 10, "Idea?"),
		project.NewMessage(project.RoleModel, project.ContextBrainstorm, 11, "Three angles."),
	}
	id, err := s.Create(ctx, CreateParams{Title: "Tech Review", Script: "", ChatHistory: history})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id <= 0 {
		t.Fatalf("Create() id = %d, want positive", id)
	}

	p, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if p.ID != id {
		t.Errorf("ID = %d, want %d", p.ID, id)
	}
	if p.Title != "Tech Review" {
		t.Errorf("Title = %q, want %q", p.Title, "Tech Review")
	}
	if p.CreatedAt != 1_700_000_000_000 || p.UpdatedAt != p.CreatedAt {
		t.Errorf("CreatedAt = %d, UpdatedAt = %d", p.CreatedAt, p.UpdatedAt)
	}
	if len(p.ChatHistory) != 2 || p.ChatHistory[1].Text() != "Three angles." {
		t.Errorf("ChatHistory = %+v", p.ChatHistory)
	}
	if p.ChatHistory[0].Context != project.ContextBrainstorm || p.ChatHistory[0].Timestamp != 10 {
		t.Errorf("ChatHistory[0] = %+v", p.ChatHistory[0])
	}
}

func TestCreate_NilHistoryReadsBackEmpty(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 0, nil)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateParams{Title: "Empty"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	p, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if p.ChatHistory == nil || len(p.ChatHistory) != 0 {
		t.Errorf("ChatHistory = %v, want empty non-nil", p.ChatHistory)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 0, nil)

	_, err := s.GetByID(context.Background(), 999)
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want NOT_FOUND", err)
	}
}

func TestGetAll_OrderedByUpdatedAt(t *testing.T) {
	clock := newFakeClock(1_000)
	s := openTestStore(t, t.TempDir(), 0, clock)
	ctx := context.Background()

	ids := make([]int64, 3)
	for i, title := range []string{"T1", "T2", "T3"} {
		clock.Set(int64(1_000 * (i + 1)))
		id, err := s.Create(ctx, CreateParams{Title: title})
		if err != nil {
			t.Fatalf("Create(%s) error = %v", title, err)
		}
		ids[i] = id
	}

	all, err := s.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	want := []string{"T3", "T2", "T1"}
	if len(all) != len(want) {
		t.Fatalf("len(GetAll()) = %d, want %d", len(all), len(want))
	}
	for i, title := range want {
		if all[i].Title != title {
			t.Errorf("GetAll()[%d].Title = %q, want %q", i, all[i].Title, title)
		}
	}

	// Touching T1 moves it to the front
	clock.Set(10_000)
	if _, err := s.Update(ctx, ids[0], UpdateFields{Script: stringPtr("new")}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	all, err = s.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if all[0].Title != "T1" {
		t.Errorf("GetAll()[0].Title = %q, want T1", all[0].Title)
	}
}

func TestUpdate(t *testing.T) {
	clock := newFakeClock(1_000)
	s := openTestStore(t, t.TempDir(), 0, clock)
	ctx := context.Background()

	history := project.History{project.NewMessage(project.RoleUser, project.ContextAssistant, 5, "hi")}
	id, err := s.Create(ctx, CreateParams{Title: "Draft", Script: "v1", ChatHistory: history})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	clock.Set(2_000)
	updated, err := s.Update(ctx, id, UpdateFields{Script: stringPtr("v2")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Script != "v2" || updated.Title != "Draft" {
		t.Errorf("Update() = %+v", updated)
	}
	if len(updated.ChatHistory) != 1 {
		t.Errorf("unspecified ChatHistory was not preserved: %v", updated.ChatHistory)
	}
	if updated.UpdatedAt != 2_000 || updated.CreatedAt != 1_000 {
		t.Errorf("CreatedAt = %d, UpdatedAt = %d", updated.CreatedAt, updated.UpdatedAt)
	}

	p, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if p.Script != "v2" || p.UpdatedAt != 2_000 {
		t.Errorf("persisted project = %+v", p)
	}
}

func TestUpdate_UpdatedAtNeverDecreases(t *testing.T) {
	clock := newFakeClock(5_000)
	s := openTestStore(t, t.TempDir(), 0, clock)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateParams{Title: "Clock"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Clock moves backwards
	clock.Set(4_000)
	p, err := s.Update(ctx, id, UpdateFields{Title: stringPtr("Clock 2")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if p.UpdatedAt != 5_000 {
		t.Errorf("UpdatedAt = %d, want 5000", p.UpdatedAt)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 0, nil)

	_, err := s.Update(context.Background(), 42, UpdateFields{Title: stringPtr("x")})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Update() error = %v, want NOT_FOUND", err)
	}
}

func TestUpdateChatHistory_ReplacesWholeList(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 0, nil)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateParams{
		Title:  "Chat",
		Script: "keep me",
		ChatHistory: project.History{
			project.NewMessage(project.RoleUser, project.ContextBrainstorm, 1, "a"),
			project.NewMessage(project.RoleModel, project.ContextBrainstorm, 2, "b"),
		},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	next := project.History{project.NewMessage(project.RoleUser, project.ContextAssistant, 3, "c")}
	if _, err := s.UpdateChatHistory(ctx, id, next); err != nil {
		t.Fatalf("UpdateChatHistory() error = %v", err)
	}

	p, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(p.ChatHistory) != 1 || p.ChatHistory[0].Text() != "c" {
		t.Errorf("ChatHistory = %+v, want only c", p.ChatHistory)
	}
	if p.Script != "keep me" || p.Title != "Chat" {
		t.Errorf("other fields changed: %+v", p)
	}
}

func TestUpdate_ConcurrentWritersDoNotLoseFields(t *testing.T) {
	s := openTestStore(t, t.TempDir(), 0, nil)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateParams{Title: "Race"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := s.Update(ctx, id, UpdateFields{Script: stringPtr("script")}); err != nil {
			t.Errorf("Update(script) error = %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		h := project.History{project.NewMessage(project.RoleUser, project.ContextAssistant, 1, "hi")}
		if _, err := s.UpdateChatHistory(ctx, id, h); err != nil {
			t.Errorf("UpdateChatHistory() error = %v", err)
		}
	}()
	wg.Wait()

	p, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if p.Script != "script" || len(p.ChatHistory) != 1 {
		t.Errorf("a concurrent write was lost: %+v", p)
	}
}

func TestLegacyStore_WritesOwnShape(t *testing.T) {
	tmpDir := t.TempDir()
	s := openTestStore(t, tmpDir, 2, nil)
	ctx := context.Background()

	id, err := s.Create(ctx, CreateParams{
		Title:       "Legacy",
		ChatHistory: project.History{project.NewMessage(project.RoleUser, project.ContextAssistant, 0, "x")},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	assertRowVersion(t, s, id, 2)

	// Reads still come back in the current shape
	p, err := s.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if len(p.ChatHistory) != 1 || p.ChatHistory[0].Context != project.ContextAssistant {
		t.Errorf("ChatHistory = %+v", p.ChatHistory)
	}
}
