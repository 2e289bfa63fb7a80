package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/persona-engine/internal/ai"
	"gorm.io/gorm"
)

type recordingProvider struct {
	last  []ai.Message
	reply string
	err   error
}

func (p *recordingProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	_ = ctx
	// copy to avoid mutations
	p.last = append([]ai.Message(nil), messages...)
	if p.err != nil {
		return "", p.err
	}
	if p.reply == "" {
		return "ok", nil
	}
	return p.reply, nil
}

type stubPersonas struct {
	text  string
	calls int
}

func (s *stubPersonas) LatestPersonaText(ctx context.Context, userID uint64) (string, error) {
	s.calls++
	return s.text, nil
}

type recordingBuilds struct {
	users []uint64
	err   error
}

func (b *recordingBuilds) RequestBuild(ctx context.Context, userID uint64) error {
	b.users = append(b.users, userID)
	return b.err
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(gormsqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}, &Agent{}, &Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedUser(t *testing.T, repo *Repo, externalID string) *User {
	t.Helper()
	u, err := repo.UpsertUser(context.Background(), externalID, "tester")
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	return u
}

func TestSend_StoresTurn(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, repo, "tg-1")

	prov := &recordingProvider{reply: "hi there"}
	svc := NewService(repo, prov, nil, 20, nil)

	reply, msgID, err := svc.Send(context.Background(), u.ID, 0, PlainText("Hello"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply != "hi there" || msgID == 0 {
		t.Fatalf("unexpected reply=%q id=%d", reply, msgID)
	}

	var msgs []Message
	if err := db.Where("user_id = ?", u.ID).Order("id ASC").Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(msgs))
	}
	if msgs[0].UserText != "Hello" || msgs[0].AssistantText != "hi there" {
		t.Fatalf("unexpected turn: %+v", msgs[0])
	}
}

func TestSend_UsesContextWindow(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, repo, "tg-2")

	// seed 5 turns already in history
	for i := 0; i < 5; i++ {
		if err := repo.InsertMessage(context.Background(), &Message{
			UserID:        u.ID,
			UserText:      fmt.Sprintf("q%d", i),
			AssistantText: fmt.Sprintf("a%d", i),
		}); err != nil {
			t.Fatalf("seed msg %d: %v", i, err)
		}
	}

	prov := &recordingProvider{}
	window := 2
	svc := NewService(repo, prov, nil, window, nil)

	if _, _, err := svc.Send(context.Background(), u.ID, 0, PlainText("new")); err != nil {
		t.Fatalf("send: %v", err)
	}

	// 2 turns -> 4 messages, plus the new user message
	if len(prov.last) != 2*window+1 {
		t.Fatalf("expected %d provider messages, got %d", 2*window+1, len(prov.last))
	}
	if prov.last[0].Content != "q3" || prov.last[1].Content != "a3" {
		t.Fatalf("expected oldest kept turn first, got %+v", prov.last[:2])
	}
	last := prov.last[len(prov.last)-1]
	if last.Role != ai.RoleUser || last.Content != "new" {
		t.Fatalf("expected last provider msg to be new user msg, got role=%q content=%q", last.Role, last.Content)
	}
}

func TestSend_InjectsPersonaWhenAgentAllows(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, repo, "tg-3")

	withPersona := &Agent{Name: "companion", SystemPrompt: "be kind", EnablePersona: true}
	without := &Agent{Name: "plain", SystemPrompt: "be terse"}
	for _, a := range []*Agent{withPersona, without} {
		if err := repo.CreateAgent(context.Background(), a); err != nil {
			t.Fatalf("create agent: %v", err)
		}
	}

	prov := &recordingProvider{}
	personas := &stubPersonas{text: "Likes Go."}
	svc := NewService(repo, prov, personas, 10, nil)

	if _, _, err := svc.Send(context.Background(), u.ID, withPersona.ID, PlainText("yo")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if prov.last[0].Role != ai.RoleSystem || prov.last[0].Content != "be kind" {
		t.Fatalf("expected agent system prompt first, got %+v", prov.last[0])
	}
	want := "Context about me:\nLikes Go.\n\nCurrent message:\nyo"
	if got := prov.last[len(prov.last)-1].Content; got != want {
		t.Fatalf("unexpected user content %q", got)
	}

	if _, _, err := svc.Send(context.Background(), u.ID, without.ID, PlainText("yo")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := prov.last[len(prov.last)-1].Content; got != "yo" {
		t.Fatalf("persona must not be injected for plain agent, got %q", got)
	}
	if personas.calls != 1 {
		t.Fatalf("expected one persona lookup, got %d", personas.calls)
	}
}

func TestSend_NoPersonaPlaceholder(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, repo, "tg-4")

	prov := &recordingProvider{}
	svc := NewService(repo, prov, &stubPersonas{}, 10, nil)

	if _, _, err := svc.Send(context.Background(), u.ID, 0, PlainText("hey")); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := prov.last[len(prov.last)-1].Content
	if !strings.Contains(got, "No additional context available.") {
		t.Fatalf("expected placeholder context, got %q", got)
	}
}

func TestSend_StructuredContent(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, repo, "tg-5")

	svc := NewService(repo, &recordingProvider{}, nil, 10, nil)
	content := StructuredParts(
		ContentPart{Type: PartTypeText, Text: "first"},
		ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: "https://x/y.png"}},
		ContentPart{Type: PartTypeText, Text: "second"},
	)
	_, id, err := svc.Send(context.Background(), u.ID, 0, content)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	var m Message
	if err := db.First(&m, id).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.UserText != "first\nsecond" {
		t.Fatalf("unexpected stored text %q", m.UserText)
	}
}

func TestSend_RequestsBuild(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, repo, "tg-6")

	builds := &recordingBuilds{err: errors.New("broker down")}
	svc := NewService(repo, &recordingProvider{}, nil, 10, nil).WithBuildRequests(builds)

	if _, _, err := svc.Send(context.Background(), u.ID, 0, PlainText("hello")); err != nil {
		t.Fatalf("build request failure must not fail the turn: %v", err)
	}
	if len(builds.users) != 1 || builds.users[0] != u.ID {
		t.Fatalf("unexpected build requests %v", builds.users)
	}
}

func TestSend_Errors(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	u := seedUser(t, repo, "tg-7")

	prov := &recordingProvider{}
	svc := NewService(repo, prov, nil, 10, nil)
	ctx := context.Background()

	if _, _, err := svc.Send(ctx, u.ID, 0, PlainText("   ")); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for blank text, got %v", err)
	}
	if _, _, err := svc.Send(ctx, u.ID, 0, PlainText(strings.Repeat("x", MaxMessageLength+1))); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for long text, got %v", err)
	}
	if _, _, err := svc.Send(ctx, 999, 0, PlainText("hi")); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, _, err := svc.Send(ctx, u.ID, 42, PlainText("hi")); !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}

	prov.err = errors.New("boom")
	if _, _, err := svc.Send(ctx, u.ID, 0, PlainText("hi")); err == nil {
		t.Fatalf("expected provider error")
	}
	var count int64
	db.Model(&Message{}).Where("user_id = ?", u.ID).Count(&count)
	if count != 0 {
		t.Fatalf("failed turns must not be stored, got %d", count)
	}
}
