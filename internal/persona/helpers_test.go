package persona

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/suPer8Hu/persona-engine/internal/ai"
	"github.com/suPer8Hu/persona-engine/internal/chat"
	"github.com/suPer8Hu/persona-engine/internal/logging"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls [][]ai.Message
	fn    func(messages []ai.Message) (string, error)
}

func (p *fakeProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, append([]ai.Message(nil), messages...))
	fn, n := p.fn, len(p.calls)
	p.mu.Unlock()
	if fn == nil {
		return fmt.Sprintf("persona after %d calls\nTags: go, testing", n), nil
	}
	return fn(messages)
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakeProvider) lastCall() []ai.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.calls) == 0 {
		return nil
	}
	return p.calls[len(p.calls)-1]
}

type recordingCache struct {
	mu          sync.Mutex
	text        map[uint64]string
	invalidated []uint64
	getErr      error
}

func newRecordingCache() *recordingCache {
	return &recordingCache{text: map[uint64]string{}}
}

func (c *recordingCache) GetPersonaText(ctx context.Context, userID uint64) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	t, ok := c.text[userID]
	return t, ok, nil
}

func (c *recordingCache) SetPersonaText(ctx context.Context, userID uint64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text[userID] = text
	return nil
}

func (c *recordingCache) InvalidatePersona(ctx context.Context, userID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.text, userID)
	c.invalidated = append(c.invalidated, userID)
	return nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(gormsqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&chat.User{}, &chat.Agent{}, &chat.Message{}, &Persona{}, &BuildJob{}))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

type fixture struct {
	db       *gorm.DB
	repo     *chat.Repo
	store    *Store
	provider *fakeProvider
	engine   *Engine
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	db := openTestDB(t)
	f := &fixture{
		db:       db,
		repo:     chat.NewRepo(db),
		store:    NewStore(db),
		provider: &fakeProvider{},
	}
	f.engine = NewEngine(f.repo, f.store, f.provider, opts, logging.Discard())
	return f
}

func (f *fixture) user(t *testing.T, externalID string) uint64 {
	t.Helper()
	u, err := f.repo.UpsertUser(context.Background(), externalID, externalID)
	require.NoError(t, err)
	return u.ID
}

// addMessages inserts n turns for the user and returns their ids in order.
func (f *fixture) addMessages(t *testing.T, userID uint64, n int, prefix string) []uint64 {
	t.Helper()
	ids := make([]uint64, 0, n)
	for i := 1; i <= n; i++ {
		m := &chat.Message{
			UserID:        userID,
			UserText:      fmt.Sprintf("%s question %d", prefix, i),
			AssistantText: fmt.Sprintf("%s answer %d", prefix, i),
		}
		require.NoError(t, f.repo.InsertMessage(context.Background(), m))
		ids = append(ids, m.ID)
	}
	return ids
}

func (f *fixture) versions(t *testing.T, userID uint64) []Persona {
	t.Helper()
	h, err := f.store.History(context.Background(), userID, 100)
	require.NoError(t, err)
	return h
}

// syncMemStore keeps personas per user in memory for tests that run many users concurrently.
type syncMemStore struct {
	mu     sync.Mutex
	byUser map[uint64]*Persona
}

func (s *syncMemStore) Latest(ctx context.Context, userID uint64) (*Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byUser[userID], nil
}

func (s *syncMemStore) Append(ctx context.Context, p *Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byUser == nil {
		s.byUser = map[uint64]*Persona{}
	}
	s.byUser[p.UserID] = p
	return nil
}
