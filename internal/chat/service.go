package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/suPer8Hu/persona-engine/internal/ai"
	"gorm.io/gorm"
)

const (
	MaxMessageLength = 2000
	MinMessageLength = 1
)

var (
	ErrInvalidMessage = errors.New("chat: invalid message")
	ErrAgentNotFound  = errors.New("chat: agent not found")
	ErrUserNotFound   = errors.New("chat: user not found")
)

// PersonaReader returns the latest persona text for a user, "" when none exists.
type PersonaReader interface {
	LatestPersonaText(ctx context.Context, userID uint64) (string, error)
}

// BuildRequester asks for an out-of-band persona build after new turns arrive.
type BuildRequester interface {
	RequestBuild(ctx context.Context, userID uint64) error
}

type Service struct {
	repo              *Repo
	provider          ai.Provider
	personas          PersonaReader
	builds            BuildRequester
	contextWindowSize int
	log               *slog.Logger
}

func NewService(repo *Repo, provider ai.Provider, personas PersonaReader, contextWindowSize int, log *slog.Logger) *Service {
	if contextWindowSize <= 0 || contextWindowSize > 100 {
		contextWindowSize = 50
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:              repo,
		provider:          provider,
		personas:          personas,
		contextWindowSize: contextWindowSize,
		log:               log,
	}
}

// WithBuildRequests makes every stored turn trigger an on-demand persona build request.
func (s *Service) WithBuildRequests(b BuildRequester) *Service {
	s.builds = b
	return s
}

func validateText(text string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	if n < MinMessageLength {
		return fmt.Errorf("%w: message is empty", ErrInvalidMessage)
	}
	if n > MaxMessageLength {
		return fmt.Errorf("%w: message exceeds %d characters", ErrInvalidMessage, MaxMessageLength)
	}
	return nil
}

// Send records one turn: it asks the provider for a reply using recent history
// (and the user's persona when the agent allows it), then stores user text and reply together.
func (s *Service) Send(ctx context.Context, userID, agentID uint64, content Content) (reply string, messageID uint64, err error) {
	text := content.Text()
	if err := validateText(text); err != nil {
		return "", 0, err
	}

	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", 0, ErrUserNotFound
		}
		return "", 0, err
	}

	var agent *Agent
	if agentID > 0 {
		agent, err = s.repo.GetAgent(ctx, agentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", 0, ErrAgentNotFound
			}
			return "", 0, err
		}
	}

	providerMsgs, err := s.buildContext(ctx, userID, agent, text)
	if err != nil {
		return "", 0, err
	}

	reply, err = s.provider.Chat(ctx, providerMsgs)
	if err != nil {
		return "", 0, err
	}

	msg := &Message{
		UserID:        userID,
		AgentID:       agentID,
		UserText:      text,
		AssistantText: reply,
	}
	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		return "", 0, err
	}

	if s.builds != nil {
		if err := s.builds.RequestBuild(ctx, userID); err != nil {
			// the periodic sweep still picks this user up
			s.log.Warn("persona build request failed", "user_id", userID, "err", err)
		}
	}

	return reply, msg.ID, nil
}

func (s *Service) buildContext(ctx context.Context, userID uint64, agent *Agent, text string) ([]ai.Message, error) {
	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, userID, s.contextWindowSize)
	if err != nil {
		return nil, err
	}

	out := make([]ai.Message, 0, 2*len(recentDesc)+2)
	if agent != nil && strings.TrimSpace(agent.SystemPrompt) != "" {
		out = append(out, ai.Message{Role: ai.RoleSystem, Content: agent.SystemPrompt})
	}

	// reverse to ASC (oldest -> newest)
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		out = append(out,
			ai.Message{Role: ai.RoleUser, Content: m.UserText},
			ai.Message{Role: ai.RoleAssistant, Content: m.AssistantText},
		)
	}

	current := text
	if s.personas != nil && (agent == nil || agent.EnablePersona) {
		persona, err := s.personas.LatestPersonaText(ctx, userID)
		if err != nil {
			s.log.Warn("persona lookup failed", "user_id", userID, "err", err)
		}
		if persona == "" {
			persona = "No additional context available."
		}
		current = fmt.Sprintf("Context about me:\n%s\n\nCurrent message:\n%s", persona, text)
	}
	out = append(out, ai.Message{Role: ai.RoleUser, Content: current})
	return out, nil
}

func (s *Service) ListMessages(ctx context.Context, userID uint64, limit int, beforeID uint64) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListMessages(ctx, userID, limit, beforeID)
}

func (s *Service) RegisterUser(ctx context.Context, externalID, username string) (*User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("%w: external_id required", ErrInvalidMessage)
	}
	return s.repo.UpsertUser(ctx, externalID, strings.TrimSpace(username))
}

func (s *Service) GetUser(ctx context.Context, id uint64) (*User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *Service) CreateAgent(ctx context.Context, a *Agent) error {
	if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.SystemPrompt) == "" {
		return fmt.Errorf("%w: agent name and system_prompt required", ErrInvalidMessage)
	}
	return s.repo.CreateAgent(ctx, a)
}
