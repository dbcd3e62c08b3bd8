// Package core orchestrates one chat call: trial enforcement, session
// history merging, instruction composition, the provider round trip, and
// response shaping. It sits between the HTTP layer and the adapters.
package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/triplehelix/helix/internal/config"
	"github.com/triplehelix/helix/internal/engine"
	"github.com/triplehelix/helix/internal/prompt"
	"github.com/triplehelix/helix/internal/provider"
	"github.com/triplehelix/helix/internal/store"
)

// Provider labels on ChatResponse. Degraded answers are always
// distinguishable from model-backed ones through this field.
const (
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
	ProviderDryRun = "dry_run"
)

// LocalModelName is reported as the model for rule-based answers.
const LocalModelName = "local"

// TrialExpiredError rejects a call whose resolved user is outside the
// trial window (402-class).
type TrialExpiredError struct {
	TrialEndsAt *time.Time
}

func (e *TrialExpiredError) Error() string {
	if e.TrialEndsAt != nil {
		return fmt.Sprintf("trial expired at %s", e.TrialEndsAt.UTC().Format(time.RFC3339))
	}
	return "trial expired"
}

// Generator is the slice of the provider adapter the pipeline calls.
type Generator interface {
	Generate(ctx context.Context, in provider.GenerateInput) (*provider.Result, error)
}

// SessionStore persists bounded per-session conversation history.
type SessionStore interface {
	SessionMessages(sessionID string, limit int) ([]store.Message, error)
	AppendSessionMessages(sessionID string, keep int, msgs ...store.Message) error
}

// ChatRequest is the normalized per-call input, already validated by the
// transport layer.
type ChatRequest struct {
	Message          string
	Turns            []provider.Turn
	SystemPrompt     string
	ContextDocuments []string
	Model            string
	Temperature      *float64
	MaxOutputTokens  int
	Metadata         map[string]string
	SessionID        string
}

// ChatResponse is the shaped result of one call.
type ChatResponse struct {
	ID               string          `json:"id"`
	CreatedAt        time.Time       `json:"created_at"`
	Model            string          `json:"model"`
	Provider         string          `json:"provider"`
	Response         string          `json:"response"`
	SessionID        string          `json:"session_id,omitempty"`
	OpenAIResponseID string          `json:"openai_response_id,omitempty"`
	Usage            *provider.Usage `json:"usage,omitempty"`
}

// Service runs the chat pipeline. The provider client is built lazily on
// first use and cached; a failed construction is retried on the next call.
type Service struct {
	cfg      *config.Config
	logger   *logrus.Logger
	sessions SessionStore

	mu        sync.Mutex
	client    Generator
	newClient func() (Generator, error)

	// Now supplies the wall clock. Tests may replace it.
	Now func() time.Time
}

// NewService wires the pipeline. sessions may be nil, in which case
// session_id is accepted but history is neither read nor written.
func NewService(cfg *config.Config, logger *logrus.Logger, sessions SessionStore) *Service {
	s := &Service{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		Now:      time.Now,
	}
	s.newClient = func() (Generator, error) {
		return provider.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, logger)
	}
	return s
}

// WarmProvider eagerly constructs the provider client. Failure is
// reported but does not disable the service: the first real call retries.
func (s *Service) WarmProvider() error {
	if s.cfg.DryRun || s.cfg.OpenAIAPIKey == "" {
		return nil
	}
	_, err := s.getClient()
	return err
}

func (s *Service) getClient() (Generator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	c, err := s.newClient()
	if err != nil {
		return nil, err
	}
	s.client = c
	return c, nil
}

// Chat runs one call end to end. user is non-nil only in the
// identity-verified mode; requestID is the per-request correlation id.
func (s *Service) Chat(ctx context.Context, user *store.UserRecord, requestID string, req ChatRequest) (*ChatResponse, error) {
	now := s.Now().UTC()

	model := req.Model
	if model == "" {
		model = s.cfg.Model
	}
	temperature := s.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	if user != nil && !user.TrialActive(now) {
		return nil, &TrialExpiredError{TrialEndsAt: user.TrialEndsAt}
	}

	turns, err := s.mergeHistory(req)
	if err != nil {
		return nil, err
	}

	entry := s.logger.WithFields(logrus.Fields{
		"request_id":    requestID,
		"model":         model,
		"temperature":   temperature,
		"message_chars": utf8.RuneCountInString(req.Message),
		"turns":         len(turns),
		"documents":     len(req.ContextDocuments),
	})
	if s.cfg.LogRequests {
		if s.cfg.LogRequestBody {
			entry = entry.WithField("message", req.Message)
		}
		entry.Info("chat request")
	}

	if s.cfg.DryRun {
		resp := s.shape(now, model, ProviderDryRun, dryRunText(req.Message), req.SessionID, "", nil)
		return resp, s.persist(req, resp)
	}

	if s.cfg.OpenAIAPIKey == "" {
		reply := engine.GenerateReply(req.Message, len(turns))
		resp := s.shape(now, LocalModelName, ProviderLocal, reply.Answer, req.SessionID, "", nil)
		return resp, s.persist(req, resp)
	}

	instructions, conversation := buildConversation(req, turns)

	client, err := s.getClient()
	if err != nil {
		return nil, &provider.Error{Cause: err}
	}

	result, err := client.Generate(ctx, provider.GenerateInput{
		Message:         singleMessage(conversation, req.Message),
		Turns:           conversation,
		Instructions:    instructions,
		Model:           model,
		Temperature:     temperature,
		MaxOutputTokens: req.MaxOutputTokens,
		Metadata:        withTracing(req.Metadata, requestID, user),
	})
	if err != nil {
		entry.WithError(err).Error("provider call failed")
		return nil, err
	}

	resp := s.shape(now, result.Model, ProviderOpenAI, result.Text, req.SessionID, result.ResponseID, result.Usage)
	return resp, s.persist(req, resp)
}

// mergeHistory prepends stored session turns (oldest first) to the
// request-supplied turn list.
func (s *Service) mergeHistory(req ChatRequest) ([]provider.Turn, error) {
	if req.SessionID == "" || s.sessions == nil {
		return req.Turns, nil
	}
	stored, err := s.sessions.SessionMessages(req.SessionID, s.cfg.SessionMaxMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", req.SessionID, err)
	}
	merged := make([]provider.Turn, 0, len(stored)+len(req.Turns))
	for _, m := range stored {
		merged = append(merged, provider.Turn{Role: m.Role, Content: m.Content})
	}
	return append(merged, req.Turns...), nil
}

// persist appends the user message and the reply to the session, trimming
// to the configured bound. Stateless calls skip storage entirely.
func (s *Service) persist(req ChatRequest, resp *ChatResponse) error {
	if req.SessionID == "" || s.sessions == nil {
		return nil
	}
	err := s.sessions.AppendSessionMessages(req.SessionID, s.cfg.SessionMaxMessages,
		store.Message{Role: store.RoleUser, Content: req.Message},
		store.Message{Role: store.RoleAssistant, Content: resp.Response},
	)
	if err != nil {
		return fmt.Errorf("failed to persist session %s: %w", req.SessionID, err)
	}
	return nil
}

func (s *Service) shape(now time.Time, model, providerLabel, text, sessionID, responseID string, usage *provider.Usage) *ChatResponse {
	return &ChatResponse{
		ID:               uuid.NewString(),
		CreatedAt:        now,
		Model:            model,
		Provider:         providerLabel,
		Response:         text,
		SessionID:        sessionID,
		OpenAIResponseID: responseID,
		Usage:            usage,
	}
}

// buildConversation folds system-role turns into the instructions as extra
// notes and returns the remaining turns with the current message appended
// as the trailing user turn. A history-free request yields a nil turn list
// so the adapter takes its single-message form.
func buildConversation(req ChatRequest, turns []provider.Turn) (string, []provider.Turn) {
	base := req.SystemPrompt
	if strings.TrimSpace(base) == "" {
		base = prompt.DefaultSystemPrompt
	}

	var notes []string
	var conversation []provider.Turn
	for _, t := range turns {
		if t.Role == store.RoleSystem {
			if trimmed := strings.TrimSpace(t.Content); trimmed != "" {
				notes = append(notes, trimmed)
			}
			continue
		}
		conversation = append(conversation, t)
	}

	instructions := prompt.Compose(base, req.ContextDocuments, strings.Join(notes, "\n\n"))

	if len(conversation) == 0 {
		return instructions, nil
	}
	return instructions, append(conversation, provider.Turn{Role: store.RoleUser, Content: req.Message})
}

// singleMessage selects the adapter's single-message form when no turn
// list survived folding.
func singleMessage(conversation []provider.Turn, message string) string {
	if len(conversation) > 0 {
		return ""
	}
	return message
}

// withTracing injects request_id and user_id without overwriting
// caller-supplied keys of the same name.
func withTracing(metadata map[string]string, requestID string, user *store.UserRecord) map[string]string {
	out := make(map[string]string, len(metadata)+2)
	for k, v := range metadata {
		out[k] = v
	}
	if requestID != "" {
		if _, ok := out["request_id"]; !ok {
			out["request_id"] = requestID
		}
	}
	if user != nil {
		if _, ok := out["user_id"]; !ok {
			out["user_id"] = user.UID
		}
	}
	return out
}

func dryRunText(message string) string {
	return fmt.Sprintf("[dry_run] Received %d chars. Set OPENAI_API_KEY and disable HELIX_DRY_RUN to get model responses.",
		utf8.RuneCountInString(message))
}

// Plan generates a deterministic triple-helix plan from the input.
func (s *Service) Plan(in engine.PlanInput) engine.Plan {
	return engine.BuildPlan(in, s.Now())
}
