// Package api exposes the HTTP surface: health probes, the user profile
// endpoint, chat, and plan generation. Handlers translate transport
// concerns to and from the core pipeline.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/triplehelix/helix/internal/auth"
	"github.com/triplehelix/helix/internal/config"
	"github.com/triplehelix/helix/internal/core"
	"github.com/triplehelix/helix/internal/engine"
	"github.com/triplehelix/helix/internal/provider"
	"github.com/triplehelix/helix/internal/store"
)

// APIHandler holds the wired dependencies of every endpoint.
type APIHandler struct {
	cfg     *config.Config
	logger  *logrus.Logger
	gate    *auth.Gate
	service *core.Service

	// Now supplies the wall clock. Tests may replace it.
	Now func() time.Time
}

// NewAPIHandler wires the endpoint dependencies.
func NewAPIHandler(cfg *config.Config, logger *logrus.Logger, gate *auth.Gate, service *core.Service) *APIHandler {
	return &APIHandler{
		cfg:     cfg,
		logger:  logger,
		gate:    gate,
		service: service,
		Now:     time.Now,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	TrialEndsAt string `json:"trial_ends_at,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// writeFailure maps the typed error taxonomy onto HTTP statuses.
func (h *APIHandler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var unauthorized *auth.UnauthorizedError
	var configErr *auth.ConfigError
	var trialErr *core.TrialExpiredError
	var providerErr *provider.Error

	switch {
	case errors.As(err, &unauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", unauthorized.Reason)
	case errors.As(err, &configErr):
		writeError(w, http.StatusInternalServerError, "configuration_error", configErr.Reason)
	case errors.As(err, &trialErr):
		body := errorBody{Error: "trial_expired", Message: "Your trial period has ended."}
		if trialErr.TrialEndsAt != nil {
			body.TrialEndsAt = trialErr.TrialEndsAt.UTC().Format(time.RFC3339)
		}
		writeJSON(w, http.StatusPaymentRequired, body)
	case errors.As(err, &providerErr):
		h.logger.WithFields(logrus.Fields{
			"request_id": GetRequestID(r.Context()),
			"error":      err.Error(),
		}).Error("provider failure")
		writeError(w, http.StatusBadGateway, "provider_error", "The completion provider call failed.")
	default:
		h.logger.WithFields(logrus.Fields{
			"request_id": GetRequestID(r.Context()),
			"error":      err.Error(),
		}).Error("internal failure")
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error.")
	}
}

// Healthz is a liveness probe; it carries no dependency checks.
func (h *APIHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Readyz reports configuration state. It never probes the provider.
func (h *APIHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                        true,
		"openai_api_key_configured": h.cfg.OpenAIAPIKey != "",
		"model":                     h.cfg.Model,
		"auth_mode":                 h.cfg.EffectiveAuthMode(),
		"trial_days":                h.cfg.TrialDays,
	})
}

// Me returns the caller's public user record. Only the identity-verified
// mode carries one.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	authCtx, err := h.gate.Authenticate(r.Context(), r)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if authCtx.Mode != config.ModeFirebase || authCtx.User == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "User profiles require firebase auth mode.")
		return
	}
	writeJSON(w, http.StatusOK, authCtx.User.Public(h.Now().UTC()))
}

type turnBody struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequestBody struct {
	Message          string            `json:"message"`
	Messages         []turnBody        `json:"messages,omitempty"`
	SystemPrompt     string            `json:"system_prompt,omitempty"`
	ContextDocuments []string          `json:"context_documents,omitempty"`
	Model            string            `json:"model,omitempty"`
	Temperature      *float64          `json:"temperature,omitempty"`
	MaxOutputTokens  *int              `json:"max_output_tokens,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	SessionID        string            `json:"session_id,omitempty"`
}

func validRole(role string) bool {
	switch role {
	case store.RoleSystem, store.RoleUser, store.RoleAssistant:
		return true
	}
	return false
}

// validate rejects caller input before any provider work happens.
func (b *chatRequestBody) validate() error {
	if strings.TrimSpace(b.Message) == "" {
		return errors.New("message must not be empty")
	}
	if b.Temperature != nil && (*b.Temperature < 0 || *b.Temperature > 2) {
		return fmt.Errorf("temperature must be in [0, 2], got %v", *b.Temperature)
	}
	if b.MaxOutputTokens != nil && (*b.MaxOutputTokens < 1 || *b.MaxOutputTokens > 64000) {
		return fmt.Errorf("max_output_tokens must be in [1, 64000], got %d", *b.MaxOutputTokens)
	}
	for i, m := range b.Messages {
		if !validRole(m.Role) {
			return fmt.Errorf("messages[%d].role must be one of system, user, assistant", i)
		}
	}
	return nil
}

// Chat runs one conversation turn through the pipeline.
func (h *APIHandler) Chat(w http.ResponseWriter, r *http.Request) {
	authCtx, err := h.gate.Authenticate(r.Context(), r)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid JSON body: "+err.Error())
		return
	}
	if err := body.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	turns := make([]provider.Turn, 0, len(body.Messages))
	for _, m := range body.Messages {
		turns = append(turns, provider.Turn{Role: m.Role, Content: m.Content})
	}

	maxTokens := 0
	if body.MaxOutputTokens != nil {
		maxTokens = *body.MaxOutputTokens
	}

	resp, err := h.service.Chat(r.Context(), authCtx.User, GetRequestID(r.Context()), core.ChatRequest{
		Message:          body.Message,
		Turns:            turns,
		SystemPrompt:     body.SystemPrompt,
		ContextDocuments: body.ContextDocuments,
		Model:            body.Model,
		Temperature:      body.Temperature,
		MaxOutputTokens:  maxTokens,
		Metadata:         body.Metadata,
		SessionID:        strings.TrimSpace(body.SessionID),
	})
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Plan generates a deterministic triple-helix plan. Same gate and trial
// rule as Chat.
func (h *APIHandler) Plan(w http.ResponseWriter, r *http.Request) {
	authCtx, err := h.gate.Authenticate(r.Context(), r)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if authCtx.User != nil && !authCtx.User.TrialActive(h.Now().UTC()) {
		h.writeFailure(w, r, &core.TrialExpiredError{TrialEndsAt: authCtx.User.TrialEndsAt})
		return
	}

	var in engine.PlanInput
	if r.Body != http.NoBody {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "Invalid JSON body: "+err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, h.service.Plan(in))
}
