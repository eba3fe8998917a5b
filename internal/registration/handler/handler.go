package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"enroll/internal/registration/models"
	"enroll/pkg/platform/httputil"
	"enroll/pkg/requestcontext"
)

// Service defines the interface for registration operations.
type Service interface {
	ValidateCredentials(ctx context.Context, username, password string) (string, error)
	StartRegistration(ctx context.Context, username, password string, channel models.Channel) (*models.StartResult, error)
	VerifyCode(ctx context.Context, sessionID, code string) (*models.VerifyResult, error)
	CompleteRegistration(ctx context.Context, sessionID, registrationID, deviceID, identityKey string) (*models.CompleteResult, error)
	GetSessionMetadata(ctx context.Context, sessionID string) (*models.SessionMetadata, error)
}

// Handler wires registration endpoints to the orchestrator.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a registration handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts registration endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/credentials/validate", h.HandleValidateCredentials)
	r.Post("/v1/registration/sessions", h.HandleStartSession)
	r.Post("/v1/registration/sessions/{sessionID}/verify", h.HandleVerifyCode)
	r.Post("/v1/registration/sessions/{sessionID}/complete", h.HandleCompleteSession)
	r.Get("/v1/registration/sessions/{sessionID}", h.HandleGetSession)
}

// HandleValidateCredentials handles POST /v1/credentials/validate.
func (h *Handler) HandleValidateCredentials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ValidateCredentialsRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	phone, err := h.service.ValidateCredentials(ctx, req.Username, req.Password)
	if err != nil {
		h.logger.WarnContext(ctx, "credential validation failed",
			"request_id", requestID,
			"username", req.Username,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ValidateCredentialsResponse{PhoneNumber: phone})
}

// HandleStartSession handles POST /v1/registration/sessions.
func (h *Handler) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[StartSessionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.StartRegistration(ctx, req.Username, req.Password, req.ParsedChannel())
	if err != nil {
		h.logger.ErrorContext(ctx, "session start failed",
			"request_id", requestID,
			"username", req.Username,
			"channel", req.Channel,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "session started",
		"request_id", requestID,
		"session_id", result.SessionID,
		"channel", req.Channel,
		"reused", result.Reused,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	status := http.StatusCreated
	if result.Reused {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, fromStartResult(result))
}

// HandleVerifyCode handles POST /v1/registration/sessions/{sessionID}/verify.
func (h *Handler) HandleVerifyCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	sessionID := chi.URLParam(r, "sessionID")
	if err := validSessionID(sessionID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[VerifyCodeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.VerifyCode(ctx, sessionID, req.Code)
	if err != nil {
		h.logger.WarnContext(ctx, "code verification failed",
			"request_id", requestID,
			"session_id", sessionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "code verification answered",
		"request_id", requestID,
		"session_id", sessionID,
		"success", result.Success,
	)

	httputil.WriteJSON(w, http.StatusOK, fromVerifyResult(result))
}

// HandleCompleteSession handles POST /v1/registration/sessions/{sessionID}/complete.
func (h *Handler) HandleCompleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	sessionID := chi.URLParam(r, "sessionID")
	if err := validSessionID(sessionID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[CompleteSessionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.CompleteRegistration(ctx, sessionID, req.RegistrationID, req.DeviceID, req.IdentityKey)
	if err != nil {
		h.logger.WarnContext(ctx, "session completion failed",
			"request_id", requestID,
			"session_id", sessionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "session completed",
		"request_id", requestID,
		"session_id", sessionID,
	)

	httputil.WriteJSON(w, http.StatusOK, CompleteSessionResponse{
		Success: result.Success,
		Message: result.Message,
	})
}

// HandleGetSession handles GET /v1/registration/sessions/{sessionID}.
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID := chi.URLParam(r, "sessionID")
	if err := validSessionID(sessionID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	metadata, err := h.service.GetSessionMetadata(ctx, sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, fromSessionMetadata(metadata))
}
