package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/daybook/server/internal/webhook"
)

// maxRequestBody caps the raw webhook body read; provider payloads are far
// smaller than this.
const maxRequestBody = 1 << 20

// signatureHeader is the provider's webhook signature header.
const signatureHeader = "Surge-Signature"

// SignatureValidator authenticates the raw request body.
type SignatureValidator interface {
	Valid(body []byte, header string) bool
}

// Processor runs the inbound pipeline on an authenticated body.
type Processor interface {
	Process(ctx context.Context, raw []byte) (webhook.Result, error)
}

// WebhookHandler handles POST /webhook
type WebhookHandler struct {
	validator SignatureValidator
	processor Processor
	devMode   bool
	logger    *slog.Logger
}

// NewWebhookHandler creates a new webhook handler. devMode adds rejection
// detail to signature-failure logs; validation itself is never relaxed.
func NewWebhookHandler(validator SignatureValidator, processor Processor, devMode bool, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		validator: validator,
		processor: processor,
		devMode:   devMode,
		logger:    logger.With("component", "webhook_handler"),
	}
}

// ServeHTTP reads the raw body, verifies the provider signature before any
// parsing, then runs the pipeline and maps its error taxonomy onto statuses.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(body) > maxRequestBody {
		respondWithError(w, http.StatusBadRequest, "request body too large")
		return
	}

	if !h.validator.Valid(body, r.Header.Get(signatureHeader)) {
		if h.devMode {
			h.logger.Debug("signature rejected",
				"header", r.Header.Get(signatureHeader), "body_bytes", len(body))
		}
		respondWithError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	result, err := h.processor.Process(r.Context(), body)
	if err != nil {
		h.respondProcessError(w, err)
		return
	}

	resp := map[string]string{"status": result.Status}
	if result.EntryID != nil {
		resp["entry_id"] = result.EntryID.String()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *WebhookHandler) respondProcessError(w http.ResponseWriter, err error) {
	var verr *webhook.ValidationError
	var nferr *webhook.NotFoundError
	var serr *webhook.StateError
	var rlerr *webhook.RateLimitError
	switch {
	case errors.As(err, &verr):
		respondWithError(w, http.StatusBadRequest, verr.Error())
	case errors.As(err, &nferr):
		respondWithError(w, http.StatusNotFound, "unknown sender")
	case errors.As(err, &serr):
		respondWithError(w, http.StatusForbidden, serr.Error())
	case errors.As(err, &rlerr):
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
	default:
		h.logger.Error("webhook processing failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

func respondWithError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
