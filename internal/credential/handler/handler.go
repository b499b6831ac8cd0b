package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mdlgate/internal/credential/models"
	"mdlgate/internal/credential/sdjwt"
	dErrors "mdlgate/pkg/domain-errors"
	"mdlgate/pkg/platform/httputil"
	"mdlgate/pkg/requestcontext"
)

type Service interface {
	Verify(ctx context.Context, raw string) (*sdjwt.Verified, error)
}

// Handler lets relying parties check a derived credential against the
// gateway's issuer key.
type Handler struct {
	credentials Service
	logger      *slog.Logger
}

func New(credentials Service, logger *slog.Logger) *Handler {
	return &Handler{credentials: credentials, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/credential/verify", h.HandleVerify)
}

// HandleVerify implements POST /credential/verify.
//
// Input: { "credential": "<jwt>~<disclosure>~...~" }
// Output: { "valid": true, "vct": "...", "claims": {...}, ... }
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.VerifyCredentialRequest](w, r, h.logger, dErrors.CodeMalformedInput)
	if !ok {
		return
	}

	verified, err := h.credentials.Verify(ctx, req.Credential)
	if err != nil {
		h.logger.InfoContext(ctx, "credential rejected",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewVerifyCredentialResult(verified))
}
