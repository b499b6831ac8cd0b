package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mdlgate/internal/platform/device"
	"mdlgate/internal/presentation/models"
	dErrors "mdlgate/pkg/domain-errors"
	"mdlgate/pkg/platform/httputil"
	"mdlgate/pkg/requestcontext"
)

// Service verifies one presentation.
type Service interface {
	Verify(ctx context.Context, req models.VerifyRequest) *models.VerificationResult
}

type Handler struct {
	verifier Service
	logger   *slog.Logger
}

func New(verifier Service, logger *slog.Logger) *Handler {
	return &Handler{verifier: verifier, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/verify", h.HandleVerify)
}

// HandleVerify implements POST /verify. The result body is always a
// VerificationResult; the status reflects the error kind.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := httputil.DecodeAndPrepare[models.VerifyRequestBody](w, r, h.logger, dErrors.CodeMalformedInput)
	if !ok {
		return
	}

	if ua := requestcontext.UserAgent(ctx); ua != "" && !device.SupportsDigitalCredentials(ua) {
		h.logger.DebugContext(ctx, "verify request from a browser without digital credentials support",
			"device", requestcontext.DeviceLabel(ctx),
			"request_id", requestcontext.RequestID(ctx),
		)
	}

	res := h.verifier.Verify(ctx, models.VerifyRequest{
		Envelope:      body.Response,
		ExpectedNonce: body.Nonce,
		ResponseURI:   body.ResponseURI,
	})

	status := http.StatusOK
	if !res.Valid {
		status = httputil.DomainCodeToHTTPStatus(res.Error.Code())
	}
	httputil.WriteJSON(w, status, res)
}
