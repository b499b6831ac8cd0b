package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"mdlgate/internal/issuance/models"
	dErrors "mdlgate/pkg/domain-errors"
	"mdlgate/pkg/platform/httputil"
	"mdlgate/pkg/requestcontext"
)

// Service runs the issuance flow. Request validation happens there, so
// rejections are counted in one place.
type Service interface {
	Authorize(ctx context.Context, req *models.AuthorizeRequest) (*models.AuthorizeResult, error)
	Token(ctx context.Context, req *models.TokenRequest) (*models.TokenResult, error)
	Credential(ctx context.Context, accessToken string, req *models.CredentialRequest) (*models.CredentialResult, error)
}

// Handler serves the pre-authorized code flow endpoints.
type Handler struct {
	issuance Service
	logger   *slog.Logger
}

func New(issuance Service, logger *slog.Logger) *Handler {
	return &Handler{issuance: issuance, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/authorize", h.HandleAuthorize)
	r.Post("/token", h.HandleToken)
	r.Post("/credential", h.HandleCredential)
}

// HandleAuthorize implements POST /authorize.
//
// Input: { "verification_session_id": "...", "holder_public_key": {JWK} }
// Output: { "code": "...", "expires_in": 600 }
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.AuthorizeRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	res, err := h.issuance.Authorize(ctx, &req)
	if err != nil {
		h.fail(ctx, w, "authorize failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleToken implements POST /token. Both JSON and form-encoded bodies are
// accepted.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req models.TokenRequest
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			h.logger.WarnContext(ctx, "failed to parse token form",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidRequest, "invalid form body"))
			return
		}
		req.GrantType = r.PostForm.Get("grant_type")
		req.Code = r.PostForm.Get("code")
	} else if !h.decode(w, r, &req, false) {
		return
	}

	res, err := h.issuance.Token(ctx, &req)
	if err != nil {
		h.fail(ctx, w, "token exchange failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleCredential implements POST /credential. The access token comes from
// the Authorization header; the body is optional.
func (h *Handler) HandleCredential(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accessToken, ok := bearerToken(r)
	if !ok {
		h.logger.WarnContext(ctx, "credential request without bearer token",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidToken, "missing or invalid Authorization header"))
		return
	}

	var req models.CredentialRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	res, err := h.issuance.Credential(ctx, accessToken, &req)
	if err != nil {
		h.fail(ctx, w, "credential issuance failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, into any, allowEmpty bool) bool {
	err := json.NewDecoder(r.Body).Decode(into)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	ctx := r.Context()
	h.logger.WarnContext(ctx, "failed to decode request body",
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidRequest, "invalid JSON in request body"))
	return false
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}

func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

func isForm(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}
