package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"mdlgate/internal/trust/models"
	"mdlgate/pkg/platform/httputil"
	"mdlgate/pkg/requestcontext"
)

// Service is the trust store surface used by the HTTP layer.
type Service interface {
	Fetch(ctx context.Context, force bool) (*models.Snapshot, error)
	AcceptedJurisdictions() []string
}

type Handler struct {
	trust  Service
	logger *slog.Logger
}

func New(trust Service, logger *slog.Logger) *Handler {
	return &Handler{trust: trust, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/trust", h.HandleStatus)
	r.Post("/trust/refresh", h.HandleRefresh)
}

// StatusResponse summarizes the trust snapshot without key material.
type StatusResponse struct {
	Version       string                `json:"version"`
	FetchedAt     time.Time             `json:"fetched_at"`
	Stale         bool                  `json:"stale"`
	Accepted      []string              `json:"accepted_jurisdictions"`
	Jurisdictions []JurisdictionSummary `json:"jurisdictions"`
}

type JurisdictionSummary struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Issuer        string `json:"issuer"`
	Accepted      bool   `json:"accepted"`
	Certificates  int    `json:"certificates"`
	RootAvailable *bool  `json:"root_available,omitempty"`
}

// HandleStatus implements GET /trust.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, false)
}

// HandleRefresh implements POST /trust/refresh. The in-memory copy is
// dropped; the response still succeeds from disk when the source is down.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, true)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, force bool) {
	ctx := r.Context()
	snap, err := h.trust.Fetch(ctx, force)
	if err != nil {
		h.logger.ErrorContext(ctx, "trust snapshot unavailable",
			"error", err,
			"force", force,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	if force {
		h.logger.InfoContext(ctx, "trust list refresh requested",
			"version", snap.Version,
			"stale", snap.Stale,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(snap, h.trust.AcceptedJurisdictions()))
}

func toStatusResponse(snap *models.Snapshot, accepted []string) *StatusResponse {
	resp := &StatusResponse{
		Version:       snap.Version,
		FetchedAt:     snap.FetchedAt,
		Stale:         snap.Stale,
		Accepted:      accepted,
		Jurisdictions: make([]JurisdictionSummary, 0, len(snap.Records)),
	}
	for code, rec := range snap.Records {
		summary := JurisdictionSummary{
			Code:         code,
			Name:         rec.Name,
			Issuer:       rec.IssuerLabel,
			Accepted:     slices.Contains(accepted, code),
			Certificates: len(rec.Certificates),
		}
		if root, ok := snap.Roots[code]; ok {
			summary.RootAvailable = &root.Available
		}
		resp.Jurisdictions = append(resp.Jurisdictions, summary)
	}
	slices.SortFunc(resp.Jurisdictions, func(a, b JurisdictionSummary) int {
		return strings.Compare(a.Code, b.Code)
	})
	return resp
}
