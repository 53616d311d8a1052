package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/helios-iam/helios-iam/internal/authz"
	"github.com/helios-iam/helios-iam/internal/platform/httpx"
)

// Handler exposes the audit-log viewing endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, authz: authz}
}

// MountRoutes registers audit-log routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAny("audit.read"))
		r.Get("/", h.list)
		r.Get("/user/{userID}", h.listForUser)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)
	result, err := h.service.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error("query audit log", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return
	}
	filter := filterFromQuery(r)
	filter.ActorID = &userID
	result, err := h.service.Query(r.Context(), filter)
	if err != nil {
		h.logger.Error("query audit log", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func filterFromQuery(r *http.Request) QueryFilter {
	filter := QueryFilter{}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		filter.PageSize = limit
	}
	if raw := r.URL.Query().Get("userId"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.ActorID = &id
		}
	}
	return filter
}
