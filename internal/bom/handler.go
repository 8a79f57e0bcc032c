package bom

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/edgeunify07/textile-flow-forge/internal/costing"
	"github.com/edgeunify07/textile-flow-forge/internal/platform/httpx"
	"github.com/edgeunify07/textile-flow-forge/jobs"
)

// Enqueuer submits background recompute runs.
type Enqueuer interface {
	EnqueueBOMRecompute(ctx context.Context, organizationID string) (*asynq.TaskInfo, error)
}

// Handler exposes the BOM and costing JSON API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	jobs    Enqueuer
	locale  string
}

// NewHandler builds a Handler. A nil enqueuer makes recompute run inline.
func NewHandler(logger *slog.Logger, service *Service, enqueuer Enqueuer, locale string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, jobs: enqueuer, locale: locale}
}

var errorMappings = []httpx.ErrorMapping{
	{Target: costing.ErrInvalidInput, Status: http.StatusBadRequest, Title: "Invalid Cost Input", Fields: costing.FieldProblems},
	{Target: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
	{Target: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found"},
	{Target: ErrInvalidStatus, Status: http.StatusConflict, Title: "Invalid Status"},
	{Target: ErrDuplicate, Status: http.StatusConflict, Title: "Duplicate Version"},
	{Target: ErrConflict, Status: http.StatusConflict, Title: "Concurrent Modification"},
}

// MountRoutes registers the /boms and /costing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/boms", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Post("/recompute", h.recompute)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.show)
			r.Delete("/", h.delete)
			r.Post("/items", h.addItem)
			r.Put("/items/{itemID}", h.updateItem)
			r.Delete("/items/{itemID}", h.removeItem)
			r.Put("/parameters", h.updateParameters)
			r.Post("/approve", h.approve)
			r.Post("/reject", h.reject)
			r.Post("/revise", h.revise)
			r.Get("/export", h.export)
		})
	})
	r.Route("/costing", func(r chi.Router) {
		r.Post("/preview", h.preview)
		r.Get("/summary", h.summary)
	})
}

type listResponse struct {
	Data  []listEntry `json:"data"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

type listEntry struct {
	BillOfMaterials
	MaterialCost     float64 `json:"material_cost"`
	LaborCost        float64 `json:"labor_cost"`
	OverheadCost     float64 `json:"overhead_cost"`
	TotalCost        float64 `json:"total_cost"`
	SellingPrice     float64 `json:"selling_price"`
	CriticalLeadTime int     `json:"critical_lead_time"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := Criteria{
		OrganizationID: q.Get("organization_id"),
		StyleID:        q.Get("style_id"),
		Size:           q.Get("size"),
		Search:         q.Get("search"),
		Page:           atoiDefault(q.Get("page"), 1),
		Limit:          atoiDefault(q.Get("limit"), defaultLimit),
	}
	if raw := q.Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		criteria.Status = status
	}
	criteria = criteria.Normalize()
	boms, total, err := h.service.List(r.Context(), criteria)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := listResponse{Data: make([]listEntry, 0, len(boms)), Total: total, Page: criteria.Page, Limit: criteria.Limit}
	for _, b := range boms {
		c := b.CPP.Rounded()
		resp.Data = append(resp.Data, listEntry{
			BillOfMaterials:  b,
			MaterialCost:     c.TotalMaterialCost,
			LaborCost:        c.TotalLaborCost,
			OverheadCost:     c.TotalOverheadCost,
			TotalCost:        c.TotalManufacturingCost,
			SellingPrice:     c.SellingPrice,
			CriticalLeadTime: b.CriticalLeadTime(),
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	bom, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bom)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	bom, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bom)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated)(h.service.AddItem(r.Context(), chi.URLParam(r, "id"), req))
}

func (h *Handler) updateItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK)(h.service.UpdateItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"), req))
}

func (h *Handler) removeItem(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusOK)(h.service.RemoveItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID")))
}

func (h *Handler) updateParameters(w http.ResponseWriter, r *http.Request) {
	var params costing.Parameters
	if err := httpx.DecodeJSON(r, &params); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK)(h.service.UpdateParameters(r.Context(), chi.URLParam(r, "id"), params))
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK)(h.service.Approve(r.Context(), chi.URLParam(r, "id"), req))
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK)(h.service.Reject(r.Context(), chi.URLParam(r, "id"), req))
}

func (h *Handler) revise(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, http.StatusCreated)(h.service.Revise(r.Context(), chi.URLParam(r, "id")))
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	bom, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filename := fmt.Sprintf("cpp-%s-%s-%s.csv", sanitizeFilename(bom.StyleID), sanitizeFilename(bom.Size), bom.Version)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	writer := csv.NewWriter(w)
	writer.UseCRLF = true
	if err := writer.WriteAll(costing.ExportRows(bom.CPP, costing.NewPrinter(h.locale))); err != nil {
		h.logger.Error("bom export", slog.String("bom_id", bom.ID), slog.Any("error", err))
	}
}

type recomputeRequest struct {
	OrganizationID string `json:"organization_id"`
}

func (h *Handler) recompute(w http.ResponseWriter, r *http.Request) {
	var req recomputeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.fail(w, r, err)
		return
	}
	if h.jobs == nil {
		report, err := h.service.RecomputeAll(r.Context(), req.OrganizationID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, report)
		return
	}
	info, err := h.jobs.EnqueueBOMRecompute(r.Context(), req.OrganizationID)
	if errors.Is(err, jobs.ErrDuplicateTask) {
		httpx.JSON(w, http.StatusAccepted, map[string]any{"queued": false, "reason": "already queued"})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"queued": true, "task_id": info.ID})
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	var in costing.Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	calc, err := h.service.Preview(in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, calc.Rounded())
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), r.URL.Query().Get("organization_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int) func(BillOfMaterials, error) {
	return func(bom BillOfMaterials, err error) {
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, status, bom)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if !isClientError(err) {
		h.logger.Error("bom request", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err, errorMappings...)
}

func isClientError(err error) bool {
	for _, m := range errorMappings {
		if errors.Is(err, m.Target) {
			return true
		}
	}
	return errors.Is(err, httpx.ErrValidation)
}

func atoiDefault(raw string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return v
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
