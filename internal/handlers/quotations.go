package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/buildrite/siteops/internal/model"
	"github.com/buildrite/siteops/internal/workflow"
)

const maxQuotationFileBytes = 10 << 20

type QuotationHandler struct {
	svc *workflow.Quotations
}

func NewQuotationHandler(svc *workflow.Quotations) *QuotationHandler {
	return &QuotationHandler{svc: svc}
}

type createQuotationRequest struct {
	AppointmentID  string                `json:"appointment_id"`
	ClientID       string                `json:"client_id,omitempty"`
	ValidUntil     time.Time             `json:"valid_until"`
	Items          []model.QuotationItem `json:"items"`
	Subtotal       float64               `json:"subtotal"`
	TaxRate        float64               `json:"tax_rate"`
	TaxAmount      float64               `json:"tax_amount"`
	DiscountRate   float64               `json:"discount_rate"`
	DiscountAmount float64               `json:"discount_amount"`
	Total          float64               `json:"total"`
	Notes          string                `json:"notes,omitempty"`
	Terms          string                `json:"terms,omitempty"`
}

func (h *QuotationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createQuotationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	q, err := h.svc.Create(r.Context(), workflow.CreateQuotationInput{
		AppointmentID:  req.AppointmentID,
		ClientID:       req.ClientID,
		ValidUntil:     req.ValidUntil,
		Items:          req.Items,
		Subtotal:       req.Subtotal,
		TaxRate:        req.TaxRate,
		TaxAmount:      req.TaxAmount,
		DiscountRate:   req.DiscountRate,
		DiscountAmount: req.DiscountAmount,
		Total:          req.Total,
		Notes:          req.Notes,
		Terms:          req.Terms,
	}, callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"quotation": q})
}

func (h *QuotationHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxQuotationFileBytes); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxQuotationFileBytes+1))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "could not read file")
		return
	}
	if len(data) > maxQuotationFileBytes {
		writeMessage(w, http.StatusBadRequest, "file too large")
		return
	}

	q, err := h.svc.UploadFile(r.Context(), r.PathValue("id"), workflow.FileUpload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotation": q})
}

func (h *QuotationHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Get(r.Context(), r.PathValue("id"), callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"quotation": d.Quotation,
		"client":    d.Client,
	})
}

type updateQuotationRequest struct {
	ValidUntil     *time.Time             `json:"valid_until,omitempty"`
	Items          *[]model.QuotationItem `json:"items,omitempty"`
	Subtotal       *float64               `json:"subtotal,omitempty"`
	TaxRate        *float64               `json:"tax_rate,omitempty"`
	TaxAmount      *float64               `json:"tax_amount,omitempty"`
	DiscountRate   *float64               `json:"discount_rate,omitempty"`
	DiscountAmount *float64               `json:"discount_amount,omitempty"`
	Total          *float64               `json:"total,omitempty"`
	Notes          *string                `json:"notes,omitempty"`
	Terms          *string                `json:"terms,omitempty"`
}

func (h *QuotationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateQuotationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	q, err := h.svc.UpdateFields(r.Context(), r.PathValue("id"), workflow.UpdateQuotationFieldsInput{
		ValidUntil:     req.ValidUntil,
		Items:          req.Items,
		Subtotal:       req.Subtotal,
		TaxRate:        req.TaxRate,
		TaxAmount:      req.TaxAmount,
		DiscountRate:   req.DiscountRate,
		DiscountAmount: req.DiscountAmount,
		Total:          req.Total,
		Notes:          req.Notes,
		Terms:          req.Terms,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotation": q})
}

type updateQuotationStatusRequest struct {
	Status string `json:"status"`
}

func (h *QuotationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateQuotationStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	q, err := h.svc.UpdateStatus(r.Context(), r.PathValue("id"), req.Status, callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotation": q})
}

func (h *QuotationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "quotation deleted")
}

func (h *QuotationHandler) List(w http.ResponseWriter, r *http.Request) {
	details, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotations": details})
}

func (h *QuotationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.svc.ListMine(r.Context(), callerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotations": quotes})
}
