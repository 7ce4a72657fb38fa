package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	alerts "github.com/emekauja/shopflow/internal/alerts/application"
	inventory "github.com/emekauja/shopflow/internal/inventory/application"
	invdom "github.com/emekauja/shopflow/internal/inventory/domain"
	"github.com/emekauja/shopflow/internal/order/application"
	"github.com/emekauja/shopflow/internal/order/domain"
)

type Handler struct {
	log     *slog.Logger
	orders  *application.Service
	stock   *inventory.Service
	sweeper *alerts.Sweeper
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, orders *application.Service, stock *inventory.Service, sweeper *alerts.Sweeper) *Handler {
	return &Handler{
		log:     log,
		orders:  orders,
		stock:   stock,
		sweeper: sweeper,
		tracer:  otel.Tracer("shopflow-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Patch("/orders/{id}/status", h.updateFulfillment)
	r.Patch("/orders/{id}/payment", h.updatePayment)

	r.Post("/stock", h.createStockRecord)
	r.Get("/stock", h.listStock)
	r.Post("/stock/{id}/restock", h.restock)
	r.Delete("/stock/{id}", h.deactivateStock)

	r.Post("/alerts/sweep", h.sweep)
	r.Get("/alerts/report", h.report)

	return r
}

type createOrderReq struct {
	IdempotencyKey string `json:"idempotency_key"`
	Customer       struct {
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Address string `json:"address"`
		Region  string `json:"region"`
	} `json:"customer"`
	Items []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	in := application.CreateOrderRequest{
		IdempotencyKey: req.IdempotencyKey,
		Customer: domain.Customer{
			Name:    req.Customer.Name,
			Phone:   req.Customer.Phone,
			Address: req.Customer.Address,
			Region:  req.Customer.Region,
		},
	}
	for _, item := range req.Items {
		in.Items = append(in.Items, application.RequestedItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	res, err := h.orders.CreateOrder(ctx, in)
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	h.writeJSON(w, status, createOrderResponse(res))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orderResponse(o))
}

func (h *Handler) updateFulfillment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateFulfillmentStatus")
	defer span.End()

	var req struct {
		Status string `json:"status"`
		Note   string `json:"note"`
		Actor  string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	o, err := h.orders.UpdateFulfillmentStatus(ctx, chi.URLParam(r, "id"), domain.FulfillmentStatus(req.Status), req.Note, req.Actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orderResponse(o))
}

func (h *Handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	o, err := h.orders.UpdatePaymentStatus(r.Context(), chi.URLParam(r, "id"), domain.PaymentStatus(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orderResponse(o))
}

func (h *Handler) createStockRecord(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID      string `json:"product_id"`
		CurrentStock   int    `json:"current_stock"`
		MinimumStock   int    `json:"minimum_stock"`
		MaximumStock   int    `json:"maximum_stock"`
		AlertThreshold int    `json:"alert_threshold"`
		AlertFrequency string `json:"alert_frequency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	rec, err := h.stock.CreateRecord(r.Context(), inventory.CreateRecordRequest{
		ProductID:      req.ProductID,
		CurrentStock:   req.CurrentStock,
		MinimumStock:   req.MinimumStock,
		MaximumStock:   req.MaximumStock,
		AlertThreshold: req.AlertThreshold,
		AlertFrequency: invdom.AlertFrequency(req.AlertFrequency),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, stockResponse(rec))
}

func (h *Handler) restock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity  int    `json:"quantity"`
		CostCents int64  `json:"cost_cents"`
		Actor     string `json:"actor"`
		Note      string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	rec, err := h.stock.Restock(r.Context(), chi.URLParam(r, "id"), req.Quantity, req.CostCents, req.Actor, req.Note)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stockResponse(rec))
}

func (h *Handler) listStock(w http.ResponseWriter, r *http.Request) {
	status := invdom.StockStatus(r.URL.Query().Get("status"))
	recs, err := h.stock.ListByStatus(r.Context(), status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]stockResp, 0, len(recs))
	for _, rec := range recs {
		out = append(out, stockResponse(rec))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) deactivateStock(w http.ResponseWriter, r *http.Request) {
	rec, err := h.stock.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stockResponse(rec))
}

func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Sweep")
	defer span.End()

	report, err := h.sweeper.Sweep(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	report, err := h.sweeper.GenerateReport(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("response encode failed", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, application.ErrInvalidArgument), errors.Is(err, inventory.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, application.ErrProductUnavailable):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, application.ErrOrderNotFound), errors.Is(err, inventory.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, inventory.ErrAlreadyExists), errors.Is(err, application.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, inventory.ErrInsufficientStock):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "err", err)
		http.Error(w, "internal error", status)
		return
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
