package httppresentation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	appinv "orderflow/internal/application/inventory"
	apporder "orderflow/internal/application/order"
	apppay "orderflow/internal/application/payment"
	dominv "orderflow/internal/domain/inventory"
	domorder "orderflow/internal/domain/order"
	dompay "orderflow/internal/domain/payment"
	"orderflow/internal/observability"
)

// Handler exposes the order, inventory and payment services over REST.
type Handler struct {
	orders    *apporder.Service
	inventory *appinv.Service
	payments  *apppay.Service
	log       observability.Logger
}

func NewHandler(orders *apporder.Service, inventory *appinv.Service, payments *apppay.Service, log observability.Logger) *Handler {
	if log == nil {
		log = observability.NopLogger()
	}
	return &Handler{orders: orders, inventory: inventory, payments: payments, log: log}
}

// Routes wires every endpoint onto a fresh mux. Method-qualified patterns
// keep the dispatch table in one place.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)

	mux.HandleFunc("POST /orders", h.createOrder)
	mux.HandleFunc("POST /orders/with-payment", h.createOrderWithPayment)
	mux.HandleFunc("GET /orders", h.listOrders)
	mux.HandleFunc("GET /orders/stats", h.orderStats)
	mux.HandleFunc("GET /orders/{id}", h.getOrder)
	mux.HandleFunc("POST /orders/{id}/cancel", h.cancelOrder)
	mux.HandleFunc("GET /orders/{id}/payments", h.listOrderPayments)

	mux.HandleFunc("GET /inventory", h.listInventory)
	mux.HandleFunc("GET /inventory/{productID}", h.getInventory)
	mux.HandleFunc("GET /inventory/{productID}/availability", h.checkAvailability)
	mux.HandleFunc("PUT /inventory/{productID}/stock", h.setStock)

	mux.HandleFunc("GET /payments", h.listPayments)
	mux.HandleFunc("GET /payments/stats", h.paymentStats)
	mux.HandleFunc("GET /payments/{id}", h.getPayment)
	mux.HandleFunc("POST /payments/{id}/refund", h.refundPayment)

	return mux
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createOrderRequest struct {
	CustomerName string `json:"customer_name"`
	ProductID    string `json:"product_id"`
	Quantity     int    `json:"quantity"`
}

type createOrderWithPaymentRequest struct {
	CustomerName  string `json:"customer_name"`
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
	PaymentMethod string `json:"payment_method"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error(), "")
		return
	}
	o, err := h.orders.CreateOrder(r.Context(), apporder.CreateOrderInput{
		CustomerName: req.CustomerName,
		ProductID:    req.ProductID,
		Quantity:     req.Quantity,
	})
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) createOrderWithPayment(w http.ResponseWriter, r *http.Request) {
	var req createOrderWithPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error(), "")
		return
	}
	o, err := h.orders.CreateOrderWithPayment(r.Context(), apporder.CreateOrderWithPaymentInput{
		CustomerName:  req.CustomerName,
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context())
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out, "count": len(out)})
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.CancelOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) orderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orders.Stats(r.Context())
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_orders":     stats.TotalOrders,
		"confirmed_orders": stats.ConfirmedOrders,
		"cancelled_orders": stats.CancelledOrders,
		"failed_orders":    stats.FailedOrders,
		"total_revenue":    stats.TotalRevenue,
	})
}

func (h *Handler) listOrderPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.ListByOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": out, "count": len(out)})
}

func (h *Handler) listInventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.inventory.List(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]itemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": out, "count": len(out)})
}

func (h *Handler) getInventory(w http.ResponseWriter, r *http.Request) {
	item, err := h.inventory.Get(r.Context(), r.PathValue("productID"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) checkAvailability(w http.ResponseWriter, r *http.Request) {
	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation", "quantity must be an integer", "")
		return
	}
	avail, err := h.inventory.CheckAvailability(r.Context(), r.PathValue("productID"), quantity)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product_id":    avail.ProductID,
		"requested":     avail.Requested,
		"current_stock": avail.CurrentStock,
		"available":     avail.Available,
	})
}

type setStockRequest struct {
	Stock int `json:"stock"`
}

func (h *Handler) setStock(w http.ResponseWriter, r *http.Request) {
	var req setStockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", err.Error(), "")
		return
	}
	item, err := h.inventory.SetStock(r.Context(), r.PathValue("productID"), req.Stock)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.List(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": out, "count": len(out)})
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *Handler) refundPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Refund(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *Handler) paymentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.payments.Stats(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_payments":     stats.TotalPayments,
		"completed_payments": stats.CompletedPayments,
		"failed_payments":    stats.FailedPayments,
		"refunded_payments":  stats.RefundedPayments,
		"total_revenue":      stats.TotalRevenue,
		"refunded_amount":    stats.RefundedAmount,
	})
}

type orderResponse struct {
	OrderID       string     `json:"order_id"`
	CustomerName  string     `json:"customer_name"`
	ProductID     string     `json:"product_id"`
	ProductName   string     `json:"product_name"`
	Quantity      int        `json:"quantity"`
	UnitPrice     int64      `json:"unit_price"`
	TotalPrice    int64      `json:"total_price"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	Status        string     `json:"status"`
	PaymentID     string     `json:"payment_id,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

func toOrderResponse(o *domorder.Order) orderResponse {
	return orderResponse{
		OrderID:       o.ID,
		CustomerName:  o.CustomerName,
		ProductID:     o.ProductID,
		ProductName:   o.ProductName,
		Quantity:      o.Quantity,
		UnitPrice:     o.UnitPrice,
		TotalPrice:    o.TotalPrice,
		PaymentMethod: o.PaymentMethod,
		Status:        string(o.Status),
		PaymentID:     o.PaymentID,
		TransactionID: o.TransactionID,
		FailureReason: o.FailureReason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
		PaidAt:        o.PaidAt,
		CancelledAt:   o.CancelledAt,
	}
}

type itemResponse struct {
	ProductID string    `json:"product_id"`
	Name      string    `json:"name"`
	Stock     int       `json:"stock"`
	Price     int64     `json:"price"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toItemResponse(item *dominv.Item) itemResponse {
	return itemResponse{
		ProductID: item.ProductID,
		Name:      item.Name,
		Stock:     item.Stock,
		Price:     item.Price,
		UpdatedAt: item.UpdatedAt,
	}
}

type paymentResponse struct {
	PaymentID           string     `json:"payment_id"`
	OrderID             string     `json:"order_id"`
	CustomerName        string     `json:"customer_name"`
	Amount              int64      `json:"amount"`
	Method              string     `json:"method"`
	Status              string     `json:"status"`
	TransactionID       string     `json:"transaction_id,omitempty"`
	RefundTransactionID string     `json:"refund_transaction_id,omitempty"`
	ErrorCode           string     `json:"error_code,omitempty"`
	ProcessedAt         time.Time  `json:"processed_at"`
	RefundedAt          *time.Time `json:"refunded_at,omitempty"`
}

func toPaymentResponse(p *dompay.Payment) paymentResponse {
	return paymentResponse{
		PaymentID:           p.PaymentID,
		OrderID:             p.OrderID,
		CustomerName:        p.CustomerName,
		Amount:              p.Amount,
		Method:              p.Method,
		Status:              string(p.Status),
		TransactionID:       p.TransactionID,
		RefundTransactionID: p.RefundTransactionID,
		ErrorCode:           p.ErrorCode,
		ProcessedAt:         p.ProcessedAt,
		RefundedAt:          p.RefundedAt,
	}
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	OrderID string `json:"order_id,omitempty"`
}

// writeAppError maps the order service's failure kinds onto HTTP status
// codes. The kind travels in the body so clients can branch without parsing
// messages.
func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	kind := apporder.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case apporder.KindNotFound:
		status = http.StatusNotFound
	case apporder.KindValidation, apporder.KindInsufficientStock,
		apporder.KindInvalidPayment, apporder.KindAlreadyCancelled:
		status = http.StatusBadRequest
	case apporder.KindPaymentRejected:
		status = http.StatusPaymentRequired
	case apporder.KindConflict:
		status = http.StatusConflict
	case apporder.KindUnavailable:
		status = http.StatusServiceUnavailable
	case apporder.KindTimeout:
		status = http.StatusGatewayTimeout
	}

	orderID := ""
	var ae *apporder.Error
	if errors.As(err, &ae) {
		orderID = ae.OrderID
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request_failed", observability.F("kind", string(kind)), observability.F("error", err.Error()))
	}
	writeError(w, status, string(kind), err.Error(), orderID)
}

// writeDomainError covers the inventory and payment endpoints, which surface
// domain sentinels directly instead of the order service's kinds.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dominv.ErrNotFound), errors.Is(err, dompay.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), "")
	case errors.Is(err, dominv.ErrInvalidQuantity), errors.Is(err, dominv.ErrInvalidStock),
		errors.Is(err, dompay.ErrInvalidMethod), errors.Is(err, dompay.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "validation", err.Error(), "")
	case errors.Is(err, dompay.ErrAlreadyRefunded), errors.Is(err, dompay.ErrNotRefundable):
		writeError(w, http.StatusConflict, "conflict", err.Error(), "")
	default:
		h.log.Error("request_failed", observability.F("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, "unavailable", "dependency unavailable", "")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, kind, message, orderID string) {
	writeJSON(w, status, map[string]errorBody{
		"error": {Kind: kind, Message: message, OrderID: orderID},
	})
}
