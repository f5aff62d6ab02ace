package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/posprint/internal/auth"
	"github.com/iurnickita/posprint/internal/gzip"
	"github.com/iurnickita/posprint/internal/handler/config"
	"github.com/iurnickita/posprint/internal/logger"
	"github.com/iurnickita/posprint/internal/model"
	"github.com/iurnickita/posprint/internal/service"
)

// Serve обслуживает HTTP до отмены ctx.
func Serve(ctx context.Context, cfg config.Config, auth auth.Auth, service service.Service, zaplog *zap.Logger) error {
	h := newHandler(auth, service, zaplog)
	router := h.newRouter()

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		zaplog.Info("server started", zap.String("addr", cfg.ServerAddr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		zaplog.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

type handler struct {
	auth    auth.Auth
	service service.Service
	zaplog  *zap.Logger
}

func newHandler(auth auth.Auth, service service.Service, zaplog *zap.Logger) *handler {
	return &handler{
		auth:    auth,
		service: service,
		zaplog:  zaplog,
	}
}

func (h *handler) newRouter() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders", gzip.GzipMiddleware(logger.RequestLogMdlw(h.PostOrder, h.zaplog)))
	mux.HandleFunc("GET /api/orders", gzip.GzipMiddleware(logger.RequestLogMdlw(h.GetOrders, h.zaplog)))
	mux.HandleFunc("GET /api/orders/{orderNumber}", gzip.GzipMiddleware(logger.RequestLogMdlw(h.GetOrder, h.zaplog)))
	mux.HandleFunc("PATCH /api/orders/{orderNumber}/status", gzip.GzipMiddleware(logger.RequestLogMdlw(h.auth.Middleware(h.PatchOrderStatus), h.zaplog)))
	mux.HandleFunc("POST /api/orders/{orderNumber}/reprint", gzip.GzipMiddleware(logger.RequestLogMdlw(h.auth.Middleware(h.Reprint), h.zaplog)))
	mux.HandleFunc("GET /api/menu", gzip.GzipMiddleware(logger.RequestLogMdlw(h.GetMenu, h.zaplog)))
	mux.HandleFunc("PUT /api/menu", gzip.GzipMiddleware(logger.RequestLogMdlw(h.auth.Middleware(h.PutMenu), h.zaplog)))
	mux.HandleFunc("GET /api/printer/status", gzip.GzipMiddleware(logger.RequestLogMdlw(h.GetPrinterStatus, h.zaplog)))
	mux.HandleFunc("POST /api/printer/print", gzip.GzipMiddleware(logger.RequestLogMdlw(h.auth.Middleware(h.PostPrint), h.zaplog)))
	mux.HandleFunc("POST /api/staff/login", gzip.GzipMiddleware(logger.RequestLogMdlw(h.auth.Login, h.zaplog)))
	mux.HandleFunc("GET /api/health", h.GetHealth)

	return mux
}

type OrderJSON struct {
	OrderNumber   string            `json:"orderNumber"`
	Items         []model.OrderLine `json:"items"`
	Subtotal      decimal.Decimal   `json:"subtotal"`
	CustomerNotes string            `json:"customerNotes"`
	PhoneNumber   string            `json:"phoneNumber,omitempty"`
	Status        string            `json:"status"`
	PrintStatus   string            `json:"printStatus"`
	PrintTaskID   string            `json:"printTaskId,omitempty"`
	PrintedAt     *time.Time        `json:"printedAt,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func orderOutput(order model.Order) OrderJSON {
	items := order.Data.Items
	if items == nil {
		items = []model.OrderLine{}
	}
	return OrderJSON{
		OrderNumber:   order.Number,
		Items:         items,
		Subtotal:      order.Data.Subtotal,
		CustomerNotes: order.Data.CustomerNotes,
		PhoneNumber:   order.Data.PhoneNumber,
		Status:        order.Data.Status,
		PrintStatus:   order.Data.PrintStatus,
		PrintTaskID:   order.Data.PrintTaskID,
		PrintedAt:     order.Data.PrintedAt,
		CreatedAt:     order.Data.CreatedAt,
		UpdatedAt:     order.Data.UpdatedAt,
	}
}

type ErrorJSONResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type PostOrderJSONRequest struct {
	Items         []model.OrderLine `json:"items"`
	Subtotal      decimal.Decimal   `json:"subtotal"`
	CustomerNotes string            `json:"customerNotes"`
	PhoneNumber   string            `json:"phoneNumber"`
}

type PostOrderJSONResponse struct {
	Success bool      `json:"success"`
	Order   OrderJSON `json:"order"`
	Message string    `json:"message,omitempty"`
	Warning string    `json:"warning,omitempty"`
	Error   string    `json:"error,omitempty"`
}

func (h *handler) PostOrder(w http.ResponseWriter, r *http.Request) {
	var orderJSON PostOrderJSONRequest
	err := json.NewDecoder(r.Body).Decode(&orderJSON)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	submission, err := h.service.PostOrder(r.Context(), service.NewOrder{
		Items:         orderJSON.Items,
		Subtotal:      orderJSON.Subtotal,
		CustomerNotes: orderJSON.CustomerNotes,
		PhoneNumber:   orderJSON.PhoneNumber,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyOrder):
			h.writeError(w, http.StatusBadRequest, "order items must not be empty", err)
		case errors.Is(err, service.ErrInvalidOrder):
			h.writeError(w, http.StatusBadRequest, "invalid order", err)
		default:
			h.writeError(w, http.StatusInternalServerError, "failed to create order", err)
		}
		return
	}

	response := PostOrderJSONResponse{
		Success: true,
		Order:   orderOutput(submission.Order),
		Message: "Order created and sent to printer",
	}
	if submission.Warning != "" {
		response.Message = "Order created"
		response.Warning = submission.Warning
		response.Error = submission.PrintError.Error()
	}
	h.writeJSON(w, http.StatusCreated, response)
}

type GetOrdersJSONResponse struct {
	Success bool        `json:"success"`
	Count   int         `json:"count"`
	Total   int         `json:"total"`
	Data    []OrderJSON `json:"data"`
}

func (h *handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := model.OrderFilter{Status: query.Get("status")}
	var err error
	if filter.StartDate, err = parseDate(query.Get("startDate"), false); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid startDate", err)
		return
	}
	if filter.EndDate, err = parseDate(query.Get("endDate"), true); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid endDate", err)
		return
	}

	orders, err := h.service.GetOrders(r.Context(), filter)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidStatus):
			h.writeError(w, http.StatusBadRequest, "invalid status filter", err)
		default:
			h.writeError(w, http.StatusInternalServerError, "failed to list orders", err)
		}
		return
	}

	ordersJSON := make([]OrderJSON, 0, len(orders))
	for _, order := range orders {
		ordersJSON = append(ordersJSON, orderOutput(order))
	}
	h.writeJSON(w, http.StatusOK, GetOrdersJSONResponse{
		Success: true,
		Count:   len(ordersJSON),
		Total:   len(ordersJSON),
		Data:    ordersJSON,
	})
}

type OrderJSONResponse struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Data    OrderJSON `json:"data"`
	Warning string    `json:"warning,omitempty"`
	Error   string    `json:"error,omitempty"`
}

func (h *handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), r.PathValue("orderNumber"))
	if err != nil {
		h.writeOrderError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, OrderJSONResponse{Success: true, Data: orderOutput(order)})
}

type PatchOrderStatusJSONRequest struct {
	Status string `json:"status"`
}

func (h *handler) PatchOrderStatus(w http.ResponseWriter, r *http.Request) {
	var statusJSON PatchOrderStatusJSONRequest
	err := json.NewDecoder(r.Body).Decode(&statusJSON)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	order, err := h.service.SetOrderStatus(r.Context(), r.PathValue("orderNumber"), statusJSON.Status)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, OrderJSONResponse{
		Success: true,
		Message: "Order status updated",
		Data:    orderOutput(order),
	})
}

func (h *handler) Reprint(w http.ResponseWriter, r *http.Request) {
	submission, err := h.service.Reprint(r.Context(), r.PathValue("orderNumber"))
	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	response := OrderJSONResponse{
		Success: true,
		Message: "Order sent to printer",
		Data:    orderOutput(submission.Order),
	}
	if submission.Warning != "" {
		response.Message = "Reprint failed"
		response.Warning = submission.Warning
		response.Error = submission.PrintError.Error()
	}
	h.writeJSON(w, http.StatusOK, response)
}

type MenuJSONResponse struct {
	Success bool       `json:"success"`
	Data    model.Menu `json:"data"`
}

func (h *handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	menu, err := h.service.GetMenu(r.Context())
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load menu", err)
		return
	}
	h.writeJSON(w, http.StatusOK, MenuJSONResponse{Success: true, Data: menu})
}

func (h *handler) PutMenu(w http.ResponseWriter, r *http.Request) {
	var menu model.Menu
	err := json.NewDecoder(r.Body).Decode(&menu)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	menu, err = h.service.PutMenu(r.Context(), menu)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to save menu", err)
		return
	}
	h.writeJSON(w, http.StatusOK, MenuJSONResponse{Success: true, Data: menu})
}

type PrinterStatusJSONResponse struct {
	Success bool   `json:"success"`
	State   string `json:"state"`
	Text    string `json:"text"`
	Online  bool   `json:"online"`
}

func (h *handler) GetPrinterStatus(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.PrinterStatus(r.Context())
	if err != nil {
		h.writeError(w, http.StatusBadGateway, "printer status unavailable", err)
		return
	}
	h.writeJSON(w, http.StatusOK, PrinterStatusJSONResponse{
		Success: true,
		State:   state.State,
		Text:    state.Text,
		Online:  state.Online,
	})
}

type PrintJSONRequest struct {
	MachineCode string `json:"machineCode"`
	Content     string `json:"content"`
	OriginID    string `json:"originId,omitempty"`
}

type PrintJSONResponse struct {
	Success bool `json:"success"`
	Data    struct {
		TaskID   string `json:"taskId"`
		OriginID string `json:"originId,omitempty"`
	} `json:"data"`
}

// PostPrint - печать произвольного текста на указанный принтер
func (h *handler) PostPrint(w http.ResponseWriter, r *http.Request) {
	var request PrintJSONRequest
	err := json.NewDecoder(r.Body).Decode(&request)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	taskID, err := h.service.Print(r.Context(), request.MachineCode, request.Content, request.OriginID)
	if err != nil {
		if errors.Is(err, service.ErrEmptyPrintJob) {
			h.writeError(w, http.StatusBadRequest, "machineCode and content are required", err)
			return
		}
		h.writeError(w, http.StatusBadGateway, "print failed", err)
		return
	}

	var response PrintJSONResponse
	response.Success = true
	response.Data.TaskID = taskID
	response.Data.OriginID = request.OriginID
	h.writeJSON(w, http.StatusOK, response)
}

func (h *handler) GetHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) writeOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "order not found", err)
	case errors.Is(err, service.ErrInvalidStatus):
		h.writeError(w, http.StatusBadRequest, "invalid order status", err)
	case errors.Is(err, service.ErrInvalidTransition):
		h.writeError(w, http.StatusConflict, "order status cannot be changed", err)
	default:
		h.writeError(w, http.StatusInternalServerError, "order request failed", err)
	}
}

func (h *handler) writeError(w http.ResponseWriter, code int, message string, err error) {
	if code >= http.StatusInternalServerError {
		h.zaplog.Error(message, zap.Error(err))
	}
	h.writeJSON(w, code, ErrorJSONResponse{Success: false, Message: message, Error: err.Error()})
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, v any) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(responseJSON)
}

// parseDate принимает RFC 3339 или дату 2006-01-02. Дата без времени в конце периода включает весь день.
func parseDate(value string, endOfDay bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
