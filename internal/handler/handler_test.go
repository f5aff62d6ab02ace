package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/posprint/internal/auth"
	authConfig "github.com/iurnickita/posprint/internal/auth/config"
	"github.com/iurnickita/posprint/internal/model"
	"github.com/iurnickita/posprint/internal/service"
	"github.com/iurnickita/posprint/internal/service/printclient"
)

// fakeService возвращает заранее заданные ответы
type fakeService struct {
	printErr  error
	postErr   error
	statusErr error
	filter    model.OrderFilter
	orders    map[string]model.Order
	menu      model.Menu
	printed   []string
}

func newFakeService() *fakeService {
	created := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	order := model.Order{Number: "ORD-20261016-0001"}
	order.Data.Items = []model.OrderLine{{Name: "Noodles", Price: decimal.NewFromInt(50), Quantity: 2}}
	order.Data.Subtotal = decimal.NewFromInt(100)
	order.Data.Status = model.OrderStatusPending
	order.Data.PrintStatus = model.PrintStatusPrinted
	order.Data.CreatedAt = created
	order.Data.UpdatedAt = created
	return &fakeService{orders: map[string]model.Order{order.Number: order}}
}

func (s *fakeService) PostOrder(_ context.Context, newOrder service.NewOrder) (service.Submission, error) {
	if s.postErr != nil {
		return service.Submission{}, s.postErr
	}
	if len(newOrder.Items) == 0 {
		return service.Submission{}, service.ErrEmptyOrder
	}
	order := model.Order{Number: "ORD-20261016-0002"}
	order.Data.Items = newOrder.Items
	order.Data.Subtotal = newOrder.Subtotal
	order.Data.Status = model.OrderStatusPending
	order.Data.PrintStatus = model.PrintStatusPrinted
	if s.printErr != nil {
		order.Data.PrintStatus = model.PrintStatusFailed
		return service.Submission{Order: order, Warning: service.PrintWarning, PrintError: s.printErr}, nil
	}
	return service.Submission{Order: order}, nil
}

func (s *fakeService) Reprint(ctx context.Context, number string) (service.Submission, error) {
	order, err := s.GetOrder(ctx, number)
	if err != nil {
		return service.Submission{}, err
	}
	if s.printErr != nil {
		return service.Submission{Order: order, Warning: service.PrintWarning, PrintError: s.printErr}, nil
	}
	return service.Submission{Order: order}, nil
}

func (s *fakeService) GetOrders(_ context.Context, filter model.OrderFilter) ([]model.Order, error) {
	s.filter = filter
	var orders []model.Order
	for _, order := range s.orders {
		orders = append(orders, order)
	}
	return orders, nil
}

func (s *fakeService) GetOrder(_ context.Context, number string) (model.Order, error) {
	order, ok := s.orders[number]
	if !ok {
		return model.Order{}, service.ErrNotFound
	}
	return order, nil
}

func (s *fakeService) SetOrderStatus(ctx context.Context, number string, status string) (model.Order, error) {
	if s.statusErr != nil {
		return model.Order{}, s.statusErr
	}
	order, err := s.GetOrder(ctx, number)
	if err != nil {
		return model.Order{}, err
	}
	order.Data.Status = status
	return order, nil
}

func (s *fakeService) GetMenu(_ context.Context) (model.Menu, error) {
	return s.menu, nil
}

func (s *fakeService) PutMenu(_ context.Context, menu model.Menu) (model.Menu, error) {
	s.menu = menu
	return menu, nil
}

func (s *fakeService) PrinterStatus(_ context.Context) (printclient.PrinterState, error) {
	return printclient.PrinterState{State: "0", Text: "offline"}, nil
}

func (s *fakeService) Print(_ context.Context, machineCode string, content string, originID string) (string, error) {
	if machineCode == "" || content == "" {
		return "", service.ErrEmptyPrintJob
	}
	if s.printErr != nil {
		return "", s.printErr
	}
	s.printed = append(s.printed, machineCode+"|"+content+"|"+originID)
	return "task-1", nil
}

func newTestServer(t *testing.T, svc service.Service, authCfg authConfig.Config) *httptest.Server {
	h := newHandler(auth.NewAuth(authCfg, nil), svc, zap.NewNop())
	srv := httptest.NewServer(h.newRouter())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	req, err := http.NewRequest(method, url, bytes.NewBufferString(body))
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&decoded))
	return res, decoded
}

func TestPostOrder(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		printErr error
		postErr  error
		wantCode int
		wantWarn bool
	}{
		{name: "printed", body: `{"items":[{"name":"Noodles","price":50,"quantity":2}],"subtotal":100}`, wantCode: http.StatusCreated},
		{name: "print failed", body: `{"items":[{"name":"Noodles","price":50,"quantity":2}],"subtotal":100}`,
			printErr: errors.New("print request rejected: sign verification failed (code 3002)"), wantCode: http.StatusCreated, wantWarn: true},
		{name: "empty", body: `{"items":[]}`, wantCode: http.StatusBadRequest},
		{name: "invalid", body: `{"items":[{"price":1}]}`, postErr: service.ErrInvalidOrder, wantCode: http.StatusBadRequest},
		{name: "bad json", body: `{"items":`, wantCode: http.StatusBadRequest},
		{name: "store down", body: `{"items":[{"name":"Tea","price":10}]}`, postErr: errors.New("db down"), wantCode: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			svc.printErr = tt.printErr
			svc.postErr = tt.postErr
			srv := newTestServer(t, svc, authConfig.Config{})

			res, body := do(t, http.MethodPost, srv.URL+"/api/orders", tt.body)
			require.Equal(t, tt.wantCode, res.StatusCode)
			if tt.wantCode != http.StatusCreated {
				assert.Equal(t, false, body["success"])
				return
			}
			assert.Equal(t, true, body["success"])
			order := body["order"].(map[string]any)
			assert.Equal(t, "ORD-20261016-0002", order["orderNumber"])
			if tt.wantWarn {
				assert.Equal(t, service.PrintWarning, body["warning"])
				assert.Contains(t, body["error"], "3002")
				assert.Equal(t, model.PrintStatusFailed, order["printStatus"])
			} else {
				assert.NotContains(t, body, "warning")
				assert.Equal(t, model.PrintStatusPrinted, order["printStatus"])
			}
		})
	}
}

func TestGetOrders(t *testing.T) {
	svc := newFakeService()
	srv := newTestServer(t, svc, authConfig.Config{})

	res, body := do(t, http.MethodGet, srv.URL+"/api/orders?status=pending&startDate=2026-10-01&endDate=2026-10-16", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, float64(1), body["total"])
	assert.Len(t, body["data"], 1)

	assert.Equal(t, model.OrderStatusPending, svc.filter.Status)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), svc.filter.StartDate)
	assert.Equal(t, time.Date(2026, 10, 16, 23, 59, 59, 999999999, time.UTC), svc.filter.EndDate)

	res, _ = do(t, http.MethodGet, srv.URL+"/api/orders?startDate=yesterday", "")
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestGetOrder(t *testing.T) {
	srv := newTestServer(t, newFakeService(), authConfig.Config{})

	res, body := do(t, http.MethodGet, srv.URL+"/api/orders/ORD-20261016-0001", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	data := body["data"].(map[string]any)
	assert.Equal(t, "ORD-20261016-0001", data["orderNumber"])
	assert.Len(t, data["items"], 1)

	res, body = do(t, http.MethodGet, srv.URL+"/api/orders/ORD-missing", "")
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestPatchOrderStatus(t *testing.T) {
	svc := newFakeService()
	srv := newTestServer(t, svc, authConfig.Config{})
	url := srv.URL + "/api/orders/ORD-20261016-0001/status"

	res, body := do(t, http.MethodPatch, url, `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, model.OrderStatusCompleted, body["data"].(map[string]any)["status"])

	svc.statusErr = service.ErrInvalidStatus
	res, _ = do(t, http.MethodPatch, url, `{"status":"ready"}`)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)

	svc.statusErr = service.ErrInvalidTransition
	res, _ = do(t, http.MethodPatch, url, `{"status":"pending"}`)
	require.Equal(t, http.StatusConflict, res.StatusCode)

	svc.statusErr = nil
	res, _ = do(t, http.MethodPatch, srv.URL+"/api/orders/ORD-missing/status", `{"status":"completed"}`)
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestReprint(t *testing.T) {
	svc := newFakeService()
	srv := newTestServer(t, svc, authConfig.Config{})
	url := srv.URL + "/api/orders/ORD-20261016-0001/reprint"

	res, body := do(t, http.MethodPost, url, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotContains(t, body, "warning")

	// ошибка печати не превращается в 500
	svc.printErr = printclient.ErrTransport
	res, body = do(t, http.MethodPost, url, "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, service.PrintWarning, body["warning"])

	res, _ = do(t, http.MethodPost, srv.URL+"/api/orders/ORD-missing/reprint", "")
	require.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestMenuAndPrinter(t *testing.T) {
	srv := newTestServer(t, newFakeService(), authConfig.Config{})

	res, _ := do(t, http.MethodPut, srv.URL+"/api/menu", `{"categories":[{"id":"drinks","name":"Drinks","items":[{"id":"tea","name":"Tea","price":10}]}]}`)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, body := do(t, http.MethodGet, srv.URL+"/api/menu", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	categories := body["data"].(map[string]any)["categories"].([]any)
	assert.Len(t, categories, 1)

	res, body = do(t, http.MethodGet, srv.URL+"/api/printer/status", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, false, body["online"])
	assert.Equal(t, "offline", body["text"])

	res, body = do(t, http.MethodGet, srv.URL+"/api/health", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestStaffSessionRequired(t *testing.T) {
	srv := newTestServer(t, newFakeService(), authConfig.Config{StaffPIN: "2468", TokenSecret: "secret"})

	res, _ := do(t, http.MethodPut, srv.URL+"/api/menu", `{"categories":[]}`)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// чтение открыто
	res, _ = do(t, http.MethodGet, srv.URL+"/api/orders", "")
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, body := do(t, http.MethodPost, srv.URL+"/api/staff/login", `{"pin":"2468"}`)
	require.Equal(t, http.StatusOK, res.StatusCode)
	tokenString := body["token"].(string)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/menu", bytes.NewBufferString(`{"categories":[]}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	authorized, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	authorized.Body.Close()
	require.Equal(t, http.StatusOK, authorized.StatusCode)
}

func TestPostPrint(t *testing.T) {
	tests := []struct {
		name     string
		printErr error
		body     string
		status   int
		taskID   string
	}{
		{
			name:   "printed",
			body:   `{"machineCode":"4004999999","content":"<FS2>hello</FS2>","originId":"job-1"}`,
			status: http.StatusOK,
			taskID: "task-1",
		},
		{
			name:   "no machine code",
			body:   `{"content":"hello"}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "no content",
			body:   `{"machineCode":"4004999999"}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "broken json",
			body:   `{"machineCode":`,
			status: http.StatusBadRequest,
		},
		{
			name:     "provider rejected",
			printErr: &printclient.ProviderError{Kind: printclient.ErrProviderPrint, Code: "16", Description: "device offline"},
			body:     `{"machineCode":"4004999999","content":"hello"}`,
			status:   http.StatusBadGateway,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			svc := newFakeService()
			svc.printErr = test.printErr
			srv := newTestServer(t, svc, authConfig.Config{})

			res, body := do(t, http.MethodPost, srv.URL+"/api/printer/print", test.body)
			require.Equal(t, test.status, res.StatusCode)
			if test.taskID == "" {
				assert.Equal(t, false, body["success"])
				return
			}
			data := body["data"].(map[string]any)
			assert.Equal(t, test.taskID, data["taskId"])
			assert.Equal(t, "job-1", data["originId"])
			assert.Equal(t, []string{"4004999999|<FS2>hello</FS2>|job-1"}, svc.printed)
		})
	}
}

func TestPostPrintStaffOnly(t *testing.T) {
	svc := newFakeService()
	srv := newTestServer(t, svc, authConfig.Config{StaffPIN: "2468", TokenSecret: "secret"})

	res, _ := do(t, http.MethodPost, srv.URL+"/api/printer/print", `{"machineCode":"4004999999","content":"hello"}`)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Empty(t, svc.printed)
}

func TestParseDate(t *testing.T) {
	start, err := parseDate("2026-10-16T08:00:00+08:00", true)
	require.NoError(t, err)
	require.True(t, start.Equal(time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)))

	zero, err := parseDate("", false)
	require.NoError(t, err)
	require.True(t, zero.IsZero())
}
