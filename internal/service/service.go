package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iurnickita/posprint/internal/model"
	"github.com/iurnickita/posprint/internal/receipt"
	"github.com/iurnickita/posprint/internal/service/config"
	"github.com/iurnickita/posprint/internal/service/printclient"
	"github.com/iurnickita/posprint/internal/store"
)

type Service interface {
	PostOrder(ctx context.Context, order NewOrder) (Submission, error)
	Reprint(ctx context.Context, number string) (Submission, error)
	GetOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error)
	GetOrder(ctx context.Context, number string) (model.Order, error)
	SetOrderStatus(ctx context.Context, number string, status string) (model.Order, error)
	GetMenu(ctx context.Context) (model.Menu, error)
	PutMenu(ctx context.Context, menu model.Menu) (model.Menu, error)
	PrinterStatus(ctx context.Context) (printclient.PrinterState, error)
	Print(ctx context.Context, machineCode string, content string, originID string) (string, error)
}

// Printer - облачный принтер чеков
type Printer interface {
	PrintReceipt(ctx context.Context, machineCode string, content string, originID string) (string, error)
	PrinterStatus(ctx context.Context, machineCode string) (printclient.PrinterState, error)
}

var (
	ErrEmptyOrder        = errors.New("order has no items")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrNotFound          = errors.New("order not found")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidTransition = errors.New("order status transition not allowed")
	ErrNumberExhausted   = errors.New("could not allocate order number")
	ErrEmptyPrintJob     = errors.New("machine code and content are required")
)

const PrintWarning = "Order saved but receipt printing failed"

// Новый заказ от клиента
type NewOrder struct {
	Items         []model.OrderLine
	Subtotal      decimal.Decimal
	CustomerNotes string
	PhoneNumber   string
}

// Результат оформления или перепечати. Warning заполнен, если печать не удалась.
type Submission struct {
	Order      model.Order
	Warning    string
	PrintError error
}

type service struct {
	cfg      config.Config
	store    store.Store
	printer  Printer
	receipt  *receipt.Formatter
	validate *validator.Validate
	location *time.Location
	now      func() time.Time
	zaplog   *zap.Logger
}

func NewService(cfg config.Config, store store.Store, printer Printer, formatter *receipt.Formatter, zaplog *zap.Logger) (Service, error) {
	if cfg.NumberAttempts <= 0 {
		cfg.NumberAttempts = config.DefaultNumberAttempts
	}
	if cfg.PrintTimeout <= 0 {
		cfg.PrintTimeout = config.DefaultPrintTimeout
	}
	location := time.Local
	if cfg.Timezone != "" {
		var err error
		location, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
		}
	}
	if zaplog == nil {
		zaplog = zap.NewNop()
	}

	service := service{
		cfg:      cfg,
		store:    store,
		printer:  printer,
		receipt:  formatter,
		validate: newValidator(),
		location: location,
		now:      time.Now,
		zaplog:   zaplog,
	}

	return &service, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// суммы проверяются как числа
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if amount, ok := field.Interface().(decimal.Decimal); ok {
			return amount.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

func (service *service) PostOrder(ctx context.Context, order NewOrder) (Submission, error) {
	if len(order.Items) == 0 {
		return Submission{}, ErrEmptyOrder
	}

	items := make([]model.OrderLine, len(order.Items))
	copy(items, order.Items)
	for i := range items {
		if items[i].Quantity == 0 {
			items[i].Quantity = 1
		}
		if err := service.validate.Struct(items[i]); err != nil {
			return Submission{}, fmt.Errorf("%w: item %d: %s", ErrInvalidOrder, i+1, describeValidation(err))
		}
	}
	if order.Subtotal.IsNegative() {
		return Submission{}, fmt.Errorf("%w: subtotal is negative", ErrInvalidOrder)
	}

	subtotal := order.Subtotal
	if subtotal.IsZero() {
		subtotal = orderSubtotal(items)
	}

	now := service.now()
	var newOrder model.Order
	newOrder.Data.Items = items
	newOrder.Data.Subtotal = subtotal
	newOrder.Data.CustomerNotes = order.CustomerNotes
	newOrder.Data.PhoneNumber = strings.TrimSpace(order.PhoneNumber)
	newOrder.Data.Status = model.OrderStatusPending
	newOrder.Data.PrintStatus = model.PrintStatusPending
	newOrder.Data.CreatedAt = now
	newOrder.Data.UpdatedAt = now

	// Запись заказа. При совпадении номера - новая попытка с другим номером.
	err := ErrNumberExhausted
	for attempt := 0; attempt < service.cfg.NumberAttempts; attempt++ {
		newOrder.Number = newOrderNumber(now.In(service.location))
		err = service.store.OrderPost(ctx, newOrder)
		if !errors.Is(err, store.ErrAlreadyExists) {
			break
		}
		service.zaplog.Debug("order number taken, retrying", zap.String("number", newOrder.Number))
		err = ErrNumberExhausted
	}
	if err != nil {
		return Submission{}, fmt.Errorf("save order: %w", err)
	}

	service.zaplog.Info("order saved",
		zap.String("number", newOrder.Number),
		zap.String("subtotal", subtotal.StringFixed(1)),
		zap.Int("items", len(items)),
	)

	return service.print(ctx, newOrder, newOrder.Number), nil
}

func (service *service) Reprint(ctx context.Context, number string) (Submission, error) {
	order, err := service.GetOrder(ctx, number)
	if err != nil {
		return Submission{}, err
	}
	return service.print(ctx, order, reprintOriginID(order.Number)), nil
}

// print отправляет чек и фиксирует результат. Ошибка печати не отменяет заказ.
// Печать и запись результата доводятся до конца, даже если клиент отключился:
// иначе заказ остался бы в print_status=pending.
func (service *service) print(ctx context.Context, order model.Order, originID string) Submission {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), service.cfg.PrintTimeout)
	defer cancel()

	content := service.receipt.Format(order.Data.Items, order.Number, order.Data.PhoneNumber)

	taskID, printErr := service.printer.PrintReceipt(ctx, service.cfg.MachineCode, content, originID)

	now := service.now()
	order.Data.UpdatedAt = now
	if printErr != nil {
		order.Data.PrintStatus = model.PrintStatusFailed
		service.zaplog.Warn("receipt printing failed",
			zap.String("number", order.Number),
			zap.String("origin_id", originID),
			zap.Error(printErr),
		)
	} else {
		order.Data.PrintStatus = model.PrintStatusPrinted
		order.Data.PrintTaskID = taskID
		order.Data.PrintedAt = &now
	}

	// результат печати пишется отдельным обновлением, без транзакции
	if err := service.store.OrderPutPrint(ctx, order); err != nil {
		service.zaplog.Error("print status update failed",
			zap.String("number", order.Number),
			zap.String("print_status", order.Data.PrintStatus),
			zap.Error(err),
		)
	}

	submission := Submission{Order: order}
	if printErr != nil {
		submission.Warning = PrintWarning
		submission.PrintError = printErr
	}
	return submission
}

func (service *service) GetOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	if filter.Status != "" && !model.ValidOrderStatus(filter.Status) {
		return nil, ErrInvalidStatus
	}
	return service.store.OrderList(ctx, filter)
}

func (service *service) GetOrder(ctx context.Context, number string) (model.Order, error) {
	if number == "" {
		return model.Order{}, ErrNotFound
	}
	order, err := service.store.OrderGet(ctx, number)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return model.Order{}, ErrNotFound
		}
		return model.Order{}, err
	}
	return order, nil
}

func (service *service) SetOrderStatus(ctx context.Context, number string, status string) (model.Order, error) {
	if !model.ValidOrderStatus(status) {
		return model.Order{}, ErrInvalidStatus
	}
	order, err := service.GetOrder(ctx, number)
	if err != nil {
		return model.Order{}, err
	}
	if !model.CanTransition(order.Data.Status, status) {
		return model.Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Data.Status, status)
	}
	if order.Data.Status == status {
		return order, nil
	}

	// запись только из прочитанного статуса: параллельное изменение не проскочит мимо проверки перехода
	now := service.now()
	err = service.store.OrderPutStatus(ctx, number, order.Data.Status, status, now)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return model.Order{}, fmt.Errorf("%w: %s changed concurrently", ErrInvalidTransition, number)
		}
		return model.Order{}, err
	}
	order.Data.Status = status
	order.Data.UpdatedAt = now
	return order, nil
}

func (service *service) GetMenu(ctx context.Context) (model.Menu, error) {
	menu, err := service.store.MenuGet(ctx)
	if err == nil {
		return menu, nil
	}
	if !errors.Is(err, store.ErrNoRows) {
		return model.Menu{}, err
	}

	// Меню еще не заведено - создаем пустое
	menu = model.Menu{Categories: []model.MenuCategory{}, LastUpdated: service.now()}
	if err := service.store.MenuPut(ctx, menu); err != nil {
		return model.Menu{}, err
	}
	return menu, nil
}

func (service *service) PutMenu(ctx context.Context, menu model.Menu) (model.Menu, error) {
	if menu.Categories == nil {
		menu.Categories = []model.MenuCategory{}
	}
	menu.LastUpdated = service.now()
	if err := service.store.MenuPut(ctx, menu); err != nil {
		return model.Menu{}, err
	}
	return menu, nil
}

func (service *service) PrinterStatus(ctx context.Context) (printclient.PrinterState, error) {
	return service.printer.PrinterStatus(ctx, service.cfg.MachineCode)
}

// Print отправляет произвольный текст на принтер. Пустой originID - провайдер получит случайный.
func (service *service) Print(ctx context.Context, machineCode string, content string, originID string) (string, error) {
	machineCode = strings.TrimSpace(machineCode)
	if machineCode == "" || strings.TrimSpace(content) == "" {
		return "", ErrEmptyPrintJob
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), service.cfg.PrintTimeout)
	defer cancel()

	taskID, err := service.printer.PrintReceipt(ctx, machineCode, content, strings.TrimSpace(originID))
	if err != nil {
		service.zaplog.Warn("direct print failed", zap.String("machine_code", machineCode), zap.Error(err))
		return "", err
	}
	return taskID, nil
}

func orderSubtotal(items []model.OrderLine) decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.Total())
	}
	return subtotal
}

func describeValidation(err error) string {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return err.Error()
	}
	fields := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		fields = append(fields, fe.Field()+" failed "+fe.Tag())
	}
	return strings.Join(fields, ", ")
}
