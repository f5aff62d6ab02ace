package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Заказы

type Order struct {
	Number string
	Data   OrderData
}
type OrderData struct {
	Items         []OrderLine
	Subtotal      decimal.Decimal
	CustomerNotes string
	PhoneNumber   string
	Status        string
	PrintStatus   string
	PrintTaskID   string
	PrintedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type OrderLine struct {
	ItemID         string          `json:"itemId"`
	Name           string          `json:"name" validate:"required"`
	Price          decimal.Decimal `json:"price" validate:"gte=0"`
	Quantity       int             `json:"quantity" validate:"gte=1"`
	SpecialRequest string          `json:"specialRequest"`
	CookingStyle   string          `json:"cookingStyle"`
	MainIngredient string          `json:"mainIngredient"`
	AddOns         []AddOn         `json:"addOns" validate:"dive"`
}

type AddOn struct {
	Name  string          `json:"name" validate:"required"`
	Price decimal.Decimal `json:"price" validate:"gte=0"`
}

// Total - стоимость строки. Добавки уже включены клиентом в Price и здесь не суммируются.
func (line OrderLine) Total() decimal.Decimal {
	return line.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
}

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
)

const (
	PrintStatusPending = "pending"
	PrintStatusPrinted = "printed"
	PrintStatusFailed  = "failed"
)

// Переходы статусов заказа. В pending вернуться нельзя, completed и cancelled конечные.
var orderStatusTransitions = map[string][]string{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:  {},
	OrderStatusCancelled:  {},
}

func ValidOrderStatus(status string) bool {
	_, ok := orderStatusTransitions[status]
	return ok
}

func CanTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, allowed := range orderStatusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Фильтр выборки заказов. Нулевые значения не ограничивают выборку.
type OrderFilter struct {
	Status    string
	StartDate time.Time
	EndDate   time.Time
}

// Меню

type Menu struct {
	Categories  []MenuCategory `json:"categories"`
	LastUpdated time.Time      `json:"lastUpdated"`
}

type MenuCategory struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Items []MenuItem `json:"items"`
}

type MenuItem struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Price       decimal.Decimal  `json:"price"`
	Type        string           `json:"type,omitempty"`
	BaseName    string           `json:"baseName,omitempty"`
	Methods     []string         `json:"methods,omitempty"`
	Ingredients []MenuIngredient `json:"ingredients,omitempty"`
	Description string           `json:"description,omitempty"`
}

type MenuIngredient struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}
