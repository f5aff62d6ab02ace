// Package receipt собирает текст чека для облачного принтера.
package receipt

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"

	"github.com/iurnickita/posprint/internal/model"
	"github.com/iurnickita/posprint/internal/receipt/config"
)

const divider = "--------------------------------"

type Receipt struct {
	ShopName    string
	OrderNumber string
	Phone       string
	PrintedAt   time.Time
	Items       []model.OrderLine
}

// Compose - чистая функция: одинаковый Receipt дает одинаковый текст.
func Compose(r Receipt) string {
	var lines []string

	if phone := strings.TrimSpace(r.Phone); phone != "" {
		lines = append(lines, "<FS2>"+phone+"</FS2>")
	}
	lines = append(lines,
		r.ShopName,
		"時間:"+formatTime(r.PrintedAt),
	)
	if r.OrderNumber != "" {
		lines = append(lines, "單號:"+r.OrderNumber)
	}
	lines = append(lines,
		divider,
		"品名  數量  小計",
		divider,
	)

	subtotal := decimal.Zero
	quantity := 0
	for i, item := range r.Items {
		if item.Quantity < 1 {
			item.Quantity = 1
		}
		total := item.Total()
		subtotal = subtotal.Add(total)
		quantity += item.Quantity

		lines = append(lines, fmt.Sprintf("%02d.%s  %d個   $%s", i+1, item.Name, item.Quantity, total.StringFixed(1)))
		if note := strings.TrimSpace(item.SpecialRequest); note != "" {
			lines = append(lines, "備注:"+note)
		}
		lines = append(lines, divider)
	}

	lines = append(lines,
		fmt.Sprintf("數量:%d", quantity),
		"實付:$"+subtotal.StringFixed(1),
		// пустые строки, чтобы бумага прошла до ножа
		"\n\n\n",
	)
	return strings.Join(lines, "\n")
}

// formatTime - "26-10-16 下午 03:04:05"
func formatTime(t time.Time) string {
	ampm := "上午"
	if t.Hour() >= 12 {
		ampm = "下午"
	}
	return t.Format("06-01-02") + " " + ampm + " " + t.Format("03:04:05")
}

type Formatter struct {
	shopName string
	location *time.Location
	now      func() time.Time
}

func NewFormatter(cfg config.Config) (*Formatter, error) {
	shopName := cfg.ShopName
	if shopName == "" {
		shopName = config.DefaultShopName
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = config.DefaultTimezone
	}
	location, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("receipt timezone %q: %w", tz, err)
	}
	return &Formatter{shopName: shopName, location: location, now: time.Now}, nil
}

// Format собирает чек заказа на текущий момент.
func (f *Formatter) Format(items []model.OrderLine, orderNumber string, phone string) string {
	return Compose(Receipt{
		ShopName:    f.shopName,
		OrderNumber: orderNumber,
		Phone:       phone,
		PrintedAt:   f.now().In(f.location),
		Items:       items,
	})
}
