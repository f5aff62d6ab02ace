package service

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Номер заказа: ORD-<дата>-<4 случайные цифры>.
// Уникальность обеспечивает первичный ключ, при конфликте номер генерируется заново.
func newOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%04d", now.Format("20060102"), rand.IntN(10000))
}

// Отдельный origin_id на каждую перепечатку, иначе провайдер сочтет ее дублем.
// ORD-yyyymmdd-NNNN-r + 12 hex = 31 символ, провайдер принимает до 32.
func reprintOriginID(number string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return number + "-r" + suffix
}
