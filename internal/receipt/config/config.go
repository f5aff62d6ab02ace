package config

const (
	DefaultShopName = "鮮 有限公司"
	DefaultTimezone = "Asia/Taipei"
)

type Config struct {
	ShopName string
	Timezone string
}
