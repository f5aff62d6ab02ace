package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	authConfig "github.com/iurnickita/posprint/internal/auth/config"
	cacheConfig "github.com/iurnickita/posprint/internal/cache/config"
	handlerConfig "github.com/iurnickita/posprint/internal/handler/config"
	loggerConfig "github.com/iurnickita/posprint/internal/logger/config"
	receiptConfig "github.com/iurnickita/posprint/internal/receipt/config"
	serviceConfig "github.com/iurnickita/posprint/internal/service/config"
	printConfig "github.com/iurnickita/posprint/internal/service/printclient/config"
	storeConfig "github.com/iurnickita/posprint/internal/store/config"
)

type Config struct {
	Handler handlerConfig.Config
	Service serviceConfig.Config
	Print   printConfig.Config
	Receipt receiptConfig.Config
	Store   storeConfig.Config
	Cache   cacheConfig.Config
	Auth    authConfig.Config
	Logger  loggerConfig.Config
}

var ErrNoDatabase = errors.New("DATABASE_URI is not set")

// GetConfig читает config.yaml из рабочего каталога (если есть), переменные окружения важнее.
func GetConfig() (Config, error) {
	return load(viper.New(), ".")
}

func load(v *viper.Viper, paths ...string) (Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	v.AutomaticEnv()

	v.SetDefault("RUN_ADDRESS", ":3001")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("STAFF_TOKEN_TTL", 12*time.Hour)
	v.SetDefault("ORDER_NUMBER_ATTEMPTS", serviceConfig.DefaultNumberAttempts)
	v.SetDefault("PRINT_TIMEOUT", serviceConfig.DefaultPrintTimeout)
	v.SetDefault("YILIANYUN_BASE_URL", printConfig.DefaultBaseURL)
	v.SetDefault("YILIANYUN_TIMEOUT", printConfig.DefaultTimeout)
	v.SetDefault("YILIANYUN_SIGN_UPPERCASE", false)
	v.SetDefault("YILIANYUN_SERVER_TIME", false)
	v.SetDefault("RECEIPT_SHOP_NAME", receiptConfig.DefaultShopName)
	v.SetDefault("RECEIPT_TIMEZONE", receiptConfig.DefaultTimezone)

	var cfg Config
	cfg.Handler.ServerAddr = v.GetString("RUN_ADDRESS")
	cfg.Logger.LogLevel = v.GetString("LOG_LEVEL")
	cfg.Store.DBDsn = v.GetString("DATABASE_URI")
	cfg.Cache.Addr = v.GetString("REDIS_ADDR")
	cfg.Cache.Password = v.GetString("REDIS_PASSWORD")
	cfg.Cache.DB = v.GetInt("REDIS_DB")
	cfg.Auth.StaffPIN = v.GetString("STAFF_PIN")
	cfg.Auth.TokenSecret = v.GetString("STAFF_TOKEN_SECRET")
	cfg.Auth.TokenTTL = v.GetDuration("STAFF_TOKEN_TTL")

	cfg.Print.ClientID = v.GetString("YILIANYUN_CLIENT_ID")
	cfg.Print.ClientSecret = v.GetString("YILIANYUN_CLIENT_SECRET")
	cfg.Print.MachineCode = v.GetString("YILIANYUN_MACHINE_CODE")
	cfg.Print.BaseURL = v.GetString("YILIANYUN_BASE_URL")
	cfg.Print.Timeout = v.GetDuration("YILIANYUN_TIMEOUT")
	cfg.Print.SignUppercase = v.GetBool("YILIANYUN_SIGN_UPPERCASE")
	cfg.Print.UseServerTime = v.GetBool("YILIANYUN_SERVER_TIME")
	cfg.Print = cfg.Print.Normalize()

	cfg.Receipt.ShopName = v.GetString("RECEIPT_SHOP_NAME")
	cfg.Receipt.Timezone = v.GetString("RECEIPT_TIMEZONE")

	cfg.Service.MachineCode = cfg.Print.MachineCode
	cfg.Service.Timezone = cfg.Receipt.Timezone
	cfg.Service.NumberAttempts = v.GetInt("ORDER_NUMBER_ATTEMPTS")
	cfg.Service.PrintTimeout = v.GetDuration("PRINT_TIMEOUT")

	// без учетных данных принтера сервис не стартует
	if err := cfg.Print.Validate(); err != nil {
		return Config{}, err
	}
	if cfg.Store.DBDsn == "" {
		return Config{}, ErrNoDatabase
	}
	return cfg, nil
}
