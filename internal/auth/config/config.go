package config

import "time"

// Пустой StaffPIN - вход персонала не требуется.
type Config struct {
	StaffPIN    string
	TokenSecret string
	TokenTTL    time.Duration
}
