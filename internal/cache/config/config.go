package config

// Пустой Addr - токен хранится в памяти процесса.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
}
