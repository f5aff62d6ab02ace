package config

import "time"

const (
	DefaultNumberAttempts = 5
	DefaultPrintTimeout   = 30 * time.Second
)

type Config struct {
	MachineCode    string
	Timezone       string
	NumberAttempts int
	PrintTimeout   time.Duration
}
