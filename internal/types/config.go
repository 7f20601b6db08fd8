package types

type RunMode string

const (
	// ModeLocal runs the billing engine with local defaults
	ModeLocal RunMode = "local"
	// ModeProduction runs the billing engine against real collaborators
	ModeProduction RunMode = "production"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)
