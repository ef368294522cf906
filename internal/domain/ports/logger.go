package ports

import (
	"time"

	"github.com/shopspring/decimal"
)

// Logger is the structured logger services depend on. The zap adapter in
// pkg/logging is the production implementation.
type Logger interface {
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
}

type Field struct {
	Key   string
	Value interface{}
}

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Money logs a decimal amount as its canonical string so it never goes through float64
func Money(key string, value decimal.Decimal) Field {
	return Field{Key: key, Value: value.StringFixed(2)}
}

// DriverID and WeekID keep the two keys every settlement log line is
// searched by spelled the same everywhere.
func DriverID(id string) Field {
	return Field{Key: "driver_id", Value: id}
}

func WeekID(id string) Field {
	return Field{Key: "week_id", Value: id}
}

func Err(err error) Field {
	return Field{Key: "error", Value: err}
}
