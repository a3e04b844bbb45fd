package log

import "time"

// Field is a single structured logging attribute.
type Field struct {
	Key   string
	Value interface{}
}

// F constructs a field from an arbitrary key and value.
func F(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Str constructs a string field.
func Str(key, value string) Field { return Field{Key: key, Value: value} }

// Int constructs an int field.
func Int(key string, value int) Field { return Field{Key: key, Value: value} }

// Int64 constructs an int64 field.
func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

// Uint64 constructs a uint64 field.
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

// Float64 constructs a float64 field.
func Float64(key string, value float64) Field { return Field{Key: key, Value: value} }

// Bool constructs a bool field.
func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

// Duration constructs a duration field rendered in its native string form.
func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }

// Any constructs a field holding an arbitrary value.
func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Err constructs an "error" field. A nil error renders as an empty string.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Component constructs the standard component field.
func Component(name string) Field { return Field{Key: ComponentKey, Value: name} }

// Operation constructs the standard operation field.
func Operation(name string) Field { return Field{Key: OperationKey, Value: name} }
