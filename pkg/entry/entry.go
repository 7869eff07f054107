package entry

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"
)

// Kind classifies an entry.
type Kind string

// Entry kinds.
const (
	KindLog      Kind = "log"
	KindWarn     Kind = "warn"
	KindDebug    Kind = "debug"
	KindError    Kind = "error"
	KindEvent    Kind = "event"
	KindIdentify Kind = "identify"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindLog, KindWarn, KindDebug, KindError, KindEvent, KindIdentify:
		return true
	}
	return false
}

// Properties is a string keyed property bag. Values must be JSON serializable.
type Properties map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty, non-nil map.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Entry is one persisted unit of telemetry.
type Entry struct {
	ID                 string     `json:"_id"`
	OccurredAt         time.Time  `json:"occurredAt"`
	Kind               Kind       `json:"type"`
	SuperProperties    Properties `json:"superProperties"`
	Name               string     `json:"name,omitempty"`
	Payload            any        `json:"payload,omitempty"`
	Duration           *float64   `json:"duration,omitempty"`
	UserIdentification *string    `json:"userIdentification"`

	// Context is attached to the upload batch only; it is never persisted
	// with the buffered entry.
	Context Properties `json:"context,omitempty"`
}

// ErrorPayload is the serialized form of an error passed to a logging call.
type ErrorPayload struct {
	Message string `json:"message"`
	Name    string `json:"name"`
	Stack   string `json:"stack,omitempty"`
}

// stackTracer matches errors that carry a formatted stack, as produced by
// several error libraries through %+v.
type stackTracer interface {
	StackTrace() string
}

// FromError converts err into an ErrorPayload.
func FromError(err error) ErrorPayload {
	p := ErrorPayload{Message: err.Error(), Name: errorName(err)}
	var st stackTracer
	if errors.As(err, &st) {
		p.Stack = st.StackTrace()
	}
	return p
}

func errorName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "error"
	}
	return t.String()
}

// NormalizeData converts logging call arguments into their stored form:
// errors become ErrorPayload values, everything else passes through.
func NormalizeData(data []any) []any {
	out := make([]any, len(data))
	for i, d := range data {
		if err, ok := d.(error); ok && err != nil {
			out[i] = FromError(err)
			continue
		}
		out[i] = d
	}
	return out
}

// Encode serializes a sequence of entries into the stored array form.
func Encode(entries []Entry) (string, error) {
	if entries == nil {
		entries = []Entry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("entry: encode: %w", err)
	}
	return string(b), nil
}

// Decode parses the stored array form. An empty string decodes to an empty
// sequence.
func Decode(s string) ([]Entry, error) {
	if s == "" {
		return []Entry{}, nil
	}
	var out []Entry
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("entry: decode: %w", err)
	}
	if out == nil {
		out = []Entry{}
	}
	return out, nil
}
