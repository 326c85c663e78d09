package notification

import (
	"bytes"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"

	"github.com/nerrad567/gray-logic-twin/internal/twin"
)

// Logger defines the logging interface used by the Decoder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Decoder turns notification payloads into attribute updates.
type Decoder struct {
	logger Logger
}

// NewDecoder creates a decoder that discards its diagnostics.
func NewDecoder() *Decoder {
	return &Decoder{logger: noopLogger{}}
}

// SetLogger sets the logger that receives skipped-item warnings.
func (d *Decoder) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	d.logger = logger
}

var defaultDecoder = NewDecoder()

// DecodeUpdates decodes payload with a decoder that discards diagnostics.
func DecodeUpdates(payload []byte) ([]twin.AttributeUpdate, error) {
	return defaultDecoder.DecodeUpdates(payload)
}

// DecodeSubscriptionID decodes the subscription id of payload.
func DecodeSubscriptionID(payload []byte) (int32, error) {
	return defaultDecoder.DecodeSubscriptionID(payload)
}

// envelope holds the raw top-level fields. A nil field was absent; a field
// set to JSON null holds the literal "null".
type envelope struct {
	SubscriptionID json.RawMessage            `json:"subscriptionId"`
	ErrorCode      json.RawMessage            `json:"errorCode"`
	ErrorMsg       json.RawMessage            `json:"errorMsg"`
	Data           json.RawMessage            `json:"data"`
	LatestValues   map[string]json.RawMessage `json:"latestValues"`
}

func parseEnvelope(payload []byte) (*envelope, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return &env, nil
}

// DecodeUpdates returns the updates carried in the "data" field, sorted by
// ascending timestamp.
//
// A missing "data" field is an error. A null or empty object yields an empty,
// non-nil slice.
func (d *Decoder) DecodeUpdates(payload []byte) ([]twin.AttributeUpdate, error) {
	env, err := parseEnvelope(payload)
	if err != nil {
		return nil, err
	}
	return d.decodeData(env.Data)
}

// DecodeSubscriptionID returns the top-level "subscriptionId". Integers and
// strings holding an integer are accepted as long as they fit in 32 bits.
func (d *Decoder) DecodeSubscriptionID(payload []byte) (int32, error) {
	env, err := parseEnvelope(payload)
	if err != nil {
		return 0, err
	}
	return parseSubscriptionID(env.SubscriptionID)
}

func (d *Decoder) decodeData(raw json.RawMessage) ([]twin.AttributeUpdate, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: data", ErrMissingField)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: data: %w", ErrMalformedPayload, err)
	}
	updates := []twin.AttributeUpdate{}
	if tok == nil {
		return updates, nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: data is not an object", ErrInvalidField)
	}

	// Walk the object by token so keys are visited in document order.
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: data: %w", ErrMalformedPayload, err)
		}
		key, _ := keyTok.(string)

		var series json.RawMessage
		if err := dec.Decode(&series); err != nil {
			return nil, fmt.Errorf("%w: data[%s]: %w", ErrMalformedPayload, key, err)
		}
		updates = d.appendSeries(updates, key, series)
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: data: %w", ErrMalformedPayload, err)
	}

	slices.SortStableFunc(updates, func(a, b twin.AttributeUpdate) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return updates, nil
}

// appendSeries decodes the [[timestamp, value], ...] list of one key. Broken
// entries are logged and skipped.
func (d *Decoder) appendSeries(updates []twin.AttributeUpdate, key string, series json.RawMessage) []twin.AttributeUpdate {
	var pairs []json.RawMessage
	if err := json.Unmarshal(series, &pairs); err != nil {
		d.logger.Warn("skipping notification key: not an array", "key", key, "error", err)
		return updates
	}

	for i, rawPair := range pairs {
		var pair []json.RawMessage
		if err := json.Unmarshal(rawPair, &pair); err != nil || len(pair) < 2 {
			d.logger.Warn("skipping notification entry: not a [timestamp, value] pair",
				"key", key, "index", i, "entry", string(rawPair))
			continue
		}
		ts, err := parseTimestamp(pair[0])
		if err != nil {
			d.logger.Warn("skipping notification entry: bad timestamp",
				"key", key, "index", i, "timestamp", string(pair[0]), "error", err)
			continue
		}
		var value twin.Value
		if err := value.UnmarshalJSON(pair[1]); err != nil {
			d.logger.Warn("skipping notification entry: bad value",
				"key", key, "index", i, "value", string(pair[1]), "error", err)
			continue
		}
		updates = append(updates, twin.AttributeUpdate{Key: key, Timestamp: ts, Value: value})
	}
	return updates
}

// parseTimestamp accepts a JSON integer or a string holding one.
func parseTimestamp(raw json.RawMessage) (int64, error) {
	text, err := integerText(raw)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(text, 10, 64)
}

func parseSubscriptionID(raw json.RawMessage) (int32, error) {
	if raw == nil || string(raw) == "null" {
		return 0, fmt.Errorf("%w: subscriptionId", ErrMissingField)
	}
	text, err := integerText(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: subscriptionId: %w", ErrInvalidField, err)
	}
	id, err := strconv.ParseInt(text, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: subscriptionId: %w", ErrInvalidField, err)
	}
	return int32(id), nil
}

// integerText returns the digits of a JSON number or JSON string.
func integerText(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch x := v.(type) {
	case json.Number:
		return x.String(), nil
	case string:
		return x, nil
	}
	return "", fmt.Errorf("expected integer, got %s", jsonKind(v))
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return "value"
}

// parseErrorCode accepts an absent or null code as zero.
func parseErrorCode(raw json.RawMessage) (int, error) {
	if raw == nil || string(raw) == "null" {
		return 0, nil
	}
	text, err := integerText(raw)
	if err != nil {
		return 0, err
	}
	code, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, err
	}
	if code > math.MaxInt32 || code < math.MinInt32 {
		return 0, fmt.Errorf("error code %d out of range", code)
	}
	return int(code), nil
}
