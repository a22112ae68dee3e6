package relay

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ErrResultMalformed reports that the entry's result field could not be
// coerced back into structured form. The payload is still delivered with a
// fallback marker instead of being dropped.
var ErrResultMalformed = errors.New("relay: result field malformed")

// Normalize rebuilds the structured sink document from a log entry's flat
// string fields. Stream backends flatten nested values to strings on
// append, so the result field is decoded back into an object here, and
// numeric-looking id fields become numbers again.
func Normalize(fields map[string]string) (map[string]any, error) {
	doc := make(map[string]any, len(fields))
	for k, v := range fields {
		doc[k] = v
	}

	var normErr error
	if raw, ok := fields["result"]; ok {
		parsed, err := decodeResult(raw)
		if err != nil {
			doc["result"] = map[string]any{"error": "invalid result format"}
			normErr = ErrResultMalformed
		} else {
			doc["result"] = parsed
		}
	}

	if raw, ok := fields["id"]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			doc["id"] = n
		}
	}

	return doc, normErr
}

// decodeResult parses the result value as JSON, tolerating producers that
// serialized with single quotes. Valid JSON is decoded exactly once.
func decodeResult(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v, nil
	}

	repaired := strings.ReplaceAll(raw, "'", `"`)
	if err := json.Unmarshal([]byte(repaired), &v); err != nil {
		return nil, err
	}
	return v, nil
}
