package guard

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/starford/openme/internal/apperr"
)

// MaxBodyBytes caps how much raw body is read before measuring, independent
// of the per-endpoint ceiling.
const MaxBodyBytes = 1 << 20

// DecodeJSON requires a JSON content type, measures the re-serialized body
// against maxBytes and decodes it into dst. An empty body leaves dst untouched.
func DecodeJSON(r *http.Request, maxBytes int, dst any) *apperr.ClientError {
	if !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		return apperr.Reject(http.StatusUnsupportedMediaType, "Content-Type must be application/json")
	}
	if r.Body == nil {
		return nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return apperr.BadRequest("failed to read body")
	}
	if len(raw) > MaxBodyBytes {
		return apperr.Reject(http.StatusRequestEntityTooLarge, "Payload too large")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return apperr.BadRequest("invalid JSON body")
	}
	size, err := serializedLen(parsed)
	if err != nil {
		return apperr.BadRequest("invalid JSON body")
	}
	if size > maxBytes {
		return apperr.Reject(http.StatusRequestEntityTooLarge, "Payload too large")
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apperr.BadRequest(typeErr.Field + " has an invalid type")
		}
		return apperr.BadRequest("invalid JSON body")
	}
	return nil
}

// serializedLen is the byte length of v encoded without insignificant
// whitespace, with string escapes written back as raw UTF-8.
func serializedLen(v any) (int, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return 0, err
	}
	// Encode terminates the value with a newline.
	return buf.Len() - 1, nil
}
