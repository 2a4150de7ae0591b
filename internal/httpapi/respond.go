package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

var errBodyRequired = errors.New("request body is required")

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errBodyRequired
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errBodyRequired
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints where the body may be omitted.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if err := decodeJSON(r, dst); err != nil && !errors.Is(err, errBodyRequired) {
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}
