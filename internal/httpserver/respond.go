package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"agent-relay/internal/normalize"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string, extra map[string]any) {
	body := map[string]any{
		"success": false,
		"message": message,
	}
	for key, val := range extra {
		body[key] = val
	}
	writeJSON(w, status, body)
}

// readPayload parses a request body tolerantly: a JSON object, a JSON
// array (first element wins), or a form-encoded body whose fields
// become the payload (a "payload" field carrying JSON is decoded in
// place). The raw bytes are returned alongside for auditing.
func readPayload(r *http.Request) (map[string]any, []byte, error) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, nil, err
	}
	defer r.Body.Close()

	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/x-www-form-urlencoded") {
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, raw, err
		}
		payload := make(map[string]any, len(values))
		for key := range values {
			payload[key] = values.Get(key)
		}
		if encoded, ok := payload["payload"].(string); ok {
			if decoded, err := normalize.DecodeMap([]byte(encoded)); err == nil && len(decoded) > 0 {
				return decoded, raw, nil
			}
		}
		return payload, raw, nil
	}

	if len(raw) == 0 {
		return map[string]any{}, raw, nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, raw, err
	}
	payload := normalize.Unwrap(decoded)
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, raw, nil
}
