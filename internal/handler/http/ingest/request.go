package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	pkgconfig "sonde-catalog/internal/pkg/config"
)

var (
	errURLRequired  = errors.New("url is required")
	errBodyTooLarge = errors.New("request body too large")
)

// decodeURL reads a ParseRequest and returns its trimmed, validated URL.
// The returned status is the one to answer with when err is non-nil.
func decodeURL(r *http.Request) (string, int, error) {
	var req ParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", http.StatusRequestEntityTooLarge, errBodyTooLarge
		}
		return "", http.StatusBadRequest, fmt.Errorf("invalid request body: %v", err)
	}

	u := strings.TrimSpace(req.URL)
	if u == "" {
		return "", http.StatusBadRequest, errURLRequired
	}
	if err := pkgconfig.ValidateHTTPURL(u); err != nil {
		return "", http.StatusBadRequest, err
	}
	return u, 0, nil
}
