package validators

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
)

// PathUUID parses a chi URL parameter as a UUID.
func PathUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key).WithDetails(map[string]any{"field": key})
	}
	return id, nil
}

// PathReference returns a reference number (CMD/2026/10/0001) carried in a
// URL parameter. References contain slashes, so clients send them escaped
// (CMD%2F2026%2F10%2F0001) or, for catch-all routes, verbatim.
func PathReference(r *http.Request, key string) (string, error) {
	raw := chi.URLParam(r, key)
	ref, err := url.PathUnescape(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+key).WithDetails(map[string]any{"field": key})
	}
	ref = strings.Trim(strings.TrimSpace(ref), "/")
	if ref == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, key+" is required").WithDetails(map[string]any{"field": key})
	}
	return ref, nil
}
