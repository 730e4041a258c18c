// Package httpx holds request decoding helpers shared by the domain handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medconsult/medconsult/internal/platform/apperr"
)

// DecodeJSON decodes the request body into v, rejecting unknown fields,
// trailing data and non-JSON content types.
func DecodeJSON(c echo.Context, v interface{}) error {
	req := c.Request()
	if ct := req.Header.Get(echo.HeaderContentType); ct != "" && !strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
		return apperr.Validation("expected %s body", echo.MIMEApplicationJSON)
	}
	if req.Body == nil {
		return apperr.Validation("request body is required")
	}

	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return decodeError(err)
	}
	if dec.More() {
		return apperr.Validation("request body must contain a single JSON object")
	}
	return nil
}

func decodeError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return apperr.Validation("request body is required")
	case errors.As(err, &syntaxErr):
		return apperr.Validation("malformed JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		return apperr.Validation("field %q must be of type %s", typeErr.Field, typeErr.Type)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return apperr.Validation("unknown field %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
	}
	return apperr.Validation("invalid request body: %v", err)
}

// ParamID parses the named path parameter as a UUID.
func ParamID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

// IsMultipart reports whether the request carries a multipart form.
func IsMultipart(c echo.Context) bool {
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// FormInt parses an optional integer form field. Empty values yield 0.
func FormInt(c echo.Context, name string) (int, error) {
	v := strings.TrimSpace(c.FormValue(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Validation("field %q must be an integer", name)
	}
	return n, nil
}
