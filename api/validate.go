package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// requestError is a malformed body or query parameter. Always a 400.
type requestError struct {
	Message string
	Fields  map[string]string
	Err     error
}

func (e *requestError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *requestError) Unwrap() error { return e.Err }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// decodeJSONBody decodes a strict JSON body into dest and runs its
// validate tags.
func decodeJSONBody(r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return &requestError{Message: "invalid request body", Err: err}
	}
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) *requestError {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		fields := map[string]string{}
		for _, fe := range errs {
			fields[fe.Field()] = validationMessage(fe)
		}
		return &requestError{Message: "validation failed", Fields: fields}
	}
	return &requestError{Message: "validation failed", Err: err}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	return "is invalid"
}

// =============================================================================
// QUERY PARAMETERS
// =============================================================================

func parseQueryBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &requestError{Message: fmt.Sprintf("%s must be a boolean", key), Err: err}
	}
	return v, nil
}

// parseQueryInt64 returns nil when the parameter is absent.
func parseQueryInt64(r *http.Request, key string) (*int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &requestError{Message: fmt.Sprintf("%s must be an integer", key), Err: err}
	}
	return &v, nil
}

func parsePathInt64(raw, key string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &requestError{Message: fmt.Sprintf("%s must be an integer", key), Err: err}
	}
	return v, nil
}
