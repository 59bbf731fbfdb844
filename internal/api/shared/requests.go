package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes caps the size of a JSON request body.
const MaxBodyBytes = 1 << 20

// Global validator instance for reuse
var validate = validator.New()

// DecodeJSON decodes the request body into the given struct. Unknown fields
// and trailing data are rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

// ValidateRequest validates the given struct using the validator package.
func ValidateRequest(v interface{}) error {
	// Check if the object implements the Validate interface
	if validator, ok := v.(interface{ Validate() error }); ok {
		return validator.Validate()
	}

	// Otherwise, use the struct validator
	return validate.Struct(v)
}
