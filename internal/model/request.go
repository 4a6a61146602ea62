package model

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

// SpecRequest asks for a set of specifications across one or more part
// numbers from a single supplier.
type SpecRequest struct {
	Supplier       string   `json:"supplier" yaml:"supplier" validate:"required"`
	PartNumbers    []string `json:"part_numbers" yaml:"part_numbers" validate:"required,min=1,dive,required"`
	Specifications []string `json:"specifications" yaml:"specifications" validate:"required,min=1,dive,required"`
}

// Document is an uploaded datasheet or catalog page.
type Document struct {
	Filename  string `json:"filename"`
	MediaType string `json:"media_type"`
	Data      []byte `json:"-"`
}

// DocumentRequest is a SpecRequest answered from a document instead of the
// live search API.
type DocumentRequest struct {
	SpecRequest
	Document Document
}

// ValidationError lists the request fields that were missing or empty.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "Missing required fields: " + strings.Join(e.Missing, ", ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate reports every missing field, in declaration order, as a
// *ValidationError.
func (r SpecRequest) Validate() error {
	err := requestValidator().Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return eris.Wrap(err, "model: validate request")
	}

	seen := make(map[string]bool, len(verrs))
	out := &ValidationError{}
	for _, fe := range verrs {
		name, _, _ := strings.Cut(fe.Field(), "[")
		if seen[name] {
			continue
		}
		seen[name] = true
		out.Missing = append(out.Missing, name)
	}
	return out
}
