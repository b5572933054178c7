package errors

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeFetchResponseStatus Code = "fetch.response.status"
	CodeFetchRequestFailure Code = "fetch.request.failure"
	CodeFetchDecodeFailure  Code = "fetch.decode.failure"
	CodeFetchQueryFailure   Code = "fetch.query.failure"
	CodeFetchPaginationLoop Code = "fetch.pagination.loop"

	CodeTableNotFound    Code = "notfound.table"
	CodeRecordNotFound   Code = "notfound.record"
	CodeFileNotFound     Code = "notfound.file"
	CodeEntityNotFound   Code = "notfound.entity"
	CodeLinkageEndpoint  Code = "linkage.endpoint.not_found"
	CodeLinkageEndpoints Code = "linkage.endpoints.invalid"

	CodeValidationBaseURI  Code = "validation.base_uri.invalid"
	CodeValidationTriples  Code = "validation.triples.invalid"
	CodeValidationRecord   Code = "validation.record.invalid"
	CodeValidationConfig   Code = "validation.config.invalid"
	CodeSerializationWrite Code = "serialization.write.failure"
	CodeSerializationTerm  Code = "serialization.term.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldTable(value string) Attr {
	return Field("table", value)
}

func FieldRecord(value string) Attr {
	return Field("record", value)
}

func FieldURL(value string) Attr {
	return Field("url", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain, keeping its code.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	builder := oops.With(flatten(fields)...)
	if code := CodeOf(err); code != "" {
		builder = builder.Code(code)
	}

	return builder.Wrap(err)
}

// CodeOf returns the deepest code attached to err, or "" for plain errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	switch code := oopsErr.Code().(type) {
	case Code:
		return code
	case string:
		return Code(code)
	case nil:
		return ""
	default:
		return Code(fmt.Sprintf("%v", code))
	}
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsFetch reports a non-success response or transport failure at the source.
func IsFetch(err error) bool {
	return family(CodeOf(err)) == "fetch"
}

func IsNotFound(err error) bool {
	return family(CodeOf(err)) == "notfound"
}

// IsLinkage reports a dropped association link. It is the only recoverable kind.
func IsLinkage(err error) bool {
	return family(CodeOf(err)) == "linkage"
}

func IsValidation(err error) bool {
	return family(CodeOf(err)) == "validation"
}

func IsSerialization(err error) bool {
	return family(CodeOf(err)) == "serialization"
}

func family(code Code) string {
	s := string(code)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return s
}

func flatten(fields []Attr) []any {
	kv := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		kv = append(kv, f.Key, f.Value)
	}
	return kv
}
