package httpscope

import "strings"

// Field is a descriptive parameter that can be extracted from a request/response pair.
type Field int

const (
	// FieldUnknown is the zero value and is never extracted.
	FieldUnknown Field = iota
	// FieldMethod is the request method.
	FieldMethod
	// FieldURL is the full request URL.
	FieldURL
	// FieldResource is the path component of the request URL.
	FieldResource
	// FieldRequestVersion is the protocol version of the request, e.g. "1.1".
	FieldRequestVersion
	// FieldResponseVersion is the protocol version of the response.
	FieldResponseVersion
	// FieldHost is the host the request targets.
	FieldHost
	// FieldHostname is the host name of the local machine.
	FieldHostname
	// FieldStatusCode is the response status code.
	FieldStatusCode
	// FieldPhrase is the response reason phrase.
	FieldPhrase
	// FieldError is the message of the error that ended the exchange.
	FieldError
	// FieldRequest is a passthrough of the request itself.
	FieldRequest
	// FieldResponse is a passthrough of the response itself.
	FieldResponse
)

var fieldNames = map[Field]string{
	FieldMethod:          "method",
	FieldURL:             "url",
	FieldResource:        "resource",
	FieldRequestVersion:  "request_version",
	FieldResponseVersion: "response_version",
	FieldHost:            "host",
	FieldHostname:        "hostname",
	FieldStatusCode:      "status_code",
	FieldPhrase:          "phrase",
	FieldError:           "error",
	FieldRequest:         "request",
	FieldResponse:        "response",
}

var fieldsByName = func() map[string]Field {
	m := make(map[string]Field, len(fieldNames))
	for f, name := range fieldNames {
		m[name] = f
	}
	return m
}()

// String returns the parameter key of the field.
func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "unknown"
}

// Known reports whether the field is part of the extraction vocabulary.
func (f Field) Known() bool {
	_, ok := fieldNames[f]
	return ok
}

// FieldSet is an ordered, de-duplicated selection of known fields.
type FieldSet struct {
	fields []Field
}

// NewFieldSet builds a FieldSet from the given fields. Unknown fields and duplicates are
// dropped; the first occurrence decides the position.
func NewFieldSet(fields ...Field) FieldSet {
	seen := make(map[Field]struct{}, len(fields))
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if !f.Known() {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return FieldSet{fields: out}
}

// ParseFields builds a FieldSet from parameter names. Names outside the vocabulary are ignored.
func ParseFields(names ...string) FieldSet {
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		if f, ok := fieldsByName[strings.ToLower(strings.TrimSpace(name))]; ok {
			fields = append(fields, f)
		}
	}
	return NewFieldSet(fields...)
}

// DefaultFields returns the minimal field selection.
func DefaultFields() FieldSet {
	return NewFieldSet(FieldHost, FieldMethod, FieldURL, FieldStatusCode, FieldPhrase)
}

// ExtendedFields returns the default selection plus resource, protocol versions and the local
// host name.
func ExtendedFields() FieldSet {
	return NewFieldSet(
		FieldHost, FieldMethod, FieldURL, FieldStatusCode, FieldPhrase,
		FieldResource, FieldRequestVersion, FieldResponseVersion, FieldHostname,
	)
}

// AllFields returns every field in the vocabulary.
func AllFields() FieldSet {
	return NewFieldSet(
		FieldMethod, FieldURL, FieldResource, FieldRequestVersion, FieldResponseVersion,
		FieldHost, FieldHostname, FieldStatusCode, FieldPhrase, FieldError,
		FieldRequest, FieldResponse,
	)
}

// Fields returns a copy of the selected fields in order.
func (s FieldSet) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Has reports whether the field is selected.
func (s FieldSet) Has(f Field) bool {
	for _, sel := range s.fields {
		if sel == f {
			return true
		}
	}
	return false
}

// Len returns the number of selected fields.
func (s FieldSet) Len() int { return len(s.fields) }

// Intersect returns the fields of s that are also in other, keeping the order of s.
func (s FieldSet) Intersect(other FieldSet) FieldSet {
	out := make([]Field, 0, len(s.fields))
	for _, f := range s.fields {
		if other.Has(f) {
			out = append(out, f)
		}
	}
	return FieldSet{fields: out}
}

// Names returns the parameter keys of the selected fields in order.
func (s FieldSet) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.String()
	}
	return names
}
