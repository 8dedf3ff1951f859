package httpscope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFieldsIgnoresUnknownNames(t *testing.T) {
	set := ParseFields("method", "nope", "URL", " host ", "method", "")
	assert.Equal(t, []string{"method", "url", "host"}, set.Names())
	assert.True(t, set.Has(FieldURL))
	assert.False(t, set.Has(FieldPhrase))
}

func TestNewFieldSetDropsUnknownAndDuplicates(t *testing.T) {
	set := NewFieldSet(FieldPhrase, FieldUnknown, Field(99), FieldPhrase, FieldMethod)
	assert.Equal(t, []Field{FieldPhrase, FieldMethod}, set.Fields())
	assert.Equal(t, 2, set.Len())
}

func TestFieldSetIntersect(t *testing.T) {
	got := ExtendedFields().Intersect(NewFieldSet(FieldHostname, FieldError, FieldMethod))
	assert.Equal(t, []Field{FieldMethod, FieldHostname}, got.Fields())
}

func TestDefaultAndExtendedFields(t *testing.T) {
	assert.ElementsMatch(t,
		[]string{"host", "method", "url", "status_code", "phrase"},
		DefaultFields().Names())
	assert.ElementsMatch(t,
		[]string{
			"host", "method", "url", "status_code", "phrase",
			"resource", "request_version", "response_version", "hostname",
		},
		ExtendedFields().Names())
	assert.Equal(t, 12, AllFields().Len())
}

func TestFieldString(t *testing.T) {
	assert.Equal(t, "status_code", FieldStatusCode.String())
	assert.Equal(t, "unknown", FieldUnknown.String())
	assert.False(t, FieldUnknown.Known())
}
