package httpscope

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelFormats(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://httpbin.org/status/418", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Time", "volatile")
	resp := teapotResponse(req)

	assert.Equal(t, "GET http://httpbin.org/status/418 returned 418 I'm a teapot",
		LabelVerbose.Label(req, resp))
	assert.Equal(t, "GET http://httpbin.org/status/418 (418)", LabelCompact.Label(req, resp))

	assert.Equal(t, "GET http://httpbin.org/status/418", LabelVerbose.Label(req, nil))
	assert.Equal(t, "GET http://httpbin.org/status/418", LabelCompact.Label(req, nil))
}

func TestParseLabelFormat(t *testing.T) {
	assert.Equal(t, LabelCompact, ParseLabelFormat(" Compact"))
	assert.Equal(t, LabelVerbose, ParseLabelFormat("verbose"))
	assert.Equal(t, LabelVerbose, ParseLabelFormat(""))
	assert.Equal(t, "compact", LabelCompact.String())
}
