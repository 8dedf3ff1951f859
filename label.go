package httpscope

import (
	"fmt"
	"net/http"
	"strings"
)

// LabelFormat selects how a measurement label is rendered. Labels are built from the method,
// URL and status only, so they stay reproducible across runs.
type LabelFormat int

const (
	// LabelVerbose renders "GET http://host/path returned 418 I'm a teapot".
	LabelVerbose LabelFormat = iota
	// LabelCompact renders "GET http://host/path (418)".
	LabelCompact
)

// ParseLabelFormat maps "verbose" and "compact" to their formats. Anything else is verbose.
func ParseLabelFormat(s string) LabelFormat {
	if strings.EqualFold(strings.TrimSpace(s), "compact") {
		return LabelCompact
	}
	return LabelVerbose
}

func (f LabelFormat) String() string {
	if f == LabelCompact {
		return "compact"
	}
	return "verbose"
}

// Label describes the exchange. Without a response only the method and URL are rendered.
func (f LabelFormat) Label(req *http.Request, resp *http.Response) string {
	target := requestURL(req)
	if resp == nil {
		return req.Method + " " + target
	}

	if f == LabelCompact {
		return fmt.Sprintf("%s %s (%d)", req.Method, target, resp.StatusCode)
	}
	return fmt.Sprintf("%s %s returned %d %s", req.Method, target, resp.StatusCode, reasonPhrase(resp))
}
