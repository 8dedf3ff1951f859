package httpscope

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
)

// nullValue marks a field whose source (response or error) is absent.
const nullValue = "NULL"

// Parameters maps field names to their extracted string values.
type Parameters map[string]string

// localHostname resolves the host name of the machine once.
var localHostname = sync.OnceValue(func() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return name
})

// ExtractParameters computes the value of every field in fields for the given exchange. The
// response and error may be nil; fields that depend on them then read "NULL". The returned map
// holds exactly one key per selected field.
func ExtractParameters(req *http.Request, resp *http.Response, err error, fields FieldSet) Parameters {
	params := make(Parameters, fields.Len())
	for _, f := range fields.fields {
		params[f.String()] = extractField(f, req, resp, err)
	}
	return params
}

// requestURL renders the request URL, or the empty string for a request without one.
func requestURL(req *http.Request) string {
	if req.URL == nil {
		return ""
	}
	return req.URL.String()
}

func extractField(f Field, req *http.Request, resp *http.Response, err error) string {
	switch f {
	case FieldMethod:
		return req.Method
	case FieldURL:
		return requestURL(req)
	case FieldResource:
		if req.URL == nil {
			return ""
		}
		return req.URL.Path
	case FieldRequestVersion:
		return protoVersion(req.ProtoMajor, req.ProtoMinor)
	case FieldResponseVersion:
		if resp == nil {
			return nullValue
		}
		return protoVersion(resp.ProtoMajor, resp.ProtoMinor)
	case FieldHost:
		return requestHost(req)
	case FieldHostname:
		return localHostname()
	case FieldStatusCode:
		if resp == nil {
			return nullValue
		}
		return strconv.Itoa(resp.StatusCode)
	case FieldPhrase:
		if resp == nil {
			return nullValue
		}
		return reasonPhrase(resp)
	case FieldError:
		if err == nil {
			return nullValue
		}
		return err.Error()
	case FieldRequest:
		return requestLine(req)
	case FieldResponse:
		if resp == nil {
			return nullValue
		}
		return statusLine(resp)
	default:
		return ""
	}
}

// protoVersion renders a protocol version the way HTTP messages carry it, e.g. "1.1". A zero
// version (a request built by hand) is reported as empty.
func protoVersion(major, minor int) string {
	if major == 0 && minor == 0 {
		return ""
	}
	return fmt.Sprintf("%d.%d", major, minor)
}

func requestHost(req *http.Request) string {
	if req.URL != nil {
		if h := req.URL.Hostname(); h != "" {
			return h
		}
	}
	host := req.Host
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.HasSuffix(host, "]") {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}

// reasonPhrase strips the status code from resp.Status, falling back to the standard text
// when the response carries no status line.
func reasonPhrase(resp *http.Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if phrase, ok := strings.CutPrefix(resp.Status, code+" "); ok {
		return phrase
	}
	if resp.Status != "" && resp.Status != code {
		return resp.Status
	}
	return http.StatusText(resp.StatusCode)
}

func requestLine(req *http.Request) string {
	target := ""
	if req.URL != nil {
		target = req.URL.RequestURI()
	}
	proto := protoName(req.Proto, req.ProtoMajor, req.ProtoMinor)
	return strings.TrimSpace(req.Method + " " + target + " " + proto)
}

func statusLine(resp *http.Response) string {
	proto := protoName(resp.Proto, resp.ProtoMajor, resp.ProtoMinor)
	return strings.TrimSpace(fmt.Sprintf("%s %d %s", proto, resp.StatusCode, reasonPhrase(resp)))
}

func protoName(proto string, major, minor int) string {
	if proto != "" {
		return proto
	}
	if v := protoVersion(major, minor); v != "" {
		return "HTTP/" + v
	}
	return ""
}
