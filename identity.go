package httpscope

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/xid"
)

// RequestKey identifies one in-flight request for the duration of its lifecycle.
type RequestKey string

type requestKeyCtx struct{}

// requestToken is the context value stored by Tag. owner is the request instance the token
// was minted for; requests derived from it share the context but not the identity.
type requestToken struct {
	key   RequestKey
	owner *http.Request
}

// Tag returns a request carrying a fresh request token in its context. A request that already
// owns a token is returned as is, so the token round-trips through the call sequence. Clones
// and other requests derived through WithContext do not own the token they inherit, and are
// tagged anew.
func Tag(req *http.Request) *http.Request {
	if tok, ok := tokenFromContext(req.Context()); ok && tok.owner == req {
		return req
	}
	return newTag(req)
}

// newTag mints a token for a shallow copy of req, regardless of any inherited token.
func newTag(req *http.Request) *http.Request {
	tok := &requestToken{key: RequestKey(xid.New().String())}
	tagged := req.WithContext(context.WithValue(req.Context(), requestKeyCtx{}, tok))
	tok.owner = tagged
	return tagged
}

func tokenFromContext(ctx context.Context) (*requestToken, bool) {
	tok, ok := ctx.Value(requestKeyCtx{}).(*requestToken)
	return tok, ok
}

// KeyFromContext returns the request token stored by Tag.
func KeyFromContext(ctx context.Context) (RequestKey, bool) {
	tok, ok := tokenFromContext(ctx)
	if !ok {
		return "", false
	}
	return tok.key, true
}

// Identify returns the key of a request. The request owning a token yields the token itself.
// Any other request falls back to the identity of the request value, prefixed with an
// inherited token if there is one, so two distinct instances never share a key even when they
// are structurally equal or share a context.
func Identify(req *http.Request) RequestKey {
	tok, ok := tokenFromContext(req.Context())
	switch {
	case ok && tok.owner == req:
		return tok.key
	case ok:
		return RequestKey(fmt.Sprintf("%s-%p", tok.key, req))
	default:
		return RequestKey(fmt.Sprintf("ptr-%p", req))
	}
}
