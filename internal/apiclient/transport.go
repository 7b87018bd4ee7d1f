package apiclient

import (
	"net/http"
)

// TokenSource yields the current access token, or "" when signed out.
type TokenSource interface {
	AuthToken() string
}

// BearerTransport attaches the stored access token to every request and
// reports 401 responses through OnUnauthorized.
type BearerTransport struct {
	Base           http.RoundTripper
	Tokens         TokenSource
	OnUnauthorized func(req *http.Request)
}

func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token := t.Tokens.AuthToken()
	if token != "" && req.Header.Get("Authorization") == "" {
		// RoundTrippers must not modify the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && token != "" && t.OnUnauthorized != nil {
		t.OnUnauthorized(req)
	}
	return resp, nil
}

func (t *BearerTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
