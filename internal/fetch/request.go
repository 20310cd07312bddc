package fetch

import (
	"net/http"
	"net/url"
	"strings"
)

// Request describes one upstream call.
type Request struct {
	// Method defaults to GET.
	Method string

	// URL is absolute, or relative to the client's base URL.
	URL string

	Header http.Header
	Body   []byte
}

// Get returns a GET request for target.
func Get(target string) *Request {
	return &Request{Method: http.MethodGet, URL: target}
}

// Post returns a POST request for target carrying body.
func Post(target string, body []byte) *Request {
	return &Request{Method: http.MethodPost, URL: target, Body: body}
}

// WithHeader sets a request header and returns the request.
func (r *Request) WithHeader(key, value string) *Request {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Header.Set(key, value)
	return r
}

func (r *Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// resolveURL joins target onto base when target has no scheme.
func resolveURL(base *url.URL, target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if u.IsAbs() || base == nil {
		return u.String(), nil
	}

	joined := *base
	joined.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(u.Path, "/")
	joined.RawPath = ""
	joined.RawQuery = u.RawQuery
	joined.Fragment = ""
	return joined.String(), nil
}
