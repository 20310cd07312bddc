package fetch

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Key returns the cache key of req.
//
// The key has the form
//
//	METHOD scheme://host/path?sorted-query [h:name=value&...] [b:digest]
//
// Query parameters and headers are sorted by name, header names are
// lowercased, scheme and host are lowercased, and the fragment is dropped.
// The body contributes its xxhash digest. Two requests with the same
// method, target, headers, and body therefore share a key regardless of
// how their options were ordered.
func Key(req *Request) string {
	if req == nil {
		return ""
	}

	parts := []string{req.method(), normalizeURL(req.URL)}

	if h := headerPart(req); h != "" {
		parts = append(parts, h)
	}
	if len(req.Body) > 0 {
		parts = append(parts, "b:"+strconv.FormatUint(xxhash.Sum64(req.Body), 16))
	}

	return strings.Join(parts, " ")
}

// normalizeURL canonicalizes raw, returning it unchanged if it does not parse.
func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	// Encode sorts by key and keeps the order of repeated values.
	u.RawQuery = u.Query().Encode()

	return u.String()
}

// headerPart builds the header part of the key.
func headerPart(req *Request) string {
	if len(req.Header) == 0 {
		return ""
	}

	parts := make([]string, 0, len(req.Header))
	for name, values := range req.Header {
		if len(values) == 0 {
			continue
		}
		parts = append(parts, strings.ToLower(name)+"="+strings.Join(values, ","))
	}
	sort.Strings(parts)

	if len(parts) == 0 {
		return ""
	}
	return "h:" + strings.Join(parts, "&")
}
