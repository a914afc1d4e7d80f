package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Fingerprint derives a deterministic cache key from the request's
// method, path and query string. Query parameters are sorted so that
// semantically equal URLs share a key regardless of parameter order.
func Fingerprint(r *http.Request) string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte('\n')
	b.WriteString(r.URL.Path)
	b.WriteByte('\n')
	b.WriteString(canonicalQuery(r.URL.Query()))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// canonicalQuery renders query values in sorted key and value order.
func canonicalQuery(query url.Values) string {
	if len(query) == 0 {
		return ""
	}

	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var parts []string
	for _, key := range keys {
		values := append([]string(nil), query[key]...)
		sort.Strings(values)
		for _, v := range values {
			parts = append(parts, key+"="+v)
		}
	}

	return strings.Join(parts, "&")
}
