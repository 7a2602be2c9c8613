package endpoint

import (
	"net/url"
	"strconv"
	"strings"
)

// Base describes the origin the canonical URL is built against. It stands in
// for the serving page's location: a secure origin selects wss.
type Base struct {
	Host   string // host or host:port
	Secure bool
}

// Params is a typed parameter bag extracted from a query string.
type Params map[string]any

// Resolved is the outcome of normalizing a caller-supplied endpoint.
type Resolved struct {
	URL        string // canonical ws(s):// address
	StreamType string
	Params     Params
}

// canonicalPrefix is the only path shape the backend serves today.
const canonicalPrefix = "/api/aui/ws/"

// Path prefixes still accepted from older callers.
var legacyPrefixes = []string{
	"/api/aui/stream/",
	"/api/demo/stream/",
}

// Deprecated stream-type names and the types they merged into.
var streamTypeAliases = map[string]string{
	"lesson-demo": "lesson",
	"story-demo":  "story",
}

// wordsKey is reserved: its comma-separated value becomes a string slice.
const wordsKey = "words"

// Resolve maps any accepted endpoint form to the canonical URL plus the
// typed parameters carried in its query string. It never fails: input that
// does not parse as a URL is treated as a bare stream-type token with no
// parameters.
func Resolve(raw string, base Base) Resolved {
	path := raw
	params := Params{}

	if u, err := url.Parse(raw); err == nil {
		path = u.Path
		if path == "" {
			path = u.Opaque
		}
		params = coerceQuery(u.Query())
	}

	streamType := resolveStreamType(path)

	scheme := "ws"
	if base.Secure {
		scheme = "wss"
	}

	return Resolved{
		URL:        scheme + "://" + base.Host + canonicalPrefix + streamType,
		StreamType: streamType,
		Params:     params,
	}
}

// resolveStreamType strips a recognized path prefix and applies the alias
// table. A path matching no known prefix is the stream type itself.
func resolveStreamType(path string) string {
	streamType := path
	if strings.HasPrefix(path, canonicalPrefix) {
		streamType = strings.TrimPrefix(path, canonicalPrefix)
	} else {
		for _, prefix := range legacyPrefixes {
			if strings.HasPrefix(path, prefix) {
				streamType = strings.TrimPrefix(path, prefix)
				break
			}
		}
	}

	streamType = strings.Trim(streamType, "/")
	if current, ok := streamTypeAliases[streamType]; ok {
		streamType = current
	}
	return streamType
}

func coerceQuery(query url.Values) Params {
	params := Params{}
	for key, values := range query {
		if len(values) == 0 {
			continue
		}
		params[key] = coerceValue(key, values[0])
	}
	return params
}

// coerceValue applies the fixed coercion rules: "true"/"false" become bools,
// numeric strings become numbers, the reserved words key becomes a trimmed
// string slice, and everything else stays a string.
func coerceValue(key, value string) any {
	if key == wordsKey {
		return splitWords(value)
	}

	switch value {
	case "true":
		return true
	case "false":
		return false
	}

	if value != "" {
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			return n
		}
	}

	return value
}

func splitWords(value string) []string {
	parts := strings.Split(value, ",")
	words := make([]string, 0, len(parts))
	for _, part := range parts {
		if word := strings.TrimSpace(part); word != "" {
			words = append(words, word)
		}
	}
	return words
}
