// Package urlkey encodes URLs into sort-friendly row keys.
//
// A row key is the URL authority with its DNS labels reversed followed by the
// remainder of the URL untouched, so rows of one domain and its subdomains sort
// next to each other:
//
//	http://www.example.com/a/b  ->  com.example.www/a/b
//	http://example.com          ->  com.example/
//	dns:example.com             ->  com.example
//
// The scheme and any userinfo are discarded. Encoding never fails: input that
// does not look like a URL is returned unchanged.
package urlkey

import (
	"regexp"
	"strings"
)

const dnsPrefix = "dns:"

// uriParser captures (scheme://[userinfo@]) (authority) (remainder).
var uriParser = regexp.MustCompile(`^([^:/?#]+://(?:[^/?#@]+@)?)([^:/?#]+)(.*)$`)

// Encode returns the row key for rawURL as raw bytes.
func Encode(rawURL string) []byte {
	return []byte(EncodeString(rawURL))
}

// EncodeString returns the row key for rawURL.
func EncodeString(rawURL string) string {
	if rawURL == "" {
		return rawURL
	}
	m := uriParser.FindStringSubmatch(rawURL)
	if m == nil {
		// dns "URLs" carry no scheme separator.
		if strings.HasPrefix(rawURL, dnsPrefix) {
			return ReverseHost(rawURL[len(dnsPrefix):])
		}
		return rawURL
	}
	host, rest := m[2], m[3]
	if rest == "" {
		rest = "/"
	}
	return ReverseHost(host) + rest
}

// ReverseHost reverses the dot-separated labels of host. Empty labels are dropped.
func ReverseHost(host string) string {
	labels := strings.FieldsFunc(host, func(r rune) bool { return r == '.' })
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}
	return strings.Join(labels, ".")
}
