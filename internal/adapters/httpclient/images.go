package httpclient

import (
	"regexp"
	"strings"
)

const DefaultBaseURL = "http://localhost:8000"

var absoluteURL = regexp.MustCompile(`(?i)^(https?:)?//`)

// ResolveImageURL turns a backend image reference into something fetchable.
// Absolute, protocol-relative and data: URLs pass through, as does anything
// outside /static/. Static paths are joined to base and encoded like
// JavaScript's encodeURI.
func ResolveImageURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	if absoluteURL.MatchString(ref) || strings.HasPrefix(ref, "data:") {
		return ref
	}
	if !strings.HasPrefix(ref, "/static/") {
		return ref
	}
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return encodeURI(base + ref)
}

// ImageURL resolves an optional image reference against the client's base.
func (c *Client) ImageURL(ref *string) string {
	if ref == nil {
		return ""
	}
	return ResolveImageURL(c.base, *ref)
}

const uriKeep = ";,/?:@&=+$-_.!~*'()#"

func encodeURI(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch < 0x80 && (isAlnum(ch) || strings.IndexByte(uriKeep, ch) >= 0) {
			b.WriteByte(ch)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[ch>>4])
		b.WriteByte(hex[ch&0x0f])
	}
	return b.String()
}

func isAlnum(ch byte) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ('0' <= ch && ch <= '9')
}
