package store

import (
	"net/url"
	"strings"
)

// NormalizeUploadRef rewrites a photo reference to its server-relative
// /uploads/ path when possible. Absolute URLs pointing at an /uploads/ path
// lose their host so the ref survives a host or port change. Anything else
// passes through trimmed.
func NormalizeUploadRef(ref string) string {
	s := strings.TrimSpace(ref)
	if s == "" {
		return ""
	}
	if p := uploadsPathFromRef(s); p != "" {
		return p
	}
	return s
}

func uploadsPathFromRef(s string) string {
	if strings.HasPrefix(s, "/uploads/") {
		return s
	}
	if strings.HasPrefix(s, "uploads/") {
		return "/" + s
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		u, err := url.Parse(s)
		if err == nil && strings.HasPrefix(u.Path, "/uploads/") {
			return u.Path
		}
	}
	return ""
}

func normalizeRefPtr(ref *string) *string {
	if ref == nil {
		return nil
	}
	n := NormalizeUploadRef(*ref)
	if n == "" {
		return nil
	}
	return &n
}
