package gradio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"unicode/utf8"
)

// MediaRef is the media reference returned by the backend. It is either a
// Direct reference or a PathBased one.
type MediaRef interface {
	resolve(baseURL, apiPrefix string) string
	origName() string
}

// Direct is a media reference carrying a ready to use URL.
type Direct struct {
	URL      string
	OrigName string
}

func (d Direct) resolve(string, string) string { return d.URL }
func (d Direct) origName() string              { return d.OrigName }

// PathBased is a media reference pointing to a file local to the backend.
type PathBased struct {
	Path     string
	OrigName string
}

func (p PathBased) resolve(baseURL, apiPrefix string) string {
	return baseURL + apiPrefix + "/file=" + url.PathEscape(p.Path)
}

func (p PathBased) origName() string { return p.OrigName }

// Resolve returns the playable URL of a media reference.
func Resolve(ref MediaRef, baseURL, apiPrefix string) string {
	return ref.resolve(baseURL, apiPrefix)
}

type rawMediaRef struct {
	URL      *string `json:"url"`
	Path     *string `json:"path"`
	OrigName *string `json:"orig_name"`
}

// ParseMediaRef decodes a raw media reference. A url takes precedence over a
// path when both are present.
func ParseMediaRef(b json.RawMessage) (MediaRef, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil, fmt.Errorf("%w: media reference is not an object: %s", ErrUnexpectedResponseFormat, truncate(string(b)))
	}
	var raw rawMediaRef
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponseFormat, err)
	}
	name := deref(raw.OrigName)
	switch {
	case deref(raw.URL) != "":
		return Direct{URL: *raw.URL, OrigName: name}, nil
	case deref(raw.Path) != "":
		return PathBased{Path: *raw.Path, OrigName: name}, nil
	default:
		return nil, fmt.Errorf("%w: media reference without url or path: %s", ErrUnexpectedResponseFormat, truncate(string(b)))
	}
}

// displayName picks the origin name, then the description, then the path.
func displayName(ref MediaRef, description string) string {
	if n := ref.origName(); n != "" {
		return n
	}
	if description != "" {
		return description
	}
	if p, ok := ref.(PathBased); ok {
		return p.Path
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// truncate shortens s to at most 100 bytes without splitting a rune.
func truncate(s string) string {
	const max = 100
	if len(s) <= max {
		return s
	}
	i := max
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "..."
}
