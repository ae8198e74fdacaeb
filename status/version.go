package status

import (
	"strconv"
	"strings"
)

// VersionInfo is the version-check document.
type VersionInfo struct {
	Version     string `json:"version"`
	DownloadURL string `json:"download_url,omitempty"`
	Changelog   string `json:"changelog,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ParseVersion decodes a version-check document. Only "version" is
// required.
func ParseVersion(data []byte) (*VersionInfo, error) {
	doc, err := parseDocument("version", data)
	if err != nil {
		return nil, err
	}
	info := &VersionInfo{}
	if info.Version, err = doc.requiredString("version"); err != nil {
		return nil, err
	}
	if info.DownloadURL, err = doc.optionalString("download_url"); err != nil {
		return nil, err
	}
	if info.Changelog, err = doc.optionalString("changelog"); err != nil {
		return nil, err
	}
	if info.Required, err = doc.optionalBool("required"); err != nil {
		return nil, err
	}
	return info, nil
}

// NewerThan reports whether v is a later release than current. Dotted
// numeric versions compare numerically; anything else compares unequal
// strings as newer.
func (v *VersionInfo) NewerThan(current string) bool {
	a, okA := numericVersion(v.Version)
	b, okB := numericVersion(current)
	if !okA || !okB {
		return strings.TrimPrefix(v.Version, "v") != strings.TrimPrefix(current, "v")
	}
	for i := 0; i < max(len(a), len(b)); i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			return x > y
		}
	}
	return false
}

func numericVersion(s string) ([]int, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if s == "" {
		return nil, false
	}
	parts := strings.Split(s, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}
