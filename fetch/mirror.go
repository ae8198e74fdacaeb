package fetch

import (
	"net/url"
	"slices"
	"strings"
)

// Mirror is one download origin.
type Mirror struct {
	Name     string
	BaseURL  string
	Priority int
}

// URL returns the address of file on the mirror.
func (m Mirror) URL(file string) string {
	base := strings.TrimRight(m.BaseURL, "/")
	parts := strings.Split(strings.ReplaceAll(file, "\\", "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return base + "/" + strings.Join(parts, "/")
}

func (m Mirror) label() string {
	if m.Name != "" {
		return m.Name
	}
	return m.BaseURL
}

// MirrorSet is an immutable, priority-ordered list of mirrors.
type MirrorSet struct {
	mirrors []Mirror
	skipped []Mirror
}

// NewMirrorSet sorts mirrors by ascending priority. Ties keep the given
// order. Mirrors without a base URL are dropped and reported by Skipped.
func NewMirrorSet(mirrors ...Mirror) *MirrorSet {
	s := &MirrorSet{}
	for _, m := range mirrors {
		if strings.TrimSpace(m.BaseURL) == "" {
			s.skipped = append(s.skipped, m)
			continue
		}
		s.mirrors = append(s.mirrors, m)
	}
	slices.SortStableFunc(s.mirrors, func(a, b Mirror) int {
		return a.Priority - b.Priority
	})
	return s
}

// All returns the usable mirrors in preference order.
func (s *MirrorSet) All() []Mirror {
	if s == nil {
		return nil
	}
	return slices.Clone(s.mirrors)
}

// Skipped returns the mirrors dropped for having no base URL.
func (s *MirrorSet) Skipped() []Mirror {
	if s == nil {
		return nil
	}
	return slices.Clone(s.skipped)
}

// Len returns the number of usable mirrors.
func (s *MirrorSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.mirrors)
}
