package status

import "time"

// ServerStatus is the server status document.
type ServerStatus struct {
	LoginOnline bool      `json:"login_online"`
	CharOnline  bool      `json:"char_online"`
	MapOnline   bool      `json:"map_online"`
	Players     int       `json:"players,omitempty"`
	Message     string    `json:"message,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
}

// Online reports whether every server is up.
func (s *ServerStatus) Online() bool {
	return s.LoginOnline && s.CharOnline && s.MapOnline
}

// ParseServerStatus decodes a server status document. The three online
// flags are required.
func ParseServerStatus(data []byte) (*ServerStatus, error) {
	doc, err := parseDocument("server status", data)
	if err != nil {
		return nil, err
	}
	st := &ServerStatus{}
	if st.LoginOnline, err = doc.requiredBool("login_online"); err != nil {
		return nil, err
	}
	if st.CharOnline, err = doc.requiredBool("char_online"); err != nil {
		return nil, err
	}
	if st.MapOnline, err = doc.requiredBool("map_online"); err != nil {
		return nil, err
	}
	if st.Players, err = doc.optionalInt("players"); err != nil {
		return nil, err
	}
	if st.Message, err = doc.optionalString("message"); err != nil {
		return nil, err
	}
	checked, err := doc.optionalString("checked_at")
	if err != nil {
		return nil, err
	}
	if checked != "" {
		t, perr := time.Parse(time.RFC3339, checked)
		if perr != nil {
			return nil, doc.fieldError("checked_at", "expected an RFC 3339 timestamp")
		}
		st.CheckedAt = t
	}
	return st, nil
}
