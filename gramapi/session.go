package gramapi

import (
	"encoding/json"
	"fmt"
	"time"
)

// Session is the serializable authenticated client state: device identity,
// auth token and cookies. It is created by Login, persisted through the
// session store, and reused across restarts without re-sending credentials.
type Session struct {
	Username  string            `json:"username"`
	UserID    int64             `json:"user_id"`
	DeviceID  string            `json:"device_id"`
	Device    DeviceProfile     `json:"device"`
	AuthToken string            `json:"auth_token"`
	Cookies   map[string]string `json:"cookies,omitempty"`
	SavedAt   time.Time         `json:"saved_at"`
}

// Marshal serializes the session for storage.
func (s *Session) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSession parses a stored session blob. A corrupted blob is an
// error; callers treat it the same as an absent session.
func UnmarshalSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	if s.Username == "" || s.AuthToken == "" {
		return nil, fmt.Errorf("parse session: missing username or token")
	}
	return &s, nil
}
