// Package session holds the in-memory model for one proxemics study
// session and its participants. It is plain CRUD over a guarded map; the
// session is owned by the service and passed to the API explicitly.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status of a session.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Preference is the per-user study preference.
type Preference struct {
	Distance float64 `json:"distance"`
}

// User is one study participant. The push token is the device address used
// to notify them; it never leaves the server in API responses.
type User struct {
	Name      string     `json:"name"`
	PushToken string     `json:"-"`
	Pref      Preference `json:"pref"`
}

// Session is a single research session. All methods are safe for
// concurrent use.
type Session struct {
	mu sync.Mutex

	id        string
	name      string
	startedAt time.Time
	endedAt   time.Time
	status    Status
	users     map[string]*User
}

// New opens a fresh active session.
func New(name string) *Session {
	return &Session{
		id:        uuid.NewString(),
		name:      name,
		startedAt: time.Now(),
		status:    StatusActive,
		users:     make(map[string]*User),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Name() string {
	return s.name
}

// Active reports whether the session is still open.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusActive
}

// Close marks the session inactive and stamps the end time. Closing an
// already-closed session is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusInactive {
		return
	}
	s.status = StatusInactive
	s.endedAt = time.Now()
}

// AddUser registers a participant. It reports false when a user with the
// same name is already present.
func (s *Session) AddUser(user *User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.Name]; exists {
		return false
	}
	s.users[user.Name] = user
	return true
}

// RemoveUser drops a participant. Removing an unknown name is a no-op; the
// removed user (if any) is returned so the caller can unregister their
// device token.
func (s *Session) RemoveUser(name string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[name]
	delete(s.users, name)
	return user
}

// User looks up a participant by name.
func (s *Session) User(name string) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[name]
	return user, ok
}

// UpdatePreference replaces the preference of the named participant. It
// reports false when the user is not part of the session.
func (s *Session) UpdatePreference(name string, pref Preference) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[name]
	if !ok {
		return false
	}
	user.Pref = pref
	return true
}

// UserNames lists the participants.
func (s *Session) UserNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.users))
	for name := range s.users {
		names = append(names, name)
	}
	return names
}

// Info is the serializable session summary.
type Info struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartDate int64  `json:"startDate"`
	EndDate   int64  `json:"endDate,omitempty"`
	Status    Status `json:"status"`
}

// Info snapshots the session summary for API responses.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:        s.id,
		Name:      s.name,
		StartDate: s.startedAt.UnixMilli(),
		Status:    s.status,
	}
	if !s.endedAt.IsZero() {
		info.EndDate = s.endedAt.UnixMilli()
	}
	return info
}
