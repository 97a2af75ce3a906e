// Package api exposes the session and user lifecycle over HTTP: opening
// and closing the study session, managing participants and their
// preferences, and submitting notifications for dispatch.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/proxemics-lab/go-push-service/internal/session"
	"github.com/proxemics-lab/go-push-service/pkg/dispatch"
	"github.com/proxemics-lab/go-push-service/pkg/push"
)

// SessionAPI owns the single active session and the handlers around it.
// The dispatcher and token store are injected; the API never blocks on
// delivery.
type SessionAPI struct {
	passkey   string
	store     dispatch.TokenStore
	submitter dispatch.Submitter
	logger    *slog.Logger

	mu      sync.Mutex
	current *session.Session
}

func NewSessionAPI(passkey string, store dispatch.TokenStore, submitter dispatch.Submitter, logger *slog.Logger) *SessionAPI {
	return &SessionAPI{
		passkey:   passkey,
		store:     store,
		submitter: submitter,
		logger:    logger.With("component", "SessionAPI"),
	}
}

// Routes mounts the session surface on a chi router.
func (a *SessionAPI) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/sessions", a.SessionOperation)
	r.Get("/sessions/{sessionID}", a.GetSession)
	r.Post("/sessions/users", a.AddUser)
	r.Get("/sessions/users", a.ListUsers)
	r.Delete("/sessions/users/{name}", a.RemoveUser)
	r.Put("/sessions/users/{name}", a.UpdatePreference)
	r.Post("/sessions/users/{name}/notify", a.NotifyUser)
	return r
}

// envelope is the uniform response body.
type envelope struct {
	Status  int           `json:"status"`
	Message string        `json:"message"`
	Session *session.Info `json:"session,omitempty"`
	Users   []string      `json:"users,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, status int, body envelope) {
	body.Status = status
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// activeSession returns the current session only while it is open.
func (a *SessionAPI) activeSession() *session.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil || !a.current.Active() {
		return nil
	}
	return a.current
}

type sessionRequest struct {
	Status  session.Status `json:"status"`
	Passkey string         `json:"passkey"`
	Name    string         `json:"name"`
}

// SessionOperation opens or closes the session depending on the requested
// status. Opening requires the passkey and a session name; asking to open
// while a session is already active reports the existing one.
func (a *SessionAPI) SessionOperation(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: "invalid json"})
		return
	}
	if req.Status == "" {
		a.logger.Error("session operation without a requested status")
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: "Status for the session not specified"})
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil && a.current.Active() && req.Status == session.StatusActive {
		a.logger.Warn("a session is already active, cannot handle multiple sessions")
		info := a.current.Info()
		writeEnvelope(w, http.StatusOK, envelope{Message: "Session Already Started", Session: &info})
		return
	}

	if req.Passkey != a.passkey {
		a.logger.Error("session passkey missing or incorrect")
		writeEnvelope(w, http.StatusUnauthorized, envelope{Message: "passkey field not set or incorrect"})
		return
	}

	switch req.Status {
	case session.StatusActive:
		if req.Name == "" {
			writeEnvelope(w, http.StatusBadRequest, envelope{Message: "Name for the session not specified"})
			return
		}
		a.current = session.New(req.Name)
		a.logger.Info("new session created", "session_id", a.current.ID(), "name", req.Name)
		info := a.current.Info()
		writeEnvelope(w, http.StatusCreated, envelope{Message: "New Session Created", Session: &info})

	case session.StatusInactive:
		var info *session.Info
		if a.current != nil {
			a.current.Close()
			snapshot := a.current.Info()
			info = &snapshot
			a.logger.Info("session closed", "session_id", a.current.ID())
		}
		writeEnvelope(w, http.StatusOK, envelope{Message: "Session Closed", Session: info})

	default:
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: "Unknown Invalid Request"})
	}
}

// GetSession returns the active session when the path ID matches it.
func (a *SessionAPI) GetSession(w http.ResponseWriter, r *http.Request) {
	active := a.activeSession()
	if active == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if chi.URLParam(r, "sessionID") != active.ID() {
		writeEnvelope(w, http.StatusUnauthorized, envelope{Message: "unknown session"})
		return
	}
	info := active.Info()
	writeEnvelope(w, http.StatusOK, envelope{Message: "Session Active", Session: &info})
}

type addUserRequest struct {
	Name      string              `json:"name"`
	PushToken string              `json:"pushToken"`
	Pref      *session.Preference `json:"pref"`
}

// AddUser registers a participant and their device token.
func (a *SessionAPI) AddUser(w http.ResponseWriter, r *http.Request) {
	active := a.activeSession()
	if active == nil {
		a.logger.Error("cannot add user: no active session")
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: "Session not initiated, Please Start a session before adding user"})
		return
	}

	var req addUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: "invalid json"})
		return
	}
	if req.Name == "" || req.PushToken == "" || req.Pref == nil {
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: "Invalid user input"})
		return
	}

	user := &session.User{Name: req.Name, PushToken: req.PushToken, Pref: *req.Pref}
	if !active.AddUser(user) {
		a.logger.Error("user already added", "name", req.Name)
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: "User already added"})
		return
	}

	// Store failures never reach the caller; the session still holds the
	// token for dispatch.
	if err := a.store.RegisterToken(r.Context(), req.Name, push.ParseAgent(req.PushToken), req.PushToken); err != nil {
		a.logger.Warn("failed to persist device token", "name", req.Name, "err", err)
	}

	a.logger.Info("user added", "name", req.Name)
	writeEnvelope(w, http.StatusOK, envelope{Message: "User added successfully"})
}

// RemoveUser drops a participant and unregisters their token.
func (a *SessionAPI) RemoveUser(w http.ResponseWriter, r *http.Request) {
	active := a.activeSession()
	if active == nil {
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: "No active session"})
		return
	}

	name := chi.URLParam(r, "name")
	a.logger.Info("removing user", "name", name)

	if removed := active.RemoveUser(name); removed != nil {
		if err := a.store.RemoveToken(r.Context(), name, removed.PushToken); err != nil {
			a.logger.Warn("failed to remove device token", "name", name, "err", err)
		}
	}
	writeEnvelope(w, http.StatusOK, envelope{Message: "User removed"})
}

type updatePreferenceRequest struct {
	Pref *session.Preference `json:"pref"`
}

// UpdatePreference replaces the participant's preference.
func (a *SessionAPI) UpdatePreference(w http.ResponseWriter, r *http.Request) {
	active := a.activeSession()
	if active == nil {
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: "No active session"})
		return
	}

	var req updatePreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pref == nil {
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: "Incomplete Request"})
		return
	}

	name := chi.URLParam(r, "name")
	if !active.UpdatePreference(name, *req.Pref) {
		a.logger.Warn("preference update for unknown user", "name", name)
	}
	writeEnvelope(w, http.StatusOK, envelope{Message: "User spec updated successfully"})
}

// ListUsers returns the participant names.
func (a *SessionAPI) ListUsers(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	current := a.current
	a.mu.Unlock()
	if current == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeEnvelope(w, http.StatusOK, envelope{Message: "Active users", Users: current.UserNames()})
}

type notifyRequest struct {
	Passkey          string             `json:"passkey"`
	MessageType      string             `json:"messageType"`
	Message          map[string]any     `json:"message"`
	BuildInstruction []push.Instruction `json:"buildInstruction"`

	CollapseKey string `json:"collapseKey"`
	Priority    string `json:"priority"`
	TimeToLive  int64  `json:"timeToLive"`
	DryRun      bool   `json:"dryRun"`
}

// NotifyUser builds a push message for the named participant's device and
// hands it to the dispatcher. Submission is fire-and-forget: a 200 means
// enqueued, not delivered.
func (a *SessionAPI) NotifyUser(w http.ResponseWriter, r *http.Request) {
	active := a.activeSession()
	if active == nil {
		writeEnvelope(w, http.StatusUnauthorized, envelope{Message: "Session already closed"})
		return
	}

	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: "invalid json"})
		return
	}
	if req.Passkey == "" || req.Message == nil {
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: "The Request does not contain passkey and or message"})
		return
	}
	if req.Passkey != a.passkey {
		writeEnvelope(w, http.StatusUnauthorized, envelope{Message: "Could not verify the security key"})
		return
	}

	name := chi.URLParam(r, "name")
	user, ok := active.User(name)
	if !ok {
		writeEnvelope(w, http.StatusBadRequest, envelope{Message: "Unknown user"})
		return
	}

	kind := req.MessageType
	if kind == "" {
		kind = string(push.KindNotification)
	}

	msg := push.NewMessage(name, kind, user.PushToken)
	msg.Payload = req.Message
	msg.Instructions = req.BuildInstruction
	msg.CollapseKey = req.CollapseKey
	if req.Priority == string(push.PriorityHigh) {
		msg.Priority = push.PriorityHigh
	}
	msg.TimeToLive = req.TimeToLive
	msg.DryRun = req.DryRun

	a.submitter.Submit(msg)
	writeEnvelope(w, http.StatusOK, envelope{Message: "Notification queued"})
}
