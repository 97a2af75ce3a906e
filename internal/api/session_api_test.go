package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/proxemics-lab/go-push-service/internal/api"
	"github.com/proxemics-lab/go-push-service/pkg/push"
)

const testPasskey = "sesame"

// --- Mocks ---

type mockTokenStore struct {
	mock.Mock
}

func (m *mockTokenStore) RegisterToken(ctx context.Context, customerID string, agent push.Agent, token string) error {
	return m.Called(ctx, customerID, agent, token).Error(0)
}
func (m *mockTokenStore) RemoveToken(ctx context.Context, customerID, token string) error {
	return m.Called(ctx, customerID, token).Error(0)
}
func (m *mockTokenStore) ReplaceToken(ctx context.Context, customerID string, agent push.Agent, newToken, oldToken string) error {
	return m.Called(ctx, customerID, agent, newToken, oldToken).Error(0)
}
func (m *mockTokenStore) Tokens(ctx context.Context, customerID string) ([]string, error) {
	args := m.Called(ctx, customerID)
	return args.Get(0).([]string), args.Error(1)
}

type capturingSubmitter struct {
	messages []*push.Message
}

func (c *capturingSubmitter) Submit(msg *push.Message) {
	c.messages = append(c.messages, msg)
}

// --- Setup ---

func setupAPI(t *testing.T) (*api.SessionAPI, http.Handler, *mockTokenStore, *capturingSubmitter) {
	t.Helper()
	store := new(mockTokenStore)
	submitter := &capturingSubmitter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := api.NewSessionAPI(testPasskey, store, submitter, logger)
	return a, a.Routes(), store, submitter
}

func doJSON(t *testing.T, handler http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func openSession(t *testing.T, handler http.Handler) string {
	t.Helper()
	w := doJSON(t, handler, http.MethodPost, "/sessions", map[string]string{
		"status": "ACTIVE", "passkey": testPasskey, "name": "study-a",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Session.ID)
	return resp.Session.ID
}

// --- Tests ---

func TestSessionOperation(t *testing.T) {
	t.Run("Open requires passkey", func(t *testing.T) {
		_, handler, _, _ := setupAPI(t)
		w := doJSON(t, handler, http.MethodPost, "/sessions", map[string]string{
			"status": "ACTIVE", "passkey": "wrong", "name": "study-a",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Open requires a name", func(t *testing.T) {
		_, handler, _, _ := setupAPI(t)
		w := doJSON(t, handler, http.MethodPost, "/sessions", map[string]string{
			"status": "ACTIVE", "passkey": testPasskey,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Missing status is rejected", func(t *testing.T) {
		_, handler, _, _ := setupAPI(t)
		w := doJSON(t, handler, http.MethodPost, "/sessions", map[string]string{"passkey": testPasskey})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Second open reports the existing session", func(t *testing.T) {
		_, handler, _, _ := setupAPI(t)
		id := openSession(t, handler)

		w := doJSON(t, handler, http.MethodPost, "/sessions", map[string]string{
			"status": "ACTIVE", "passkey": testPasskey, "name": "study-b",
		})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), id)
	})

	t.Run("Close then fetch yields no content", func(t *testing.T) {
		_, handler, _, _ := setupAPI(t)
		id := openSession(t, handler)

		w := doJSON(t, handler, http.MethodPost, "/sessions", map[string]string{
			"status": "INACTIVE", "passkey": testPasskey,
		})
		assert.Equal(t, http.StatusOK, w.Code)

		w = doJSON(t, handler, http.MethodGet, "/sessions/"+id, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestGetSession(t *testing.T) {
	_, handler, _, _ := setupAPI(t)

	t.Run("No session yields 204", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodGet, "/sessions/anything", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	id := openSession(t, handler)

	t.Run("Wrong id is unauthorized", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodGet, "/sessions/not-the-id", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Matching id returns the session", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodGet, "/sessions/"+id, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "study-a")
	})
}

func TestUserManagement(t *testing.T) {
	_, handler, store, _ := setupAPI(t)

	t.Run("Add before session start fails", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodPost, "/sessions/users", map[string]any{
			"name": "sam", "pushToken": "ANDROID+t1", "pref": map[string]any{"distance": 1.0},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	openSession(t, handler)

	t.Run("Add registers the device token", func(t *testing.T) {
		store.On("RegisterToken", mock.Anything, "sam", push.AgentAndroid, "ANDROID+t1").Return(nil)

		w := doJSON(t, handler, http.MethodPost, "/sessions/users", map[string]any{
			"name": "sam", "pushToken": "ANDROID+t1", "pref": map[string]any{"distance": 1.0},
		})
		assert.Equal(t, http.StatusOK, w.Code)
		store.AssertExpectations(t)
	})

	t.Run("Duplicate user is rejected", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodPost, "/sessions/users", map[string]any{
			"name": "sam", "pushToken": "ANDROID+t2", "pref": map[string]any{"distance": 1.0},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Incomplete user is rejected", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodPost, "/sessions/users", map[string]any{
			"name": "pat",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Listing returns names", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodGet, "/sessions/users", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "sam")
	})

	t.Run("Preference update", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodPut, "/sessions/users/sam", map[string]any{
			"pref": map[string]any{"distance": 2.5},
		})
		assert.Equal(t, http.StatusOK, w.Code)

		w = doJSON(t, handler, http.MethodPut, "/sessions/users/sam", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Remove unregisters the token", func(t *testing.T) {
		store.On("RemoveToken", mock.Anything, "sam", "ANDROID+t1").Return(nil)

		w := doJSON(t, handler, http.MethodDelete, "/sessions/users/sam", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		store.AssertExpectations(t)
	})
}

func TestNotifyUser(t *testing.T) {
	_, handler, store, submitter := setupAPI(t)
	openSession(t, handler)

	store.On("RegisterToken", mock.Anything, "sam", push.AgentAndroid, "ANDROID+t1").Return(nil)
	w := doJSON(t, handler, http.MethodPost, "/sessions/users", map[string]any{
		"name": "sam", "pushToken": "ANDROID+t1", "pref": map[string]any{"distance": 1.0},
	})
	require.Equal(t, http.StatusOK, w.Code)

	t.Run("Wrong passkey is unauthorized", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodPost, "/sessions/users/sam/notify", map[string]any{
			"passkey": "wrong", "message": map[string]any{"body": "hi"},
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Empty(t, submitter.messages)
	})

	t.Run("Missing message is rejected", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodPost, "/sessions/users/sam/notify", map[string]any{
			"passkey": testPasskey,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Unknown user is rejected", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodPost, "/sessions/users/nobody/notify", map[string]any{
			"passkey": testPasskey, "message": map[string]any{"body": "hi"},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Valid notify submits a message", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodPost, "/sessions/users/sam/notify", map[string]any{
			"passkey":          testPasskey,
			"messageType":      "data",
			"message":          map[string]any{"body": "hi ${0}"},
			"buildInstruction": []map[string]any{{"value": "Sam"}},
			"priority":         "high",
			"timeToLive":       60,
		})
		assert.Equal(t, http.StatusOK, w.Code)

		require.Len(t, submitter.messages, 1)
		msg := submitter.messages[0]
		assert.Equal(t, "sam", msg.CustomerID)
		assert.Equal(t, "ANDROID+t1", msg.To)
		assert.Equal(t, push.KindData, msg.Kind)
		assert.Equal(t, push.PriorityHigh, msg.Priority)
		assert.Equal(t, int64(60), msg.TimeToLive)
		require.Len(t, msg.Instructions, 1)
		assert.Equal(t, "Sam", msg.Instructions[0].Value)
	})

	t.Run("Closed session is unauthorized", func(t *testing.T) {
		w := doJSON(t, handler, http.MethodPost, "/sessions", map[string]string{
			"status": "INACTIVE", "passkey": testPasskey,
		})
		require.Equal(t, http.StatusOK, w.Code)

		w = doJSON(t, handler, http.MethodPost, "/sessions/users/sam/notify", map[string]any{
			"passkey": testPasskey, "message": map[string]any{"body": "hi"},
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
