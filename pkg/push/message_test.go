package push_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxemics-lab/go-push-service/pkg/push"
)

func decodeBody(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func TestParseAgent(t *testing.T) {
	assert.Equal(t, push.AgentAndroid, push.ParseAgent("ANDROID"))
	assert.Equal(t, push.AgentAndroid, push.ParseAgent("android-13"))
	assert.Equal(t, push.AgentIOS, push.ParseAgent("iOS"))
	assert.Equal(t, push.AgentWeb, push.ParseAgent("Web"))
	assert.Equal(t, push.AgentUnknown, push.ParseAgent("blackberry"))
}

func TestBuild_Placement(t *testing.T) {
	t.Run("Notification on Android lands under data", func(t *testing.T) {
		msg := push.NewMessage("cust-1", "notification", "ANDROID+tok-a")
		msg.Payload["title"] = "hello"

		raw, err := msg.Build()
		require.NoError(t, err)

		body := decodeBody(t, raw)
		assert.Equal(t, "tok-a", body["to"])
		assert.Contains(t, body, "data")
		assert.NotContains(t, body, "notification")
	})

	t.Run("Notification on iOS lands under notification", func(t *testing.T) {
		msg := push.NewMessage("cust-1", "notification", "IOS+tok-i")
		msg.Payload["title"] = "hello"

		raw, err := msg.Build()
		require.NoError(t, err)

		body := decodeBody(t, raw)
		assert.Contains(t, body, "notification")
		assert.NotContains(t, body, "data")
	})

	t.Run("Data always lands under data", func(t *testing.T) {
		for _, recipient := range []string{"ANDROID+t1", "IOS+t2"} {
			msg := push.NewMessage("cust-1", "data", recipient)
			msg.Payload["k"] = "v"

			raw, err := msg.Build()
			require.NoError(t, err)

			body := decodeBody(t, raw)
			assert.Contains(t, body, "data")
			assert.NotContains(t, body, "notification")
		}
	})
}

func TestBuild_TerminalErrors(t *testing.T) {
	t.Run("Recipient without separator", func(t *testing.T) {
		msg := push.NewMessage("cust-1", "data", "no-separator-here")
		_, err := msg.Build()
		assert.ErrorIs(t, err, push.ErrBadRecipient)
	})

	t.Run("Unknown agent", func(t *testing.T) {
		msg := push.NewMessage("cust-1", "data", "SYMBIAN+tok")
		_, err := msg.Build()
		assert.ErrorIs(t, err, push.ErrUnknownAgent)
	})

	t.Run("Unknown kind", func(t *testing.T) {
		msg := push.NewMessage("cust-1", "telemetry", "ANDROID+tok")
		_, err := msg.Build()
		assert.ErrorIs(t, err, push.ErrUnknownKind)
	})

	t.Run("Notification for web has no placement", func(t *testing.T) {
		msg := push.NewMessage("cust-1", "notification", "WEB+tok")
		_, err := msg.Build()
		assert.ErrorIs(t, err, push.ErrBadPlacement)
	})
}

func TestBuild_OptionalFields(t *testing.T) {
	t.Run("Defaults stay off the wire", func(t *testing.T) {
		msg := push.NewMessage("cust-1", "data", "ANDROID+tok")

		raw, err := msg.Build()
		require.NoError(t, err)

		body := decodeBody(t, raw)
		assert.Equal(t, "normal", body["priority"])
		for _, absent := range []string{
			"registration_ids", "collapse_key", "content_available",
			"delay_while_idle", "time_to_live", "restricted_package_name", "dry_run",
		} {
			assert.NotContains(t, body, absent)
		}
	})

	t.Run("Set hints are included", func(t *testing.T) {
		msg := push.NewMessage("cust-1", "data", "ANDROID+tok")
		msg.RegistrationIDs = []string{"ANDROID+tok", "ANDROID+tok2"}
		msg.CollapseKey = "updates"
		msg.Priority = push.PriorityHigh
		msg.ContentAvailable = true
		msg.DelayWhileIdle = true
		msg.TimeToLive = 3600
		msg.RestrictedPackageName = "com.example.app"
		msg.DryRun = true

		raw, err := msg.Build()
		require.NoError(t, err)

		body := decodeBody(t, raw)
		assert.Equal(t, "high", body["priority"])
		assert.Equal(t, "updates", body["collapse_key"])
		assert.Equal(t, true, body["content_available"])
		assert.Equal(t, true, body["delay_while_idle"])
		assert.Equal(t, float64(3600), body["time_to_live"])
		assert.Equal(t, "com.example.app", body["restricted_package_name"])
		assert.Equal(t, true, body["dry_run"])
		assert.Len(t, body["registration_ids"], 2)
	})
}

func TestRecipients(t *testing.T) {
	msg := push.NewMessage("cust-1", "data", "ANDROID+tok")
	assert.Equal(t, []string{"ANDROID+tok"}, msg.Recipients())

	msg.RegistrationIDs = []string{"a", "b"}
	assert.Equal(t, []string{"a", "b"}, msg.Recipients())
}

func TestExpand(t *testing.T) {
	t.Run("Substitutes positional placeholders", func(t *testing.T) {
		msg := push.NewMessage("cust-1", "data", "ANDROID+tok")
		msg.Payload["body"] = "hi ${0}"
		msg.Instructions = []push.Instruction{{Value: "Sam"}}

		require.NoError(t, msg.Expand())
		assert.Equal(t, "hi Sam", msg.Payload["body"])
	})

	t.Run("Missing value renders Unknown", func(t *testing.T) {
		msg := push.NewMessage("cust-1", "data", "ANDROID+tok")
		msg.Payload["body"] = "hi ${0}"
		msg.Instructions = []push.Instruction{{}}

		require.NoError(t, msg.Expand())
		assert.Equal(t, "hi Unknown", msg.Payload["body"])
	})

	t.Run("Applies at most once", func(t *testing.T) {
		msg := push.NewMessage("cust-1", "data", "ANDROID+tok")
		msg.Payload["body"] = "hi ${0}"
		msg.Instructions = []push.Instruction{{Value: "Sam"}}

		require.NoError(t, msg.Expand())

		// A second pass must not touch the payload even if it regains a
		// placeholder-looking value.
		msg.Payload["body"] = "again ${0}"
		require.NoError(t, msg.Expand())
		assert.Equal(t, "again ${0}", msg.Payload["body"])
	})
}

func TestStopSentinel(t *testing.T) {
	assert.True(t, push.NewStopMessage().IsStop())
	assert.False(t, push.NewMessage("cust-1", "data", "ANDROID+tok").IsStop())
}
