package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	t.Run("known fields and extras", func(t *testing.T) {
		raw := `{"url":"https://x.com/p","referrer":"https://google.com","utm_source":"nl","custom_key":"kept","load_event":123.5}`
		p, err := ParsePayload(raw)
		require.NoError(t, err)

		assert.Equal(t, "https://x.com/p", p.URL)
		assert.Equal(t, "https://google.com", p.Referrer)
		assert.Equal(t, "nl", p.UTMSource)
		require.NotNil(t, p.LoadEventMs)
		assert.Equal(t, 123.5, *p.LoadEventMs)
		assert.Contains(t, p.Extra, "custom_key")
	})

	t.Run("empty payload", func(t *testing.T) {
		p, err := ParsePayload("")
		require.NoError(t, err)
		assert.Empty(t, p.URL)
	})

	t.Run("invalid json is an error", func(t *testing.T) {
		_, err := ParsePayload("{nope")
		require.Error(t, err)
	})

	t.Run("numeric string still parses as number", func(t *testing.T) {
		p, err := ParsePayload(`{"load_event":"250"}`)
		require.NoError(t, err)
		require.NotNil(t, p.LoadEventMs)
		assert.Equal(t, 250.0, *p.LoadEventMs)
	})

	t.Run("malformed field is dropped, not fatal", func(t *testing.T) {
		p, err := ParsePayload(`{"url":"https://x.com","load_event":{"weird":true}}`)
		require.NoError(t, err)
		assert.Equal(t, "https://x.com", p.URL)
		assert.Nil(t, p.LoadEventMs)
	})
}

func TestPayloadHasUTM(t *testing.T) {
	p, err := ParsePayload(`{"utm_campaign":"sale"}`)
	require.NoError(t, err)
	assert.True(t, p.HasUTM())

	p, err = ParsePayload(`{"utm_unknown_param":"x"}`)
	require.NoError(t, err)
	assert.True(t, p.HasUTM(), "unknown utm_ keys in the extras bag still count")

	p, err = ParsePayload(`{"url":"https://x.com"}`)
	require.NoError(t, err)
	assert.False(t, p.HasUTM())
}

func TestPayloadRoundTrip(t *testing.T) {
	raw := `{"url":"https://x.com/p","geo":{"lat":52.5,"long":13.4,"country":"Germany","city":"Berlin"},"is_returning_visitor":true,"beyond_schema":42}`
	p, err := ParsePayload(raw)
	require.NoError(t, err)

	out, err := p.MarshalJSON()
	require.NoError(t, err)

	back, err := ParsePayload(string(out))
	require.NoError(t, err)
	assert.Equal(t, p.URL, back.URL)
	require.NotNil(t, back.Geo)
	assert.Equal(t, "Berlin", back.Geo.City)
	assert.True(t, back.IsReturningVisitor)
	assert.Contains(t, back.Extra, "beyond_schema")
}

func TestParseEventTime(t *testing.T) {
	tests := []struct {
		name  string
		ts    string
		valid bool
	}{
		{name: "rfc3339", ts: "2026-08-10T09:30:00Z", valid: true},
		{name: "rfc3339 with offset", ts: "2026-08-10T09:30:00+02:00", valid: true},
		{name: "naive datetime", ts: "2026-08-10T09:30:00", valid: true},
		{name: "space separated", ts: "2026-08-10 09:30:00", valid: true},
		{name: "with microseconds", ts: "2026-08-10T09:30:00.123456", valid: true},
		{name: "date only", ts: "2026-08-10", valid: true},
		{name: "empty", ts: "", valid: false},
		{name: "garbage", ts: "yesterday-ish", valid: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := ParseEventTime(tc.ts)
			if !tc.valid {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "UTC", parsed.Location().String())
		})
	}
}
