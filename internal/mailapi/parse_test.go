package mailapi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaneholloman/zele-sub000/internal/apierr"
)

const threadPayload = `{
	"id": "t1",
	"historyId": "2001",
	"messages": [
		{
			"id": "m1",
			"threadId": "t1",
			"internalDate": "1700000000000",
			"labelIds": ["INBOX", "UNREAD"],
			"snippet": "first message",
			"payload": {
				"headers": [
					{"name": "Subject", "value": "Weekly report"},
					{"name": "From", "value": "Alice <alice@example.com>"},
					{"name": "To", "value": "team@example.com"}
				]
			}
		},
		{
			"id": "m2",
			"threadId": "t1",
			"internalDate": "1700000500000",
			"labelIds": ["INBOX", "STARRED"],
			"payload": {
				"headers": [
					{"name": "subject", "value": "Re: Weekly report"},
					{"name": "from", "value": "Bob <bob@example.com>"}
				],
				"parts": [
					{"filename": "report.pdf"}
				]
			}
		}
	]
}`

func TestParseThread(t *testing.T) {
	item, err := ParseThread(json.RawMessage(threadPayload))
	require.NoError(t, err)

	assert.Equal(t, "t1", item.ID)
	assert.Equal(t, "2001", item.Revision)
	assert.Equal(t, "Weekly report", item.Subject)
	assert.Equal(t, "Alice <alice@example.com>", item.From)
	assert.True(t, item.Unread)
	assert.True(t, item.Starred)
	assert.ElementsMatch(t, []string{"INBOX", "UNREAD", "STARRED"}, item.Labels)
	// thread date is the latest message date
	assert.Equal(t, time.UnixMilli(1700000500000).UTC(), item.Date)

	require.Len(t, item.Messages, 2)
	assert.Equal(t, "m1", item.Messages[0].ID)
	assert.False(t, item.Messages[0].HasAttachment)
	assert.True(t, item.Messages[1].HasAttachment)
	// header lookup is case-insensitive
	assert.Equal(t, "Re: Weekly report", item.Messages[1].Subject)
}

func TestParseThreadMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: `{"id": `},
		{name: "missing id", raw: `{"historyId": "5"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseThread(json.RawMessage(tt.raw))
			require.Error(t, err)
			assert.True(t, apierr.IsParse(err))
		})
	}
}

func TestParseMessage(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "m7",
		"threadId": "t3",
		"internalDate": "1700000000000",
		"labelIds": ["UNREAD"],
		"snippet": "hello",
		"payload": {
			"headers": [
				{"name": "From", "value": "carol@example.com"},
				{"name": "Cc", "value": "dave@example.com"}
			]
		}
	}`)

	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "m7", msg.ID)
	assert.Equal(t, "t3", msg.ThreadID)
	assert.Equal(t, "carol@example.com", msg.From)
	assert.Equal(t, "dave@example.com", msg.Cc)
	assert.True(t, msg.Unread)
	assert.False(t, msg.Starred)
	assert.False(t, msg.HasAttachment)
}

func TestParseMessageMalformed(t *testing.T) {
	_, err := ParseMessage(json.RawMessage(`not json`))
	require.Error(t, err)
	assert.True(t, apierr.IsParse(err))

	_, err = ParseMessage(json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, apierr.IsParse(err))
}

func TestParseLabels(t *testing.T) {
	raw := json.RawMessage(`{
		"labels": [
			{"id": "INBOX", "name": "INBOX"},
			{"id": "Label_7", "name": "receipts"}
		]
	}`)

	labels, err := ParseLabels(raw)
	require.NoError(t, err)
	assert.Equal(t, []Label{
		{ID: "INBOX", Name: "INBOX"},
		{ID: "Label_7", Name: "receipts"},
	}, labels)
}

func TestParseProfile(t *testing.T) {
	raw := json.RawMessage(`{
		"emailAddress": "alice@example.com",
		"historyId": "4711",
		"messagesTotal": 120,
		"threadsTotal": 80
	}`)

	p, err := ParseProfile(raw)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", p.Email)
	assert.Equal(t, "4711", p.Watermark)
	assert.Equal(t, int64(120), p.MessagesTotal)
	assert.Equal(t, int64(80), p.ThreadsTotal)

	_, err = ParseProfile(json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, apierr.IsParse(err))
}

func TestParseThreadRoundTripsFromCachedBytes(t *testing.T) {
	// parsing must be a pure function of the cached payload: two parses
	// of the same bytes agree
	first, err := ParseThread(json.RawMessage(threadPayload))
	require.NoError(t, err)
	second, err := ParseThread(json.RawMessage(threadPayload))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
