package query

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shaneholloman/zele-sub000/internal/mailapi"
)

func sampleMessage() *mailapi.ParsedMessage {
	return &mailapi.ParsedMessage{
		ID:            "m1",
		Subject:       "Weekly report for Q3",
		From:          "Bob Smith <bob@example.com>",
		To:            "team@example.com",
		Cc:            "carol@example.com",
		Labels:        []string{"INBOX", "receipts"},
		Unread:        true,
		Starred:       false,
		HasAttachment: true,
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected bool
	}{
		{name: "empty query matches", query: "", expected: true},
		{name: "from operator", query: "from:bob", expected: true},
		{name: "from operator no match", query: "from:alice", expected: false},
		{name: "negated from excluding alice", query: "-from:alice", expected: true},
		{name: "negated from excluding bob", query: "-from:bob", expected: false},
		{name: "to operator", query: "to:team@example.com", expected: true},
		{name: "cc operator", query: "cc:carol", expected: true},
		{name: "subject operator", query: "subject:report", expected: true},
		{name: "subject quoted phrase", query: `subject:"weekly report"`, expected: true},
		{name: "subject quoted phrase word order matters", query: `subject:"report weekly"`, expected: false},
		{name: "terms are AND combined", query: "from:bob subject:report", expected: true},
		{name: "one failing term fails the conjunction", query: "from:bob subject:invoice", expected: false},
		{name: "spec example", query: `-from:alice subject:"weekly report"`, expected: true},
		{name: "spec example negation trips", query: `-from:bob subject:"weekly report"`, expected: false},
		{name: "label operator", query: "label:receipts", expected: true},
		{name: "label is exact not substring", query: "label:receipt", expected: false},
		{name: "is unread", query: "is:unread", expected: true},
		{name: "is read", query: "is:read", expected: false},
		{name: "is starred", query: "is:starred", expected: false},
		{name: "negated is starred", query: "-is:starred", expected: true},
		{name: "has attachment", query: "has:attachment", expected: true},
		{name: "bare term matches subject", query: "weekly", expected: true},
		{name: "bare term matches sender display", query: "smith", expected: true},
		{name: "bare term no match", query: "invoice", expected: false},
		{name: "bare quoted phrase", query: `"weekly report"`, expected: true},
		{name: "unknown operator ignored", query: "newer_than:2d", expected: true},
		{name: "unknown operator never fails a conjunction", query: "newer_than:2d from:bob", expected: true},
		{name: "negated unknown operator also ignored", query: "-newer_than:2d", expected: true},
		{name: "unknown is value ignored", query: "is:important", expected: true},
		{name: "negated unknown is value also ignored", query: "-is:important", expected: true},
		{name: "negated unknown is value never fails a conjunction", query: "-is:important from:bob", expected: true},
		{name: "unknown has value ignored", query: "has:drive", expected: true},
		{name: "negated unknown has value also ignored", query: "-has:drive", expected: true},
		{name: "case insensitive value", query: "from:BOB", expected: true},
		{name: "case insensitive operator", query: "FROM:bob", expected: true},
	}

	m := New(slog.Default())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, m.Matches(sampleMessage(), tt.query))
		})
	}
}

func TestUnknownOperatorWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	m := New(logger)

	assert.True(t, m.Matches(sampleMessage(), "newer_than:2d"))
	assert.Contains(t, buf.String(), "unsupported query operator")
	assert.Contains(t, buf.String(), "newer_than")
}

func TestUnknownOperatorValueWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	m := New(logger)

	assert.True(t, m.Matches(sampleMessage(), "is:important"))
	assert.Contains(t, buf.String(), "unsupported is: value")
	assert.Contains(t, buf.String(), "important")
}

func TestKnownOperatorDoesNotWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	m := New(logger)

	m.Matches(sampleMessage(), "from:bob")
	assert.Empty(t, buf.String())
}
