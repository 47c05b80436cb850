package mailapi

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/shaneholloman/zele-sub000/internal/apierr"
)

// ParseThread parses a raw thread payload into its read model. A payload
// that does not decode, or decodes without an id, is a parse failure.
func ParseThread(raw json.RawMessage) (*ThreadListItem, error) {
	var t gmail.Thread
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, apierr.New(apierr.KindParse, "parse.thread", err)
	}
	if t.Id == "" {
		return nil, apierr.New(apierr.KindParse, "parse.thread", errors.New("payload has no thread id"))
	}

	item := &ThreadListItem{
		ID:       t.Id,
		Revision: formatRevision(t.HistoryId),
		Snippet:  t.Snippet,
	}

	seen := map[string]bool{}
	for _, m := range t.Messages {
		msg := parseMessage(m)
		item.Messages = append(item.Messages, *msg)

		if item.Subject == "" {
			item.Subject = msg.Subject
		}
		if item.From == "" {
			item.From = msg.From
		}
		if msg.Date.After(item.Date) {
			item.Date = msg.Date
		}
		if item.Snippet == "" {
			item.Snippet = msg.Snippet
		}
		item.Unread = item.Unread || msg.Unread
		item.Starred = item.Starred || msg.Starred
		for _, l := range msg.Labels {
			if !seen[l] {
				seen[l] = true
				item.Labels = append(item.Labels, l)
			}
		}
	}

	return item, nil
}

// ParseMessage parses a raw message payload into its read model.
func ParseMessage(raw json.RawMessage) (*ParsedMessage, error) {
	var m gmail.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, apierr.New(apierr.KindParse, "parse.message", err)
	}
	if m.Id == "" {
		return nil, apierr.New(apierr.KindParse, "parse.message", errors.New("payload has no message id"))
	}
	return parseMessage(&m), nil
}

// ParseLabels parses a raw labels payload.
func ParseLabels(raw json.RawMessage) ([]Label, error) {
	var resp gmail.ListLabelsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, apierr.New(apierr.KindParse, "parse.labels", err)
	}
	labels := make([]Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, Label{ID: l.Id, Name: l.Name})
	}
	return labels, nil
}

// ParseProfile parses a raw profile payload.
func ParseProfile(raw json.RawMessage) (*Profile, error) {
	var p gmail.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, apierr.New(apierr.KindParse, "parse.profile", err)
	}
	if p.EmailAddress == "" {
		return nil, apierr.New(apierr.KindParse, "parse.profile", errors.New("payload has no email address"))
	}
	return &Profile{
		Email:         p.EmailAddress,
		Watermark:     formatRevision(p.HistoryId),
		MessagesTotal: p.MessagesTotal,
		ThreadsTotal:  p.ThreadsTotal,
	}, nil
}

func parseMessage(m *gmail.Message) *ParsedMessage {
	msg := &ParsedMessage{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		Snippet:  m.Snippet,
		Labels:   m.LabelIds,
	}
	if m.InternalDate > 0 {
		msg.Date = time.UnixMilli(m.InternalDate).UTC()
	}
	for _, l := range m.LabelIds {
		switch l {
		case "UNREAD":
			msg.Unread = true
		case "STARRED":
			msg.Starred = true
		}
	}
	if m.Payload != nil {
		msg.Subject = HeaderValue(m, "Subject")
		msg.From = HeaderValue(m, "From")
		msg.To = HeaderValue(m, "To")
		msg.Cc = HeaderValue(m, "Cc")
		msg.HasAttachment = hasAttachment(m.Payload)
	}
	return msg
}

// HeaderValue returns the value of the named header from the message
// payload, or "" when the header is absent. Header names compare
// case-insensitively per RFC 5322.
func HeaderValue(m *gmail.Message, name string) string {
	if m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func hasAttachment(part *gmail.MessagePart) bool {
	if part.Filename != "" {
		return true
	}
	for _, p := range part.Parts {
		if hasAttachment(p) {
			return true
		}
	}
	return false
}

func formatRevision(historyID uint64) string {
	if historyID == 0 {
		return ""
	}
	return strconv.FormatUint(historyID, 10)
}
