package mailapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/shaneholloman/zele-sub000/internal/apierr"
	"github.com/shaneholloman/zele-sub000/internal/instrumentation"
)

// pageSize is the Gmail API page-size ceiling for list calls.
const pageSize = 100

// GmailRemote implements Remote against the Gmail API.
type GmailRemote struct {
	svc     *gmail.UsersService
	metrics *instrumentation.Metrics
}

// NewGmailRemote creates a Gmail-backed Remote using an HTTP client that
// already carries OAuth credentials. metrics may be nil.
func NewGmailRemote(ctx context.Context, client *http.Client, metrics *instrumentation.Metrics) (*GmailRemote, error) {
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &GmailRemote{svc: svc.Users, metrics: metrics}, nil
}

// ListReferences lists thread references matching params, making multiple
// page calls if necessary up to params.Max results.
func (r *GmailRemote) ListReferences(ctx context.Context, params ListParams) (*RefPage, error) {
	start := time.Now()
	page, err := r.listReferences(ctx, params)
	r.metrics.RecordRemoteCall(ctx, "threads.list", time.Since(start), err)
	if err != nil {
		return nil, apierr.Wrap("threads.list", err)
	}
	return page, nil
}

func (r *GmailRemote) listReferences(ctx context.Context, params ListParams) (*RefPage, error) {
	max := params.Max
	if max <= 0 {
		max = pageSize
	}

	page := &RefPage{}
	pageToken := params.PageToken
	for {
		remaining := max - int64(len(page.Refs))
		if remaining <= 0 {
			break
		}
		size := remaining
		if size > pageSize {
			size = pageSize
		}

		req := r.svc.Threads.List("me").MaxResults(size).Context(ctx)
		if params.Query != "" {
			req = req.Q(params.Query)
		}
		if pageToken != "" {
			req = req.PageToken(pageToken)
		}

		res, err := req.Do()
		if err != nil {
			return nil, err
		}
		for _, t := range res.Threads {
			page.Refs = append(page.Refs, ThreadRef{
				ID:       t.Id,
				Revision: formatRevision(t.HistoryId),
				Snippet:  t.Snippet,
			})
		}

		pageToken = res.NextPageToken
		if pageToken == "" || int64(len(page.Refs)) >= max {
			break
		}
	}

	if int64(len(page.Refs)) > max {
		page.Refs = page.Refs[:max]
	}
	page.NextPageToken = pageToken
	return page, nil
}

// GetThread fetches the full raw payload of one thread.
func (r *GmailRemote) GetThread(ctx context.Context, id string) (json.RawMessage, error) {
	start := time.Now()
	thread, err := r.svc.Threads.Get("me", id).Format("full").Context(ctx).Do()
	r.metrics.RecordRemoteCall(ctx, "threads.get", time.Since(start), err)
	if err != nil {
		return nil, apierr.Wrap("threads.get", err)
	}
	raw, err := json.Marshal(thread)
	if err != nil {
		return nil, apierr.New(apierr.KindParse, "threads.get", err)
	}
	return raw, nil
}

// GetMessage fetches the full raw payload of one message.
func (r *GmailRemote) GetMessage(ctx context.Context, id string) (json.RawMessage, error) {
	start := time.Now()
	msg, err := r.svc.Messages.Get("me", id).Format("full").Context(ctx).Do()
	r.metrics.RecordRemoteCall(ctx, "messages.get", time.Since(start), err)
	if err != nil {
		return nil, apierr.Wrap("messages.get", err)
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, apierr.New(apierr.KindParse, "messages.get", err)
	}
	return raw, nil
}

// ListChangesSince lists message-added changes after watermark, scoped to
// labelID. The returned watermark advances even when no changes exist.
func (r *GmailRemote) ListChangesSince(ctx context.Context, watermark, labelID string) (*Changes, error) {
	start := time.Now()
	changes, err := r.listChangesSince(ctx, watermark, labelID)
	r.metrics.RecordRemoteCall(ctx, "history.list", time.Since(start), err)
	if err != nil {
		if kind := apierr.ClassifyChangeFeed(err); kind == apierr.KindWatermarkExpired {
			return nil, apierr.New(kind, "history.list", err)
		}
		return nil, apierr.Wrap("history.list", err)
	}
	return changes, nil
}

func (r *GmailRemote) listChangesSince(ctx context.Context, watermark, labelID string) (*Changes, error) {
	startID, err := strconv.ParseUint(watermark, 10, 64)
	if err != nil {
		return nil, apierr.New(apierr.KindParse, "history.list", fmt.Errorf("invalid watermark %q: %w", watermark, err))
	}

	changes := &Changes{NewWatermark: watermark}
	latest := startID

	call := r.svc.History.List("me").
		StartHistoryId(startID).
		HistoryTypes("messageAdded").
		MaxResults(pageSize)
	if labelID != "" {
		call = call.LabelId(labelID)
	}

	err = call.Pages(ctx, func(page *gmail.ListHistoryResponse) error {
		// the response's top-level history id is the mailbox's current
		// revision; it advances even when the history list is empty
		if page.HistoryId > latest {
			latest = page.HistoryId
		}
		for _, h := range page.History {
			if h.Id > latest {
				latest = h.Id
			}
			for _, added := range h.MessagesAdded {
				if added.Message != nil {
					changes.Added = append(changes.Added, added.Message.Id)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	changes.NewWatermark = strconv.FormatUint(latest, 10)
	return changes, nil
}

// CurrentWatermark returns the mailbox's current change-sequence marker.
func (r *GmailRemote) CurrentWatermark(ctx context.Context) (string, error) {
	start := time.Now()
	profile, err := r.svc.GetProfile("me").Context(ctx).Do()
	r.metrics.RecordRemoteCall(ctx, "profile.get", time.Since(start), err)
	if err != nil {
		return "", apierr.Wrap("profile.get", err)
	}
	return formatRevision(profile.HistoryId), nil
}

// GetProfile fetches the raw account profile payload.
func (r *GmailRemote) GetProfile(ctx context.Context) (json.RawMessage, error) {
	start := time.Now()
	profile, err := r.svc.GetProfile("me").Context(ctx).Do()
	r.metrics.RecordRemoteCall(ctx, "profile.get", time.Since(start), err)
	if err != nil {
		return nil, apierr.Wrap("profile.get", err)
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return nil, apierr.New(apierr.KindParse, "profile.get", err)
	}
	return raw, nil
}

// ListLabels fetches the raw label metadata payload.
func (r *GmailRemote) ListLabels(ctx context.Context) (json.RawMessage, error) {
	start := time.Now()
	res, err := r.svc.Labels.List("me").Context(ctx).Do()
	r.metrics.RecordRemoteCall(ctx, "labels.list", time.Since(start), err)
	if err != nil {
		return nil, apierr.Wrap("labels.list", err)
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, apierr.New(apierr.KindParse, "labels.list", err)
	}
	return raw, nil
}
