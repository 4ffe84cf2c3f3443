package gmail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"invoiz/internal/model"
)

// Retriever searches the mailbox and fetches full messages.
type Retriever struct {
	api    API
	logger *slog.Logger
}

func NewRetriever(api API, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{api: api, logger: logger}
}

// Search returns the ids of messages matching query, following
// nextPageToken until the service runs out of pages or limit ids have been
// collected. limit <= 0 means no limit.
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]string, error) {
	pageSize := int64(maxPageSize)
	if limit > 0 && limit < maxPageSize {
		pageSize = int64(limit)
	}

	var ids []string
	pageToken := ""
	for {
		select {
		case <-ctx.Done():
			return ids, &model.RetrievalError{Op: "search", Err: ctx.Err()}
		default:
		}

		resp, err := r.api.ListMessages(ctx, query, pageToken, pageSize)
		if err != nil {
			return nil, &model.RetrievalError{Op: "search", Err: fmt.Errorf("list messages: %w", err)}
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		r.logger.Debug("search page", "query", query, "page_ids", len(resp.Messages), "total", len(ids))

		if resp.NextPageToken == "" || (limit > 0 && len(ids) >= limit) {
			break
		}
		pageToken = resp.NextPageToken
	}

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Fetch retrieves a message in full format and resolves every leaf whose
// payload is only available by attachment id. Inline payloads cost no extra
// round trip. Undecodable content yields the message header together with a
// *model.ContentError; service failures are *model.RetrievalError.
func (r *Retriever) Fetch(ctx context.Context, id string) (*model.Message, error) {
	msg, err := r.api.GetMessage(ctx, id)
	if err != nil {
		return nil, &model.RetrievalError{Op: "fetch", ID: id, Err: err}
	}

	out := &model.Message{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
	}
	if out.ID == "" {
		out.ID = id
	}
	if msg.Payload == nil {
		return out, nil
	}
	out.Header = readHeader(msg.Payload.Headers)

	root, err := convertPart(msg.Payload)
	if err != nil {
		return out, &model.ContentError{ID: out.ID, Err: err}
	}
	if err := r.resolve(ctx, out.ID, root); err != nil {
		var cerr *model.ContentError
		if errors.As(err, &cerr) {
			return out, err
		}
		return nil, err
	}
	out.Root = root
	return out, nil
}

func (r *Retriever) resolve(ctx context.Context, messageID string, n *model.ContentNode) error {
	if n == nil {
		return nil
	}
	if n.AttachmentID != "" && len(n.Data) == 0 {
		body, err := r.api.GetAttachment(ctx, messageID, n.AttachmentID)
		if err != nil {
			return &model.RetrievalError{Op: "attachment", ID: messageID + "/" + n.AttachmentID, Err: err}
		}
		data, err := decodeBase64URL(body.Data)
		if err != nil {
			return &model.ContentError{ID: messageID, Err: fmt.Errorf("decode attachment %s: %w", n.AttachmentID, err)}
		}
		n.Data = data
		if n.Size == 0 {
			n.Size = body.Size
		}
		r.logger.Debug("fetched attachment", "message", messageID, "filename", n.Filename, "bytes", len(data))
	}
	for _, child := range n.Children {
		if err := r.resolve(ctx, messageID, child); err != nil {
			return err
		}
	}
	return nil
}
