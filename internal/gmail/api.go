package gmail

import (
	"context"

	gmailv1 "google.golang.org/api/gmail/v1"
)

// maxPageSize is the largest page Gmail will return from messages.list.
const maxPageSize = 500

// API is the part of the Gmail REST surface the retriever uses.
type API interface {
	ListMessages(ctx context.Context, query, pageToken string, pageSize int64) (*gmailv1.ListMessagesResponse, error)
	GetMessage(ctx context.Context, id string) (*gmailv1.Message, error)
	GetAttachment(ctx context.Context, messageID, attachmentID string) (*gmailv1.MessagePartBody, error)
}

// NewAPI adapts a Gmail service for the authenticated user ("me").
func NewAPI(svc *gmailv1.Service) API {
	return &serviceAPI{svc: svc, user: "me"}
}

type serviceAPI struct {
	svc  *gmailv1.Service
	user string
}

func (a *serviceAPI) ListMessages(ctx context.Context, query, pageToken string, pageSize int64) (*gmailv1.ListMessagesResponse, error) {
	call := a.svc.Users.Messages.List(a.user).Q(query).Context(ctx)
	if pageSize > 0 {
		call = call.MaxResults(pageSize)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

func (a *serviceAPI) GetMessage(ctx context.Context, id string) (*gmailv1.Message, error) {
	return a.svc.Users.Messages.Get(a.user, id).Format("full").Context(ctx).Do()
}

func (a *serviceAPI) GetAttachment(ctx context.Context, messageID, attachmentID string) (*gmailv1.MessagePartBody, error) {
	return a.svc.Users.Messages.Attachments.Get(a.user, messageID, attachmentID).Context(ctx).Do()
}
