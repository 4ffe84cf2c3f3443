package gmail

import (
	"encoding/base64"
	"fmt"
	"strings"

	"invoiz/internal/model"

	gmailv1 "google.golang.org/api/gmail/v1"
)

// convertPart maps a Gmail MIME part tree onto model.ContentNode. Inline
// body data is decoded here; parts that only carry an attachmentId keep it
// for a later round trip.
func convertPart(part *gmailv1.MessagePart) (*model.ContentNode, error) {
	if part == nil {
		return nil, nil
	}
	n := &model.ContentNode{
		Kind:        model.KindForMime(part.MimeType, len(part.Parts) > 0),
		MimeType:    part.MimeType,
		Filename:    part.Filename,
		Disposition: headerValue(part.Headers, "Content-Disposition"),
	}
	if part.Body != nil && n.Kind != model.KindContainer {
		n.Size = part.Body.Size
		n.AttachmentID = part.Body.AttachmentId
		if part.Body.Data != "" {
			data, err := decodeBase64URL(part.Body.Data)
			if err != nil {
				return nil, fmt.Errorf("decode part %s: %w", part.PartId, err)
			}
			n.Data = data
		}
	}
	for _, sub := range part.Parts {
		child, err := convertPart(sub)
		if err != nil {
			return nil, err
		}
		if child != nil {
			n.Children = append(n.Children, child)
		}
	}
	return n, nil
}

// readHeader collects the envelope fields from the top-level part.
func readHeader(headers []*gmailv1.MessagePartHeader) model.Header {
	var h model.Header
	for _, hd := range headers {
		switch strings.ToLower(hd.Name) {
		case "from":
			h.From = hd.Value
		case "to":
			h.To = hd.Value
		case "subject":
			h.Subject = hd.Value
		case "date":
			h.Date = hd.Value
		}
	}
	return h
}

func headerValue(headers []*gmailv1.MessagePartHeader, name string) string {
	for _, hd := range headers {
		if strings.EqualFold(hd.Name, name) {
			return hd.Value
		}
	}
	return ""
}

// decodeBase64URL accepts both padded and unpadded base64url, Gmail uses either.
func decodeBase64URL(data string) ([]byte, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}
