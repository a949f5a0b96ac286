package gmail

import (
	"regexp"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/inboxpanel/internal/model"
)

const labelUnread = "UNREAD"

// fromPattern splits `Display Name <addr@host>`.
var fromPattern = regexp.MustCompile(`^(.*?)\s*<(.+)>$`)

// Normalize maps a metadata-format Gmail message onto the stored shape.
// UserID is left empty for the caller to set.
func Normalize(m *gmail.Message) model.Message {
	var headers []*gmail.MessagePartHeader
	if m.Payload != nil {
		headers = m.Payload.Headers
	}

	fromEmail, fromName := ParseFrom(headerValue(headers, "From"))

	var subject *string
	if v, ok := lookupHeader(headers, "Subject"); ok {
		subject = &v
	}

	labels := make([]string, 0, len(m.LabelIds))
	labels = append(labels, m.LabelIds...)

	return model.Message{
		ID:          m.Id,
		ThreadID:    m.ThreadId,
		Subject:     subject,
		FromEmail:   fromEmail,
		FromName:    fromName,
		Snippet:     nonEmpty(m.Snippet),
		BodyPreview: nonEmpty(m.Snippet),
		ReceivedAt:  time.UnixMilli(m.InternalDate).UTC(),
		IsRead:      !containsLabel(labels, labelUnread),
		Labels:      labels,
	}
}

// ParseFrom splits a From header into address and display name. Without an
// angle-bracket address the whole header is the address and name is nil.
func ParseFrom(header string) (email string, name *string) {
	match := fromPattern.FindStringSubmatch(header)
	if match == nil {
		return header, nil
	}
	display := strings.TrimSpace(strings.Trim(strings.TrimSpace(match[1]), `"`))
	return match[2], nonEmpty(display)
}

func lookupHeader(headers []*gmail.MessagePartHeader, name string) (string, bool) {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

func headerValue(headers []*gmail.MessagePartHeader, name string) string {
	v, _ := lookupHeader(headers, name)
	return v
}

func containsLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
