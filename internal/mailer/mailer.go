package mailer

import (
	"context"
	"fmt"
	"strings"
)

// Message is one outbound certificate email. Subject and Body are the raw
// templates; {{name}} is substituted at send time.
type Message struct {
	RecipientName  string
	RecipientEmail string
	Subject        string
	Body           string
	AttachmentPath string
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.RecipientEmail) == "" {
		return fmt.Errorf("recipient email is required")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	return nil
}

// Sender is the outbound mail delivery port.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// RenderTemplate substitutes the {{name}} token, the single substitution the
// subject and body templates support.
func RenderTemplate(template, name string) string {
	return strings.ReplaceAll(template, "{{name}}", name)
}

// AttachmentFilename derives the attachment name shown in the recipient's
// mail client, e.g. certificate_Ada_Lovelace.pdf.
func AttachmentFilename(recipientName string) string {
	return fmt.Sprintf("certificate_%s.pdf", strings.ReplaceAll(recipientName, " ", "_"))
}
