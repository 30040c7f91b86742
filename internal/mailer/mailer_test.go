package mailer

import "testing"

func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{name: "substitutes token", template: "Hello {{name}}!", want: "Hello Ada Lovelace!"},
		{name: "multiple tokens", template: "{{name}}, your certificate, {{name}}", want: "Ada Lovelace, your certificate, Ada Lovelace"},
		{name: "no token", template: "Congratulations", want: "Congratulations"},
		{name: "empty template", template: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderTemplate(tt.template, "Ada Lovelace"); got != tt.want {
				t.Fatalf("RenderTemplate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAttachmentFilename(t *testing.T) {
	t.Parallel()

	if got := AttachmentFilename("Grace Brewster Hopper"); got != "certificate_Grace_Brewster_Hopper.pdf" {
		t.Fatalf("AttachmentFilename() = %q", got)
	}
}

func TestMessageValidate(t *testing.T) {
	t.Parallel()

	msg := Message{
		RecipientName:  "Ada",
		RecipientEmail: "ada@example.com",
		Subject:        "Your certificate",
		Body:           "Hello",
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	msg.RecipientEmail = " "
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for empty recipient email")
	}

	msg.RecipientEmail = "ada@example.com"
	msg.Subject = ""
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for empty subject")
	}
}

func TestNewSMTPSenderValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewSMTPSender(SMTPConfig{From: "a@b.com"}); err == nil {
		t.Fatal("expected error for missing host")
	}
	if _, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com"}); err == nil {
		t.Fatal("expected error for missing from address")
	}
}
