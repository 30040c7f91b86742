package domain

import (
	"fmt"
	"strings"
)

// Recipient is one (name, email) input row before it becomes a record.
type Recipient struct {
	Name  string
	Email string
}

// Normalize trims the name and lower-cases the email. Records are immutable
// after creation, so normalization happens exactly once, here.
func (r *Recipient) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r Recipient) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: recipient name is required", ErrValidation)
	}
	if !strings.Contains(r.Email, "@") {
		return fmt.Errorf("%w: invalid recipient email %q", ErrValidation, r.Email)
	}
	return nil
}
