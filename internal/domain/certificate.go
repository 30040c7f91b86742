package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a certificate record.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSent       Status = "SENT"
	StatusFailed     Status = "FAILED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusSent, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether a record can never leave this status again.
// FAILED is not terminal: the retry operation moves it back to PENDING.
func (s Status) IsTerminal() bool {
	return s == StatusSent
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Certificate is the per-recipient unit of work: one record per recipient
// per batch, carrying its delivery outcome.
type Certificate struct {
	ID           string
	BatchID      string
	Name         string
	Email        string
	Status       Status
	FilePath     *string
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (c *Certificate) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: certificate id is required", ErrValidation)
	}
	if strings.TrimSpace(c.BatchID) == "" {
		return fmt.Errorf("%w: batch id is required", ErrValidation)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !strings.Contains(c.Email, "@") {
		return fmt.Errorf("%w: invalid email %q", ErrValidation, c.Email)
	}
	if !c.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, c.Status)
	}
	return nil
}
