package queue

import (
	"fmt"
	"strings"
)

// DispatchMessage requests one dispatcher run over a batch's PENDING records.
// Publishing it instead of spawning a detached goroutine makes run triggers
// durable: a batch left with PENDING records by a crash is resumed when the
// unacked message is redelivered.
type DispatchMessage struct {
	BatchID       string `json:"batchId"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func (m DispatchMessage) Validate() error {
	if strings.TrimSpace(m.BatchID) == "" {
		return fmt.Errorf("batchId is required")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	return nil
}
