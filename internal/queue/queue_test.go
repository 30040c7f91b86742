package queue

import "testing"

func TestDispatchMessageValidate(t *testing.T) {
	t.Parallel()

	msg := DispatchMessage{
		BatchID: "b1",
		Subject: "Your certificate, {{name}}",
		Body:    "Congratulations {{name}}!",
	}
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	msg.BatchID = "  "
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for empty batch id")
	}

	msg.BatchID = "b1"
	msg.Subject = ""
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for empty subject")
	}
}

func TestQueueNames(t *testing.T) {
	t.Parallel()

	if DispatchQueueName != "certificates.dispatch" {
		t.Fatalf("DispatchQueueName = %s", DispatchQueueName)
	}
	if DispatchDLQName != "dlq.certificates.dispatch" {
		t.Fatalf("DispatchDLQName = %s", DispatchDLQName)
	}
}
