package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ledgerline/paysync/internal/domain"
)

func TestSlackMessage_Build(t *testing.T) {
	msg := SlackMessage{
		Text: "Batch fetch completed",
		Attachments: []SlackAttachment{
			{
				Color: "good",
				Title: "run-1",
				Text:  "23 processed (23 ok, 0 failed)",
			},
		},
	}

	payload, err := msg.ToJSON()
	if err != nil {
		t.Fatal(err)
	}

	if len(payload) == 0 {
		t.Error("Payload should not be empty")
	}
}

func TestBuildMessage(t *testing.T) {
	msg := buildMessage(Notification{
		Title:   "resync run completed",
		Message: "70 processed",
		Type:    NotifySuccess,
		RunID:   "run-42",
	})

	if msg.Text != "resync run completed" {
		t.Errorf("Text = %q", msg.Text)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("Attachments = %d, want 1", len(msg.Attachments))
	}
	att := msg.Attachments[0]
	if att.Color != "good" {
		t.Errorf("Color = %q, want good", att.Color)
	}
	if att.Title != "run-42" {
		t.Errorf("Title = %q, want run ID", att.Title)
	}
	if att.Footer != "paysync" {
		t.Errorf("Footer = %q", att.Footer)
	}
}

func TestSlackNotifier_Send(t *testing.T) {
	// Mock Slack server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Test",
		Message: "Test message",
		Type:    NotifyInfo,
	})

	if err != nil {
		t.Errorf("Send failed: %v", err)
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		got := SlackColor(tt.typ)
		if got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "mock1", calls: &called}
	mock2 := &mockNotifier{name: "mock2", calls: &called}

	multi := NewMultiNotifier(mock1, mock2)
	multi.Send(Notification{Title: "Test"})

	if len(called) != 2 {
		t.Errorf("Expected 2 calls, got %d", len(called))
	}
}

func TestForRun(t *testing.T) {
	started := time.Now().Add(-90 * time.Second)
	finished := time.Now()

	run := &domain.Run{
		ID:         "run-1",
		Kind:       domain.RunKindFetch,
		Status:     domain.PhaseCompleted,
		Total:      23,
		Processed:  23,
		Successful: 22,
		Failed:     1,
		StartedAt:  &started,
		FinishedAt: &finished,
	}

	n := ForRun(run)
	if n.Type != NotifySuccess {
		t.Errorf("Type = %v, want success", n.Type)
	}
	if n.RunID != "run-1" {
		t.Errorf("RunID = %q", n.RunID)
	}
	if !strings.Contains(n.Message, "23 processed") || !strings.Contains(n.Message, "1 failed") {
		t.Errorf("Message = %q", n.Message)
	}

	run.Status = domain.PhaseFailed
	run.Error = "gateway reported failure"
	n = ForRun(run)
	if n.Type != NotifyError {
		t.Errorf("Type = %v, want error", n.Type)
	}
	if n.Message != "gateway reported failure" {
		t.Errorf("Message = %q", n.Message)
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}
