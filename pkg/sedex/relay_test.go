package sedex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lwgs/searchindex-client/pkg/broker"
	"github.com/lwgs/searchindex-client/pkg/model"
	"github.com/lwgs/searchindex-client/pkg/store/storetest"
)

type recordedShadow struct {
	topic   string
	headers broker.CommonHeaders
}

type fakePublisher struct {
	shadows []recordedShadow
}

func (p *fakePublisher) PublishStateShadow(ctx context.Context, topic string, headers broker.CommonHeaders) error {
	p.shadows = append(p.shadows, recordedShadow{topic: topic, headers: headers})
	return nil
}

func writeReceiptFile(t *testing.T, dir string, messageID uuid.UUID, statusCode int) string {
	t.Helper()
	content := fmt.Sprintf(`<receipt>
  <eventDate>2024-03-01T10:15:30.000Z</eventDate>
  <statusCode>%d</statusCode>
  <messageId>%s</messageId>
</receipt>`, statusCode, messageID)

	path := filepath.Join(dir, messageID.String()+".xml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write receipt file: %v", err)
	}
	return path
}

func newTestRelay(t *testing.T) (*Relay, *storetest.Store, *fakePublisher, string, string) {
	t.Helper()
	receiptDir := t.TempDir()
	archiveDir := t.TempDir()
	st := storetest.New()
	publisher := &fakePublisher{}
	relay := NewRelay(receiptDir, archiveDir, time.Minute, st, publisher, zap.NewNop())
	return relay, st, publisher, receiptDir, archiveDir
}

func TestReceiptMovesMessageToSuccessfulAndPublishes(t *testing.T) {
	relay, st, publisher, receiptDir, archiveDir := newTestRelay(t)

	messageID := uuid.New()
	jobID := uuid.New()
	st.PutSedexMessage(model.SedexMessage{
		MessageID: messageID,
		JobID:     &jobID,
		State:     model.SedexMessageSent,
	})

	path := writeReceiptFile(t, receiptDir, messageID, StatusCodeDelivered)
	relay.handleFile(context.Background(), path)

	message, _ := st.GetSedexMessage(messageID)
	if message.State != model.SedexMessageSuccessful {
		t.Fatalf("expected SUCCESSFUL, got %q", message.State)
	}

	if len(publisher.shadows) != 1 {
		t.Fatalf("expected one sedex-state event, got %d", len(publisher.shadows))
	}
	shadow := publisher.shadows[0]
	if shadow.topic != broker.QueueSedexState {
		t.Fatalf("expected sedex-state topic, got %q", shadow.topic)
	}
	if shadow.headers.JobID == nil || *shadow.headers.JobID != jobID {
		t.Fatalf("expected job id %s on event, got %v", jobID, shadow.headers.JobID)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected receipt file to be archived")
	}
	if _, err := os.Stat(filepath.Join(archiveDir, filepath.Base(path))); err != nil {
		t.Fatalf("expected archived file: %v", err)
	}
}

func TestErrorReceiptFailsMessage(t *testing.T) {
	relay, st, _, receiptDir, _ := newTestRelay(t)

	messageID := uuid.New()
	jobID := uuid.New()
	st.PutSedexMessage(model.SedexMessage{
		MessageID: messageID,
		JobID:     &jobID,
		State:     model.SedexMessageSent,
	})

	path := writeReceiptFile(t, receiptDir, messageID, 312)
	relay.handleFile(context.Background(), path)

	message, _ := st.GetSedexMessage(messageID)
	if message.State != model.SedexMessageFailed {
		t.Fatalf("expected FAILED, got %q", message.State)
	}
}

func TestUnknownMessageReceiptIsArchivedWithoutEvent(t *testing.T) {
	relay, _, publisher, receiptDir, archiveDir := newTestRelay(t)

	messageID := uuid.New()
	path := writeReceiptFile(t, receiptDir, messageID, StatusCodeDelivered)
	relay.handleFile(context.Background(), path)

	if len(publisher.shadows) != 0 {
		t.Fatalf("expected no events for unknown message, got %d", len(publisher.shadows))
	}
	if _, err := os.Stat(filepath.Join(archiveDir, filepath.Base(path))); err != nil {
		t.Fatalf("expected archived file: %v", err)
	}
}

func TestMalformedReceiptIsArchived(t *testing.T) {
	relay, _, publisher, receiptDir, archiveDir := newTestRelay(t)

	path := filepath.Join(receiptDir, "broken.xml")
	if err := os.WriteFile(path, []byte("not xml"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	relay.handleFile(context.Background(), path)

	if len(publisher.shadows) != 0 {
		t.Fatalf("expected no events for malformed receipt")
	}
	if _, err := os.Stat(filepath.Join(archiveDir, "broken.xml")); err != nil {
		t.Fatalf("expected archived file: %v", err)
	}
}

func TestNonXMLFilesIgnored(t *testing.T) {
	relay, _, publisher, receiptDir, _ := newTestRelay(t)

	path := filepath.Join(receiptDir, "data_12345")
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	relay.handleFile(context.Background(), path)

	if len(publisher.shadows) != 0 {
		t.Fatalf("expected non-xml file to be ignored")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected non-xml file to stay in place: %v", err)
	}
}

func TestTerminalMessageStillPublishesJobEvent(t *testing.T) {
	relay, st, publisher, receiptDir, _ := newTestRelay(t)

	messageID := uuid.New()
	jobID := uuid.New()
	st.PutSedexMessage(model.SedexMessage{
		MessageID: messageID,
		JobID:     &jobID,
		State:     model.SedexMessageSuccessful,
	})

	path := writeReceiptFile(t, receiptDir, messageID, StatusCodeDelivered)
	relay.handleFile(context.Background(), path)

	message, _ := st.GetSedexMessage(messageID)
	if message.State != model.SedexMessageSuccessful {
		t.Fatalf("expected SUCCESSFUL to stay, got %q", message.State)
	}
	if len(publisher.shadows) != 1 {
		t.Fatalf("expected redelivered receipt to still emit the job event")
	}
}
