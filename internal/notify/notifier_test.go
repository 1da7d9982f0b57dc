package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/config"
)

type recordingSender struct {
	sent []Notification
	err  error
}

func (s *recordingSender) Send(_ context.Context, n Notification) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

type memoryWindowStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (s *memoryWindowStore) IncrWindow(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = map[string]int64{}
	}
	s.counts[key]++
	return s.counts[key], nil
}

func TestRegistryRoutesByChannel(t *testing.T) {
	email := &recordingSender{}
	sms := &recordingSender{}
	r := &Registry{
		senders: map[Channel]Sender{ChannelEmail: email, ChannelSMS: sms},
		logger:  zap.NewNop(),
	}

	n := Notification{Channel: ChannelEmail, Recipient: "a@example.com", Subject: "s"}
	if err := r.Send(context.Background(), n); err != nil {
		t.Fatal(err)
	}
	if len(email.sent) != 1 || len(sms.sent) != 0 {
		t.Errorf("email=%d sms=%d, want routed to email only", len(email.sent), len(sms.sent))
	}
}

func TestRegistryUnknownChannel(t *testing.T) {
	r := &Registry{senders: map[Channel]Sender{}, logger: zap.NewNop()}

	if err := r.Send(context.Background(), Notification{Channel: "pigeon"}); err == nil {
		t.Error("expected error for unregistered channel")
	}
}

func TestRegistrySenderErrorPropagates(t *testing.T) {
	failing := &recordingSender{err: errors.New("smtp down")}
	r := &Registry{
		senders: map[Channel]Sender{ChannelEmail: failing},
		logger:  zap.NewNop(),
	}

	if err := r.Send(context.Background(), Notification{Channel: ChannelEmail}); err == nil {
		t.Error("sender failure swallowed")
	}
}

func TestThrottledSenderDropsOverLimit(t *testing.T) {
	inner := &recordingSender{}
	throttled := NewThrottledSender(inner, &memoryWindowStore{}, 2, zap.NewNop())

	n := Notification{Channel: ChannelSMS, Recipient: "+4912345"}
	for i := 0; i < 5; i++ {
		if err := throttled.Send(context.Background(), n); err != nil {
			t.Fatal(err)
		}
	}

	if len(inner.sent) != 2 {
		t.Errorf("delivered = %d, want 2 within the hourly window", len(inner.sent))
	}
}

func TestThrottledSenderPerRecipient(t *testing.T) {
	inner := &recordingSender{}
	throttled := NewThrottledSender(inner, &memoryWindowStore{}, 1, zap.NewNop())

	throttled.Send(context.Background(), Notification{Channel: ChannelSMS, Recipient: "+491"})
	throttled.Send(context.Background(), Notification{Channel: ChannelSMS, Recipient: "+492"})

	if len(inner.sent) != 2 {
		t.Errorf("delivered = %d, recipients must be throttled independently", len(inner.sent))
	}
}

func TestNewRegistryFallsBackToLogSenders(t *testing.T) {
	r := NewRegistry(config.NotifyConfig{SMSPerHour: 10}, &memoryWindowStore{}, zap.NewNop(), nil)

	if _, ok := r.senders[ChannelEmail].(*LogSender); !ok {
		t.Error("email sender without SMTP host should log instead")
	}
	if _, ok := r.senders[ChannelSMS].(*ThrottledSender); !ok {
		t.Error("sms sender must be throttled")
	}
}
