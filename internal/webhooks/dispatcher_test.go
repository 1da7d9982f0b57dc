package webhooks

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/tenantops/platform-core/internal/db"
	"github.com/tenantops/platform-core/internal/queue"
)

type fakeSubscriberStore struct {
	webhooks map[string][]*db.Webhook
	err      error
}

func (s *fakeSubscriberStore) GetWebhooksByEvent(_ context.Context, _, event string) ([]*db.Webhook, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.webhooks[event], nil
}

type fakeJobQueue struct {
	jobs []*queue.DeliveryJob
	err  error
}

func (q *fakeJobQueue) Push(_ context.Context, job *queue.DeliveryJob) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func newTestDispatcher(store SubscriberStore, jobQueue JobQueue, deliveryStore *fakeDeliveryStore) *Dispatcher {
	d, _ := newTestDeliverer(deliveryStore)
	return NewDispatcher(store, d, jobQueue, zap.NewNop(), nil)
}

func TestDispatchZeroMatchesHasNoSideEffects(t *testing.T) {
	q := &fakeJobQueue{}
	deliveryStore := &fakeDeliveryStore{}
	d := newTestDispatcher(&fakeSubscriberStore{webhooks: map[string][]*db.Webhook{}}, q, deliveryStore)

	res, err := d.Dispatch(context.Background(), "tenant-1", "nobody.cares", map[string]interface{}{"a": 1}, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Dispatched != 0 {
		t.Errorf("dispatched = %d, want 0", res.Dispatched)
	}
	if len(q.jobs) != 0 || len(deliveryStore.logs) != 0 {
		t.Error("zero-match dispatch produced side effects")
	}
}

func TestDispatchAsyncEnqueuesPerWebhook(t *testing.T) {
	store := &fakeSubscriberStore{webhooks: map[string][]*db.Webhook{
		"subscription.created": {
			testWebhook("http://example.com/a"),
			testWebhook("http://example.com/b"),
		},
	}}
	q := &fakeJobQueue{}
	d := newTestDispatcher(store, q, &fakeDeliveryStore{})

	res, err := d.Dispatch(context.Background(), "tenant-1", "subscription.created",
		map[string]interface{}{"plan": "pro"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Dispatched != 2 || len(q.jobs) != 2 {
		t.Fatalf("dispatched = %d, jobs = %d, want 2 each", res.Dispatched, len(q.jobs))
	}

	payload := q.jobs[0].Payload
	if payload["plan"] != "pro" {
		t.Error("caller payload lost during enrichment")
	}
	if payload["event"] != "subscription.created" || payload["version"] != "1.0" {
		t.Errorf("envelope fields wrong: event=%v version=%v", payload["event"], payload["version"])
	}
	if _, ok := payload["timestamp"]; !ok {
		t.Error("timestamp missing from enriched payload")
	}
}

func TestDispatchEnvelopeOverridesCallerKeys(t *testing.T) {
	store := &fakeSubscriberStore{webhooks: map[string][]*db.Webhook{
		"real.event": {testWebhook("http://example.com")},
	}}
	q := &fakeJobQueue{}
	d := newTestDispatcher(store, q, &fakeDeliveryStore{})

	_, err := d.Dispatch(context.Background(), "tenant-1", "real.event", map[string]interface{}{
		"event":   "spoofed.event",
		"version": "9.9",
	}, true)
	if err != nil {
		t.Fatal(err)
	}

	payload := q.jobs[0].Payload
	if payload["event"] != "real.event" {
		t.Errorf("event = %v, caller must not override it", payload["event"])
	}
	if payload["version"] != "1.0" {
		t.Errorf("version = %v, caller must not override it", payload["version"])
	}
}

func TestDispatchSyncIsolatesFailures(t *testing.T) {
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okSrv.Close()
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer badSrv.Close()

	store := &fakeSubscriberStore{webhooks: map[string][]*db.Webhook{
		"evt": {testWebhook(badSrv.URL), testWebhook(okSrv.URL)},
	}}
	deliveryStore := &fakeDeliveryStore{}
	d := newTestDispatcher(store, &fakeJobQueue{}, deliveryStore)

	res, err := d.Dispatch(context.Background(), "tenant-1", "evt", nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Dispatched != 2 {
		t.Errorf("dispatched = %d, one failure must not stop the other delivery", res.Dispatched)
	}
	if deliveryStore.successes != 1 || deliveryStore.failures != 1 {
		t.Errorf("successes=%d failures=%d, want 1 each", deliveryStore.successes, deliveryStore.failures)
	}
}

func TestDispatchStoreErrorPropagates(t *testing.T) {
	d := newTestDispatcher(&fakeSubscriberStore{err: errors.New("db down")}, &fakeJobQueue{}, &fakeDeliveryStore{})

	if _, err := d.Dispatch(context.Background(), "tenant-1", "evt", nil, true); err == nil {
		t.Error("expected error when subscriber lookup fails")
	}
}

func TestDispatchBatchSumsAcrossEvents(t *testing.T) {
	store := &fakeSubscriberStore{webhooks: map[string][]*db.Webhook{
		"a": {testWebhook("http://example.com/1")},
		"b": {testWebhook("http://example.com/2"), testWebhook("http://example.com/3")},
	}}
	q := &fakeJobQueue{}
	d := newTestDispatcher(store, q, &fakeDeliveryStore{})

	total, err := d.DispatchBatch(context.Background(), "tenant-1", []Event{
		{Name: "a"}, {Name: "b"}, {Name: "unmatched"},
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(q.jobs) != 3 {
		t.Errorf("jobs = %d, want 3", len(q.jobs))
	}
}
