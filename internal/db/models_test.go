package db

import (
	"testing"
	"time"
)

func TestSubscriptionIsActive(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	cases := []struct {
		name string
		sub  Subscription
		want bool
	}{
		{"active open-ended", Subscription{Status: SubscriptionActive}, true},
		{"active ending later", Subscription{Status: SubscriptionActive, EndsAt: &future}, true},
		{"active already ended", Subscription{Status: SubscriptionActive, EndsAt: &past}, false},
		{"active ending exactly now", Subscription{Status: SubscriptionActive, EndsAt: &now}, false},
		{"cancelled", Subscription{Status: SubscriptionCancelled}, false},
		{"trialing", Subscription{Status: SubscriptionTrialing, TrialEndsAt: &future}, false},
	}
	for _, tc := range cases {
		if got := tc.sub.IsActive(now); got != tc.want {
			t.Errorf("%s: IsActive = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSubscriptionInTrial(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	cases := []struct {
		name string
		sub  Subscription
		want bool
	}{
		{"trial running", Subscription{Status: SubscriptionTrialing, TrialEndsAt: &future}, true},
		{"trial over", Subscription{Status: SubscriptionTrialing, TrialEndsAt: &past}, false},
		{"trial without end", Subscription{Status: SubscriptionTrialing}, false},
		{"active is not trial", Subscription{Status: SubscriptionActive, TrialEndsAt: &future}, false},
	}
	for _, tc := range cases {
		if got := tc.sub.InTrial(now); got != tc.want {
			t.Errorf("%s: InTrial = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestStringSliceContains(t *testing.T) {
	s := StringSlice{"webhooks", "analytics"}

	if !s.Contains("webhooks") {
		t.Error("Contains missed an element")
	}
	if s.Contains("web") {
		t.Error("Contains matched a prefix, membership must be exact")
	}
}
