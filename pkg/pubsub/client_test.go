package pubsub

import "testing"

func TestTopicResourceName(t *testing.T) {
	cases := []struct {
		project, name, want string
	}{
		{"proj", "settlement-events", "projects/proj/topics/settlement-events"},
		{"proj", " projects/other/topics/x ", "projects/other/topics/x"},
		{"", "settlement-events", ""},
		{"proj", "", ""},
	}
	for _, tc := range cases {
		if got := TopicResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("TopicResourceName(%q, %q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestSubscriptionResourceName(t *testing.T) {
	cases := []struct {
		project, name, want string
	}{
		{"proj", "settlement-events-analytics", "projects/proj/subscriptions/settlement-events-analytics"},
		{"proj", "projects/other/subscriptions/y", "projects/other/subscriptions/y"},
		{"", "settlement-events-analytics", ""},
		{"proj", "  ", ""},
	}
	for _, tc := range cases {
		if got := SubscriptionResourceName(tc.project, tc.name); got != tc.want {
			t.Fatalf("SubscriptionResourceName(%q, %q) = %q, want %q", tc.project, tc.name, got, tc.want)
		}
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("x") != nil {
		t.Fatalf("expected nil publisher from nil client")
	}
	if c.AnalyticsSubscription() != nil {
		t.Fatalf("expected nil subscriber from nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
}
