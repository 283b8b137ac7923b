package models

import "testing"

func TestEscalateNeverRegresses(t *testing.T) {
	if got := Escalate(DeliveryRead, DeliveryDelivered); got != DeliveryRead {
		t.Fatalf("expected read to stay read, got %s", got)
	}
	if got := Escalate(DeliverySent, DeliveryDelivered); got != DeliveryDelivered {
		t.Fatalf("expected delivered, got %s", got)
	}
	if got := Escalate(DeliverySending, DeliveryState("bogus")); got != DeliverySending {
		t.Fatalf("expected unknown state to be ignored, got %s", got)
	}
}

func TestIsTempID(t *testing.T) {
	if !IsTempID("temp-abc123") {
		t.Fatalf("expected temp id to be recognized")
	}
	if IsTempID("m-100") {
		t.Fatalf("expected server id to not be temporary")
	}
}

func TestAddReactionIsIdempotent(t *testing.T) {
	var m Message
	m.AddReaction("👍", "u1")
	m.AddReaction("👍", "u1")
	if len(m.Reactions) != 1 {
		t.Fatalf("expected exactly one reaction, got %d", len(m.Reactions))
	}
	m.RemoveReaction("👍", "u1")
	m.RemoveReaction("👍", "u1")
	if len(m.Reactions) != 0 {
		t.Fatalf("expected no reactions, got %d", len(m.Reactions))
	}
}

func TestScrubDropsContent(t *testing.T) {
	m := Message{Body: "secret", ImageURL: "http://x/y.png", Reactions: []Reaction{{Emoji: "👍", UserID: "u1"}}}
	m.Scrub()
	if m.Body != TombstonePlaceholder {
		t.Fatalf("expected tombstone placeholder, got %q", m.Body)
	}
	if m.ImageURL != "" || len(m.Reactions) != 0 {
		t.Fatalf("expected attachment and reactions to be dropped")
	}
	if !m.DeletedForEveryone {
		t.Fatalf("expected deleted flag to be set")
	}
}
