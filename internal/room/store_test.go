package room

import (
	"errors"
	"testing"
)

func TestNewStoreSeedsGeneralRoom(t *testing.T) {
	store := NewStore(0)

	messages, err := store.Messages(DefaultRoomID)
	if err != nil {
		t.Fatalf("Expected general room to exist: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("Expected empty log, got %d messages", len(messages))
	}
}

func TestEnsureRoomIsIdempotent(t *testing.T) {
	store := NewStore(0)

	store.EnsureRoom("dev", "Dev")
	if _, err := store.Append("dev", Message{Text: "hi", UserID: "u1"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	again := store.EnsureRoom("dev", "Dev Renamed")
	if again.Name != "Dev" {
		t.Errorf("Expected existing room returned unchanged, got name %q", again.Name)
	}
	if len(again.Messages) != 1 {
		t.Errorf("Expected existing log preserved, got %d messages", len(again.Messages))
	}
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	store := NewStore(0)

	msg, err := store.Append(DefaultRoomID, Message{Text: "hello", UserID: "u1", Username: "alice"})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if msg.ID == "" {
		t.Error("Expected a generated message id")
	}
	if msg.Timestamp.IsZero() {
		t.Error("Expected a timestamp")
	}
	if msg.Read {
		t.Error("Expected new message to be unread")
	}
	if msg.RoomID != DefaultRoomID {
		t.Errorf("Expected roomId %q, got %q", DefaultRoomID, msg.RoomID)
	}

	messages, err := store.Messages(DefaultRoomID)
	if err != nil {
		t.Fatalf("Messages failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("Expected exactly 1 message, got %d", len(messages))
	}
}

func TestAppendUnknownRoom(t *testing.T) {
	store := NewStore(0)

	_, err := store.Append("nonexistent", Message{Text: "hi"})
	if !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("Expected ErrRoomNotFound, got %v", err)
	}

	for _, r := range store.Rooms() {
		if len(r.Messages) != 0 {
			t.Errorf("Expected no message appended anywhere, room %q has %d", r.ID, len(r.Messages))
		}
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	store := NewStore(0)

	for _, text := range []string{"one", "two", "three"} {
		if _, err := store.Append(DefaultRoomID, Message{Text: text, UserID: "u1"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	messages, _ := store.Messages(DefaultRoomID)
	want := []string{"one", "two", "three"}
	for i, text := range want {
		if messages[i].Text != text {
			t.Errorf("Position %d: expected %q, got %q", i, text, messages[i].Text)
		}
	}
}

func TestHistoryLimitTrimsHead(t *testing.T) {
	store := NewStore(2)

	for _, text := range []string{"one", "two", "three"} {
		if _, err := store.Append(DefaultRoomID, Message{Text: text, UserID: "u1"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	messages, _ := store.Messages(DefaultRoomID)
	if len(messages) != 2 {
		t.Fatalf("Expected log trimmed to 2, got %d", len(messages))
	}
	if messages[0].Text != "two" || messages[1].Text != "three" {
		t.Errorf("Expected oldest message trimmed, got %q, %q", messages[0].Text, messages[1].Text)
	}
}

func TestMarkReadByOthers(t *testing.T) {
	store := NewStore(0)

	if _, err := store.Append(DefaultRoomID, Message{Text: "from alice", UserID: "alice"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := store.Append(DefaultRoomID, Message{Text: "from bob", UserID: "bob"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	store.MarkReadByOthers(DefaultRoomID, "bob")

	messages, _ := store.Messages(DefaultRoomID)
	for _, msg := range messages {
		switch msg.UserID {
		case "alice":
			if !msg.Read {
				t.Error("Expected alice's message to be read by bob")
			}
		case "bob":
			if msg.Read {
				t.Error("Reader's own message must never be marked read")
			}
		}
	}
}

func TestMarkReadByOthersIsIdempotent(t *testing.T) {
	store := NewStore(0)

	if _, err := store.Append(DefaultRoomID, Message{Text: "hi", UserID: "alice"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	store.MarkReadByOthers(DefaultRoomID, "bob")
	first, _ := store.Messages(DefaultRoomID)

	store.MarkReadByOthers(DefaultRoomID, "bob")
	second, _ := store.Messages(DefaultRoomID)

	for i := range first {
		if first[i].Read != second[i].Read {
			t.Errorf("Message %d read flag changed on reapply", i)
		}
	}
}

func TestMarkReadByOthersUnknownRoomIsNoop(t *testing.T) {
	store := NewStore(0)

	// Must not panic or create the room.
	store.MarkReadByOthers("nonexistent", "bob")

	if _, err := store.Messages("nonexistent"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("Expected room to stay unknown, got %v", err)
	}
}

func TestMessagesUnknownRoom(t *testing.T) {
	store := NewStore(0)

	if _, err := store.Messages("nonexistent"); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("Expected ErrRoomNotFound, got %v", err)
	}
}

func TestMessagesReturnsSnapshot(t *testing.T) {
	store := NewStore(0)

	if _, err := store.Append(DefaultRoomID, Message{Text: "hi", UserID: "u1"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	messages, _ := store.Messages(DefaultRoomID)
	messages[0].Text = "mutated"

	fresh, _ := store.Messages(DefaultRoomID)
	if fresh[0].Text != "hi" {
		t.Errorf("Store log changed through snapshot: %q", fresh[0].Text)
	}
}

func TestRoomsIncludesSeededRoom(t *testing.T) {
	store := NewStore(0)
	store.EnsureRoom("dev", "Dev")

	rooms := store.Rooms()
	if len(rooms) != 2 {
		t.Fatalf("Expected 2 rooms, got %d", len(rooms))
	}

	found := false
	for _, r := range rooms {
		if r.ID == DefaultRoomID && r.Name == "General" {
			found = true
		}
	}
	if !found {
		t.Error("Expected seeded general room in listing")
	}
}
