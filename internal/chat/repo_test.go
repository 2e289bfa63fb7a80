package chat

import (
	"context"
	"testing"
)

func TestListMessagesAfter_AscendingAndCapped(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()
	a := seedUser(t, repo, "a")
	b := seedUser(t, repo, "b")

	var aIDs []uint64
	for i := 0; i < 6; i++ {
		m := &Message{UserID: a.ID, UserText: "u", AssistantText: "a"}
		if err := repo.InsertMessage(ctx, m); err != nil {
			t.Fatalf("insert: %v", err)
		}
		aIDs = append(aIDs, m.ID)
		if err := repo.InsertMessage(ctx, &Message{UserID: b.ID, UserText: "u", AssistantText: "a"}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := repo.ListMessagesAfter(ctx, a.ID, aIDs[1], 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	for i, m := range got {
		if m.UserID != a.ID {
			t.Fatalf("leaked message from user %d", m.UserID)
		}
		if m.ID != aIDs[i+2] {
			t.Fatalf("position %d: expected id %d, got %d", i, aIDs[i+2], m.ID)
		}
	}
}

func TestListMessages_BeforeID(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()
	u := seedUser(t, repo, "u")

	var ids []uint64
	for i := 0; i < 4; i++ {
		m := &Message{UserID: u.ID, UserText: "u", AssistantText: "a"}
		if err := repo.InsertMessage(ctx, m); err != nil {
			t.Fatalf("insert: %v", err)
		}
		ids = append(ids, m.ID)
	}

	got, err := repo.ListMessages(ctx, u.ID, 10, ids[2])
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != ids[1] || got[1].ID != ids[0] {
		t.Fatalf("unexpected page: %+v", got)
	}
}

func TestUpsertUser_Idempotent(t *testing.T) {
	db := openTestDB(t)
	repo := NewRepo(db)
	ctx := context.Background()

	first, err := repo.UpsertUser(ctx, "tg-9", "alice")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second, err := repo.UpsertUser(ctx, "tg-9", "alice2")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same user, got %d and %d", first.ID, second.ID)
	}
	if second.Username != "alice2" {
		t.Fatalf("expected username update, got %q", second.Username)
	}

	ids, err := repo.ListUserIDs(ctx)
	if err != nil {
		t.Fatalf("list ids: %v", err)
	}
	if len(ids) != 1 || ids[0] != first.ID {
		t.Fatalf("unexpected ids %v", ids)
	}
}
