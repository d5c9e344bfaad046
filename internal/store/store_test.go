package store

import (
	"context"
	"testing"
)

// openTestHistory opens an in-memory database and returns a History on it.
func openTestHistory(t *testing.T) *History {
	t.Helper()
	db, err := Open(&Config{Driver: DriverSQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })
	h, err := NewHistory(db)
	if err != nil {
		t.Fatalf("new history: %v", err)
	}
	return h
}

func TestOpen_UnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(&Config{Driver: "mysql", DSN: "x"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpen_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()
	if _, err := Open(&Config{Driver: DriverPostgres}); err == nil {
		t.Fatal("expected error for postgres without DSN")
	}
}

func TestOpen_Ping(t *testing.T) {
	t.Parallel()
	db, err := Open(&Config{DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })
	if err := Ping(context.Background(), db); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestHistory_AppendAndRecent(t *testing.T) {
	t.Parallel()
	h := openTestHistory(t)
	ctx := context.Background()

	if err := h.Append(ctx, "book-a", RoleUser, "hello"); err != nil {
		t.Fatalf("append user: %v", err)
	}
	if err := h.Append(ctx, "book-a", RoleAssistant, "world"); err != nil {
		t.Fatalf("append assistant: %v", err)
	}

	msgs, err := h.Recent(ctx, "book-a", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("want 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "hello" {
		t.Errorf("msg[0]: want user/hello, got %s/%s", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != RoleAssistant || msgs[1].Content != "world" {
		t.Errorf("msg[1]: want assistant/world, got %s/%s", msgs[1].Role, msgs[1].Content)
	}
}

func TestHistory_RecentLimitRespected(t *testing.T) {
	t.Parallel()
	h := openTestHistory(t)
	ctx := context.Background()

	for i := range 6 {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if err := h.Append(ctx, "book-b", role, "msg"); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := h.Recent(ctx, "book-b", 4)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 4 {
		t.Errorf("want 4 messages, got %d", len(msgs))
	}
}

func TestHistory_BookIsolation(t *testing.T) {
	t.Parallel()
	h := openTestHistory(t)
	ctx := context.Background()

	if err := h.Append(ctx, "book-x", RoleUser, "from x"); err != nil {
		t.Fatalf("append x: %v", err)
	}
	if err := h.Append(ctx, "book-y", RoleUser, "from y"); err != nil {
		t.Fatalf("append y: %v", err)
	}

	msgsX, err := h.Recent(ctx, "book-x", 10)
	if err != nil {
		t.Fatalf("recent x: %v", err)
	}
	msgsY, err := h.Recent(ctx, "book-y", 10)
	if err != nil {
		t.Fatalf("recent y: %v", err)
	}

	if len(msgsX) != 1 || msgsX[0].Content != "from x" {
		t.Errorf("book x isolation failed: got %v", msgsX)
	}
	if len(msgsY) != 1 || msgsY[0].Content != "from y" {
		t.Errorf("book y isolation failed: got %v", msgsY)
	}
}

func TestHistory_InvalidRole(t *testing.T) {
	t.Parallel()
	h := openTestHistory(t)
	if err := h.Append(context.Background(), "book", Role("system"), "x"); err == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestHistory_OldestFirstOrdering(t *testing.T) {
	t.Parallel()
	h := openTestHistory(t)
	ctx := context.Background()

	contents := []string{"first", "second", "third"}
	for _, c := range contents {
		if err := h.Append(ctx, "book-order", RoleUser, c); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := h.Recent(ctx, "book-order", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	want := []string{"second", "third"}
	if len(msgs) != len(want) {
		t.Fatalf("want %d messages, got %d", len(want), len(msgs))
	}
	for i := range want {
		if msgs[i].Content != want[i] {
			t.Errorf("msg[%d]: want %q, got %q", i, want[i], msgs[i].Content)
		}
	}
}
