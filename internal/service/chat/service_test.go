package chat_test

import (
	"context"
	"errors"
	"testing"

	model "github.com/zhouzirui/kb-chat/backend/internal/model/chat"
	chat "github.com/zhouzirui/kb-chat/backend/internal/service/chat"
)

func TestServiceGetSession(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession err: %v", err)
	}

	got, err := svc.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}

	if got.ID != session.ID {
		t.Fatalf("unexpected session ID: got %s want %s", got.ID, session.ID)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("expected creation time to be set")
	}
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	if _, err := svc.GetSession(ctx, "missing"); err == nil {
		t.Fatal("expected error for missing session")
	}
}

func TestInitIfAbsentIsIdempotent(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	first, created := svc.InitIfAbsent(ctx, "browser-tab")
	if !created {
		t.Fatal("expected first call to create the session")
	}
	if err := svc.Append(ctx, first.ID, model.UserTurn("hello")); err != nil {
		t.Fatalf("Append err: %v", err)
	}

	second, created := svc.InitIfAbsent(ctx, "browser-tab")
	if created {
		t.Fatal("expected second call to be a no-op")
	}
	if second != first {
		t.Fatalf("session changed: %+v vs %+v", second, first)
	}

	turns, err := svc.All(ctx, "browser-tab")
	if err != nil {
		t.Fatalf("All err: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected history to survive re-init, got %d turns", len(turns))
	}
}

func TestInitIfAbsentGeneratesID(t *testing.T) {
	svc := chat.NewService()

	a, _ := svc.InitIfAbsent(context.Background(), "")
	b, _ := svc.InitIfAbsent(context.Background(), "")
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct generated ids, got %q and %q", a.ID, b.ID)
	}
}

func TestAllPreservesInsertionOrder(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx)

	want := []model.Turn{
		model.UserTurn("q1"),
		model.AssistantTurn("a1"),
		model.UserTurn("q2"),
		model.AssistantTurn("a2"),
	}
	for _, turn := range want {
		if err := svc.Append(ctx, session.ID, turn); err != nil {
			t.Fatalf("Append err: %v", err)
		}
	}

	got, err := svc.All(ctx, session.ID)
	if err != nil {
		t.Fatalf("All err: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("turn %d: got %+v want %+v", i, got[i], want[i])
		}
	}

	got[0].Text = "mutated"
	again, _ := svc.All(ctx, session.ID)
	if again[0].Text != "q1" {
		t.Fatal("All must return a copy of the history")
	}
}

func TestAppendRejectsUnknownSessionAndRole(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()

	if err := svc.Append(ctx, "missing", model.UserTurn("q")); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	session, _ := svc.CreateSession(ctx)
	if err := svc.Append(ctx, session.ID, model.Turn{Role: "system", Text: "x"}); !errors.Is(err, chat.ErrInvalidTurn) {
		t.Fatalf("expected ErrInvalidTurn, got %v", err)
	}
}

func TestEndDiscardsSession(t *testing.T) {
	svc := chat.NewService()
	ctx := context.Background()
	session, _ := svc.CreateSession(ctx)

	if err := svc.End(ctx, session.ID); err != nil {
		t.Fatalf("End err: %v", err)
	}
	if _, err := svc.All(ctx, session.ID); !errors.Is(err, chat.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after End, got %v", err)
	}

	again, created := svc.InitIfAbsent(ctx, session.ID)
	if !created {
		t.Fatal("expected session to be recreated after End")
	}
	turns, _ := svc.All(ctx, again.ID)
	if len(turns) != 0 {
		t.Fatalf("expected recreated session to be empty, got %d turns", len(turns))
	}
}
