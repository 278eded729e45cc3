package auth

import (
	"context"
	"errors"
	"testing"
)

func TestWithActor_ActorFromCtx(t *testing.T) {
	ctx := WithActor(context.Background(), "dr-jones")

	got, err := ActorFromCtx(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "dr-jones" {
		t.Fatalf("expected %q, got %q", "dr-jones", got)
	}
}

func TestActorFromCtx_EmptyContext(t *testing.T) {
	_, err := ActorFromCtx(context.Background())
	if !errors.Is(err, ErrActorNotFound) {
		t.Fatalf("expected ErrActorNotFound, got %v", err)
	}
}

func TestActorFromCtx_BlankActor(t *testing.T) {
	ctx := WithActor(context.Background(), "   ")
	_, err := ActorFromCtx(ctx)
	if !errors.Is(err, ErrActorNotFound) {
		t.Fatalf("expected ErrActorNotFound for blank actor, got %v", err)
	}
}

func TestActorFromCtx_Isolation(t *testing.T) {
	ctx1 := WithActor(context.Background(), "nurse-1")
	ctx2 := WithActor(context.Background(), "nurse-2")

	got1, _ := ActorFromCtx(ctx1)
	got2, _ := ActorFromCtx(ctx2)

	if got1 != "nurse-1" || got2 != "nurse-2" {
		t.Fatalf("unexpected actors: %q, %q", got1, got2)
	}
}
