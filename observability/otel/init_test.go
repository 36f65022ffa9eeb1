package otel

import (
	"context"
	"testing"
)

func TestParseHeaders(t *testing.T) {
	got := ParseHeaders(" api-key = abc , broken, =x, tenant=free-domain ,")
	if len(got) != 2 {
		t.Fatalf("unexpected headers: %v", got)
	}
	if got["api-key"] != "abc" || got["tenant"] != "free-domain" {
		t.Fatalf("unexpected headers: %v", got)
	}
	if len(ParseHeaders("")) != 0 {
		t.Fatalf("expected empty map for empty input")
	}
}

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error without service name")
	}
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "freedomaind"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
