package custody

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestVaultPullRequiresAllowanceAndBalance(t *testing.T) {
	v := NewVault()
	ctx := context.Background()

	v.Mint("alice", 100)

	if err := v.Pull(ctx, "alice", 50); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("pull without allowance: expected ErrInsufficientAllowance, got %v", err)
	}

	v.Approve("alice", 200)
	if err := v.Pull(ctx, "alice", 150); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("pull over balance: expected ErrInsufficientFunds, got %v", err)
	}

	if err := v.Pull(ctx, "alice", 60); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if got := v.BalanceOf("alice"); got != 40 {
		t.Fatalf("holder balance = %d, want 40", got)
	}
	pool, _ := v.Balance(ctx)
	if pool != 60 {
		t.Fatalf("pool = %d, want 60", pool)
	}
}

func TestVaultPushBoundedByPool(t *testing.T) {
	v := NewVault()
	ctx := context.Background()

	v.Mint("alice", 100)
	v.Approve("alice", 100)
	if err := v.Pull(ctx, "alice", 100); err != nil {
		t.Fatalf("pull: %v", err)
	}

	if err := v.Push(ctx, "bob", 101); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("overdraw push: expected ErrInsufficientFunds, got %v", err)
	}
	if err := v.Push(ctx, "bob", 100); err != nil {
		t.Fatalf("push: %v", err)
	}
	if got := v.BalanceOf("bob"); got != 100 {
		t.Fatalf("recipient balance = %d, want 100", got)
	}
}

func TestRPCAdapterCalls(t *testing.T) {
	var lastMethod string
	var lastParams []any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		lastMethod = req.Method
		lastParams = req.Params

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if req.Method == "custody_balance" {
			resp["result"] = 12345
		} else {
			resp["result"] = true
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	adapter, err := NewRPCAdapter(RPCConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	ctx := context.Background()

	if err := adapter.Pull(ctx, "alice", 100); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if lastMethod != "custody_pull" || len(lastParams) != 2 || lastParams[0] != "alice" {
		t.Fatalf("pull request = %s %v", lastMethod, lastParams)
	}

	if err := adapter.Push(ctx, "bob", 50); err != nil {
		t.Fatalf("push: %v", err)
	}
	if lastMethod != "custody_push" {
		t.Fatalf("push method = %s", lastMethod)
	}

	total, err := adapter.Balance(ctx)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if total != 12345 {
		t.Fatalf("balance = %d, want 12345", total)
	}
}

func TestRPCAdapterSurfacesNodeErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"error":   map[string]any{"code": -100, "message": "insufficient funds"},
		})
	}))
	defer server.Close()

	adapter, err := NewRPCAdapter(RPCConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	if err := adapter.Pull(context.Background(), "alice", 100); err == nil {
		t.Fatal("node error not surfaced")
	}
}

func TestRPCAdapterRequiresURL(t *testing.T) {
	if _, err := NewRPCAdapter(RPCConfig{}); err == nil {
		t.Fatal("empty URL accepted")
	}
}
