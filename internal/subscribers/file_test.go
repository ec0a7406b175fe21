package subscribers

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"tapwatch/pkg/logx"
)

func newBotRegistry(t *testing.T, audit bool) (BotRegistry, string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "users.txt")
	auditPath := ""
	if audit {
		auditPath = filepath.Join(dir, "audit.jsonl")
	}
	reg, err := NewBotFile(path, auditPath, logx.Nop())
	if err != nil {
		t.Fatalf("NewBotFile: %v", err)
	}
	return reg, path, auditPath
}

func chatIDs(t *testing.T, reg BotRegistry) []int64 {
	t.Helper()
	list, err := reg.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	out := make([]int64, len(list))
	for i, r := range list {
		out[i] = r.ChatID
	}
	return out
}

func TestBotFileAddListRemove(t *testing.T) {
	t.Parallel()

	reg, _, _ := newBotRegistry(t, false)
	ctx := context.Background()

	for _, id := range []int64{100, 200, 300} {
		if err := reg.Add(ctx, id, Profile{}); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
	}
	if got := chatIDs(t, reg); len(got) != 3 || got[0] != 100 || got[2] != 300 {
		t.Fatalf("ids = %v", got)
	}

	if err := reg.Remove(ctx, 200); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if got := chatIDs(t, reg); len(got) != 2 || got[0] != 100 || got[1] != 300 {
		t.Fatalf("ids after remove = %v", got)
	}
}

func TestBotFileListDedupesAndSkipsGarbage(t *testing.T) {
	t.Parallel()

	reg, path, _ := newBotRegistry(t, false)
	raw := "100\n\n100\nnot-a-number\n0\n200\n  300 \n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	got := chatIDs(t, reg)
	want := []int64{100, 200, 300}
	if len(got) != len(want) {
		t.Fatalf("ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ids = %v, want %v in first-seen order", got, want)
		}
	}
}

func TestBotFileMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	reg, _, _ := newBotRegistry(t, false)
	if got := chatIDs(t, reg); len(got) != 0 {
		t.Fatalf("ids = %v, want empty", got)
	}
}

func TestBotFileAuditLog(t *testing.T) {
	t.Parallel()

	reg, _, auditPath := newBotRegistry(t, true)
	ctx := context.Background()

	if err := reg.Add(ctx, 42, Profile{Username: "alice", FirstName: "Alice", Language: "ru"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Add(ctx, 43, Profile{}); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(auditPath)
	if err != nil {
		t.Fatalf("audit log: %v", err)
	}
	defer f.Close()

	var entries []auditEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e auditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("audit line %q: %v", sc.Text(), err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(entries))
	}
	if entries[0].ChatID != 42 || entries[0].Username != "alice" || entries[0].Language != "ru" {
		t.Fatalf("entry = %+v", entries[0])
	}
	if entries[0].At.IsZero() {
		t.Fatal("audit entry must be timestamped")
	}
}

func newPushRegistry(t *testing.T) (PushRegistry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "push.json")
	reg, err := NewPushFile(path, logx.Nop())
	if err != nil {
		t.Fatalf("NewPushFile: %v", err)
	}
	return reg, path
}

func TestPushFileAddListRemove(t *testing.T) {
	t.Parallel()

	reg, _ := newPushRegistry(t)
	ctx := context.Background()

	a := PushRecipient{Endpoint: "https://push.example/a", AuthKey: "auth-a", P256dhKey: "p256-a"}
	b := PushRecipient{Endpoint: "https://push.example/b", AuthKey: "auth-b", P256dhKey: "p256-b"}
	for _, r := range []PushRecipient{a, b} {
		if err := reg.Add(ctx, r); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	list, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0] != a || list[1] != b {
		t.Fatalf("list = %+v", list)
	}

	if err := reg.Remove(ctx, a.Endpoint); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	list, err = reg.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0] != b {
		t.Fatalf("list after remove = %+v", list)
	}
}

func TestPushFileAddUpdatesExistingEndpoint(t *testing.T) {
	t.Parallel()

	reg, _ := newPushRegistry(t)
	ctx := context.Background()

	ep := "https://push.example/a"
	if err := reg.Add(ctx, PushRecipient{Endpoint: ep, AuthKey: "old", P256dhKey: "old"}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Add(ctx, PushRecipient{Endpoint: ep, AuthKey: "new", P256dhKey: "new"}); err != nil {
		t.Fatal(err)
	}

	list, err := reg.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].AuthKey != "new" {
		t.Fatalf("list = %+v, want one updated record", list)
	}
}

func TestPushFileOnDiskShape(t *testing.T) {
	t.Parallel()

	reg, path := newPushRegistry(t)
	err := reg.Add(context.Background(), PushRecipient{
		Endpoint: "https://push.example/a", AuthKey: "auth-a", P256dhKey: "p256-a",
	})
	if err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	keys, ok := raw[0]["keys"].(map[string]any)
	if !ok {
		t.Fatalf("keys not nested: %v", raw[0])
	}
	if keys["auth"] != "auth-a" || keys["p256dh"] != "p256-a" {
		t.Fatalf("keys = %v", keys)
	}
}

func TestPushFileCorruptRegistryErrors(t *testing.T) {
	t.Parallel()

	reg, path := newPushRegistry(t)
	if err := os.WriteFile(path, []byte("[{broken"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := reg.List(context.Background()); err == nil {
		t.Fatal("List must surface a corrupt registry instead of wiping it")
	}
	if err := reg.Add(context.Background(), PushRecipient{Endpoint: "https://push.example/a"}); err == nil {
		t.Fatal("Add must refuse to overwrite a corrupt registry")
	}
}
