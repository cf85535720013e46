package blob

import (
	"context"
	"io"
	"strings"
	"testing"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem store: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
		"s3":     NewS3MockForTests(),
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			info, err := store.Put(ctx, "exports/a.json", strings.NewReader(`{"ok":true}`), PutOptions{
				ContentType: "application/json",
				Metadata:    map[string]string{"rows": "1"},
			})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Size != int64(len(`{"ok":true}`)) {
				t.Fatalf("expected size %d, got %d", len(`{"ok":true}`), info.Size)
			}

			// Put is create-only.
			if _, err := store.Put(ctx, "exports/a.json", strings.NewReader("other"), PutOptions{}); err == nil {
				t.Fatal("expected duplicate put to fail")
			}

			head, err := store.Head(ctx, "exports/a.json")
			if err != nil {
				t.Fatalf("head: %v", err)
			}
			if head.ContentType != "application/json" {
				t.Fatalf("expected content type preserved, got %q", head.ContentType)
			}

			got, rc, err := store.Get(ctx, "exports/a.json")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			body, err := io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if string(body) != `{"ok":true}` {
				t.Fatalf("unexpected body %q", body)
			}
			if got.Size != info.Size {
				t.Fatalf("expected size %d, got %d", info.Size, got.Size)
			}

			if _, _, err := store.Get(ctx, "exports/missing.json"); err == nil {
				t.Fatal("expected missing get to fail")
			}

			if _, err := store.Put(ctx, "exports/b.csv", strings.NewReader("id\n1\n"), PutOptions{ContentType: "text/csv"}); err != nil {
				t.Fatalf("put second: %v", err)
			}
			if _, err := store.Put(ctx, "other/c.txt", strings.NewReader("x"), PutOptions{}); err != nil {
				t.Fatalf("put third: %v", err)
			}

			infos, err := store.List(ctx, "exports/")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(infos) != 2 || infos[0].Key != "exports/a.json" || infos[1].Key != "exports/b.csv" {
				t.Fatalf("unexpected listing %+v", infos)
			}

			all, err := store.List(ctx, "")
			if err != nil {
				t.Fatalf("list all: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("expected 3 blobs, got %d", len(all))
			}

			existed, err := store.Delete(ctx, "exports/b.csv")
			if err != nil || !existed {
				t.Fatalf("expected delete to succeed, existed=%v err=%v", existed, err)
			}
			if _, err := store.Head(ctx, "exports/b.csv"); err == nil {
				t.Fatal("expected head of deleted blob to fail")
			}
		})
	}
}

func TestFilesystemRejectsUnsafeKeys(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "  ", "../escape", "a/../../b", "/absolute"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}

func TestFilesystemPresignURL(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	url, err := store.PresignURL(ctx, "exports/a.json", SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.HasPrefix(url, "http://local.blob/") {
		t.Fatalf("unexpected url %q", url)
	}
	if _, err := store.PresignURL(ctx, "exports/a.json", SignedURLOptions{Method: "PUT"}); err != ErrUnsupported {
		t.Fatalf("expected ErrUnsupported for PUT, got %v", err)
	}
}

func TestMemoryPresignUnsupported(t *testing.T) {
	if _, err := NewMemory().PresignURL(context.Background(), "k", SignedURLOptions{}); err != ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestMemoryGetReturnsCopies(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", strings.NewReader("abc"), PutOptions{Metadata: map[string]string{"a": "1"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = rc.Close()
	info.Metadata["a"] = "mutated"

	fresh, err := store.Head(ctx, "k")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if fresh.Metadata["a"] != "1" {
		t.Fatal("expected metadata mutation to not leak into the store")
	}
}

func TestS3PresignURL(t *testing.T) {
	store := NewS3MockForTests()
	ctx := context.Background()
	url, err := store.PresignURL(ctx, "exports/a.json", SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(url, "exports/a.json") {
		t.Fatalf("expected key in presigned url, got %q", url)
	}
	if _, err := store.PresignURL(ctx, "exports/a.json", SignedURLOptions{Method: "PUT"}); err != ErrUnsupported {
		t.Fatalf("expected ErrUnsupported for PUT, got %v", err)
	}
}

func TestDriverIdentifiers(t *testing.T) {
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new fs store: %v", err)
	}
	cases := map[Driver]Store{
		DriverMemory:     NewMemory(),
		DriverFilesystem: fsStore,
		DriverS3:         NewS3MockForTests(),
	}
	for want, store := range cases {
		if got := store.Driver(); got != want {
			t.Fatalf("expected driver %s, got %s", want, got)
		}
	}
}

func TestOpenSelectsDriverFromEnv(t *testing.T) {
	t.Setenv("ROSTERCORE_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %s", store.Driver())
	}

	t.Setenv("ROSTERCORE_BLOB_DRIVER", "fs")
	t.Setenv("ROSTERCORE_BLOB_FS_ROOT", t.TempDir())
	store, err = Open(context.Background())
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("expected fs driver, got %s", store.Driver())
	}

	t.Setenv("ROSTERCORE_BLOB_DRIVER", "bogus")
	if _, err := Open(context.Background()); err == nil {
		t.Fatal("expected unknown driver error")
	}
}
