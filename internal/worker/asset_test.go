package worker

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"quantplane/internal/channel"
	"quantplane/internal/job"
	"quantplane/internal/toolchain"
)

func seedCache(t *testing.T, ch *channel.Memory, source string, withMarker bool, payload int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < payload; i++ {
		name := channel.CacheDir(source) + "shard-" + string(rune('a'+i)) + ".bin"
		if err := ch.Put(ctx, name, []byte("shard")); err != nil {
			t.Fatal(err)
		}
	}
	if withMarker {
		if err := ch.Put(ctx, channel.CacheCompleteName(source), []byte("ok")); err != nil {
			t.Fatal(err)
		}
	}
}

func TestAcquireInputAsset_CacheHitSkipsDownload(t *testing.T) {
	ctx := context.Background()
	ch := channel.NewMemory()
	seedCache(t, ch, "meta-llama/Llama-3-8B", true, 2)
	fetcher := &fakeFetcher{}

	a, _ := newTestAgent(t, ch, toolchain.NewFake(), testMetadata(job.ActionBuild), fetcher)
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if fetcher.calls != 0 {
		t.Errorf("fetcher called %d times on a complete cache, want 0", fetcher.calls)
	}
	// The cached payload was restored locally.
	if _, err := os.Stat(filepath.Join(a.sourceDir(), "shard-a.bin")); err != nil {
		t.Errorf("cache payload not restored: %v", err)
	}
}

func TestAcquireInputAsset_MissingMarkerIsMiss(t *testing.T) {
	ctx := context.Background()
	ch := channel.NewMemory()
	seedCache(t, ch, "meta-llama/Llama-3-8B", false, 2)
	fetcher := &fakeFetcher{}

	a, _ := newTestAgent(t, ch, toolchain.NewFake(), testMetadata(job.ActionBuild), fetcher)
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("cache without marker must be a miss, fetcher calls = %d", fetcher.calls)
	}
}

func TestAcquireInputAsset_MarkerWithoutPayloadIsMiss(t *testing.T) {
	ctx := context.Background()
	ch := channel.NewMemory()
	seedCache(t, ch, "meta-llama/Llama-3-8B", true, 0)
	fetcher := &fakeFetcher{}

	a, _ := newTestAgent(t, ch, toolchain.NewFake(), testMetadata(job.ActionBuild), fetcher)
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("marker without payload must be a miss, fetcher calls = %d", fetcher.calls)
	}
}

func TestAcquireInputAsset_WritesBackCache(t *testing.T) {
	ctx := context.Background()
	ch := channel.NewMemory()
	fetcher := &fakeFetcher{}

	a, _ := newTestAgent(t, ch, toolchain.NewFake(), testMetadata(job.ActionBuild), fetcher)
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := ch.Stat(ctx, channel.CacheCompleteName("meta-llama/Llama-3-8B")); err != nil {
		t.Errorf("completeness marker not written back: %v", err)
	}
	if _, err := ch.Stat(ctx, channel.CacheDir("meta-llama/Llama-3-8B")+"weights.safetensors"); err != nil {
		t.Errorf("payload not written back: %v", err)
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "blobs"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "manifest"), []byte("m"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "blobs", "sha256-abc"), []byte("blob"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := packDir(src, &buf); err != nil {
		t.Fatalf("packDir: %v", err)
	}

	dst := t.TempDir()
	if err := unpackDir(&buf, dst); err != nil {
		t.Fatalf("unpackDir: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dst, "blobs", "sha256-abc"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "blob" {
		t.Errorf("blob content = %q", data)
	}
}
