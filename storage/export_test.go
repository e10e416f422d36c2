package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMemoryStorePutOpenRevoke(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("http://localhost:8080")

	data := []byte("webm-bytes")
	h, err := s.Put(ctx, "clip.webm", "video/webm", data)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	data[0] = 'X' // store must have copied
	if h.Size != 10 || h.Filename != "clip.webm" || h.ID == "" {
		t.Fatalf("handle = %+v", h)
	}
	if !strings.HasSuffix(h.URL, "/exports/"+h.ID) {
		t.Fatalf("url = %s", h.URL)
	}

	got, rc, err := s.Open(ctx, h.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "webm-bytes" || got.ID != h.ID {
		t.Fatalf("body %q handle %+v", body, got)
	}

	if err := s.Revoke(ctx, h.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if s.Live() != 0 {
		t.Fatalf("live = %d", s.Live())
	}
	if _, _, err := s.Open(ctx, h.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("open after revoke: %v", err)
	}
	if err := s.Revoke(ctx, h.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double revoke: %v", err)
	}
}

func TestFormatSize(t *testing.T) {
	cases := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1536:            "1.5 KB",
		5 * 1024 * 1024: "5.0 MB",
	}
	for in, want := range cases {
		if got := FormatSize(in); got != want {
			t.Fatalf("FormatSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestPrintExports(t *testing.T) {
	var buf strings.Builder
	objects := []ObjectInfo{{
		Key:  exportsPrefix + "0b6c/audio-director-2026-05-01T20-00-00-000Z.webm",
		Size: 3 * 1024 * 1024,
	}}
	PrintExports(&buf, "vizdirector", objects, &BucketStats{TotalObjects: 1, TotalSize: 3 * 1024 * 1024})

	out := buf.String()
	for _, want := range []string{"bucket:        vizdirector", "3.0 MB", "0b6c/audio-director-2026-05-01T20-00-00-000Z.webm"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, exportsPrefix+"0b6c") {
		t.Fatalf("prefix not trimmed:\n%s", out)
	}
}
