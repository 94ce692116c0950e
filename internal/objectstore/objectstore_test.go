package objectstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeS3 is a path-style S3 endpoint that keeps objects in memory.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	bucket := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case len(parts) == 1 && r.Method == http.MethodPut:
		f.buckets[bucket] = true
		w.WriteHeader(http.StatusOK)
	case len(parts) == 2 && r.Method == http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = data
		w.WriteHeader(http.StatusOK)
	case len(parts) == 2 && r.Method == http.MethodGet:
		data, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		_, _ = w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T) (*Client, *fakeS3) {
	t.Helper()
	fake := &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := New(context.Background(), Config{
		Endpoint:     srv.URL,
		Region:       "us-east-1",
		AccessKey:    "minio",
		SecretKey:    "minio123",
		PublicURL:    "http://media.local/",
		UsePathStyle: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client, fake
}

func TestClient_PutGet(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()

	if err := client.EnsureBuckets(ctx, "user-avatars"); err != nil {
		t.Fatalf("EnsureBuckets: %v", err)
	}
	if !fake.buckets["user-avatars"] {
		t.Fatal("expected bucket to be created")
	}

	url, err := client.Put(ctx, "user-avatars", "abc_me.png", "image/png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if url != "http://media.local/user-avatars/abc_me.png" {
		t.Fatalf("url = %q", url)
	}

	data, err := client.Get(ctx, "user-avatars", "abc_me.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("data = %q", data)
	}

	if _, err := client.Get(ctx, "user-avatars", "nope.png"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_URLEscapesName(t *testing.T) {
	client, _ := newTestClient(t)

	got := client.URL("user-avatars", "abc_my cat #1?.png")
	if got != "http://media.local/user-avatars/abc_my%20cat%20%231%3F.png" {
		t.Fatalf("url = %q", got)
	}
}

func TestObjectName(t *testing.T) {
	tests := []struct {
		filename string
		suffix   string
	}{
		{filename: "me.png", suffix: "_me.png"},
		{filename: "../../etc/passwd", suffix: "_passwd"},
		{filename: `C:\photos\cat.jpg`, suffix: "_cat.jpg"},
		{filename: "", suffix: "_upload"},
	}

	for _, tc := range tests {
		t.Run(tc.filename, func(t *testing.T) {
			got := ObjectName(tc.filename)
			if !strings.HasSuffix(got, tc.suffix) {
				t.Fatalf("ObjectName(%q) = %q, want suffix %q", tc.filename, got, tc.suffix)
			}
			if len(got) != 36+len(tc.suffix) {
				t.Fatalf("ObjectName(%q) = %q, want uuid prefix", tc.filename, got)
			}
		})
	}

	if ObjectName("a.png") == ObjectName("a.png") {
		t.Fatal("expected unique names")
	}
}
