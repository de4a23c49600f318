package transport

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spread-install/spread/pkg/job"
)

func TestDownloadSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("served content"))
	}))
	defer server.Close()

	var buf bytes.Buffer
	d := &HTTPDownloader{}
	if err := d.Download(context.Background(), server.URL, &buf, job.NewInfo()); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if buf.String() != "served content" {
		t.Fatalf("unexpected content: %q", buf.String())
	}
}

func TestDownloadRetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("eventually"))
	}))
	defer server.Close()

	var buf bytes.Buffer
	d := &HTTPDownloader{MaxAttempts: 3, BackoffBase: time.Millisecond}
	if err := d.Download(context.Background(), server.URL, &buf, job.NewInfo()); err != nil {
		t.Fatalf("Download should have succeeded after retries: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if buf.String() != "eventually" {
		t.Fatalf("unexpected content: %q", buf.String())
	}
}

func TestDownloadDoesNotRetryNotFound(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	var buf bytes.Buffer
	d := &HTTPDownloader{MaxAttempts: 3, BackoffBase: time.Millisecond}
	if err := d.Download(context.Background(), server.URL, &buf, job.NewInfo()); err == nil {
		t.Fatal("expected a permanent failure")
	}
	if attempts != 1 {
		t.Fatalf("a 404 must not be retried, got %d attempts", attempts)
	}
}

func TestDownloadGivesUpAfterMaxAttempts(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var buf bytes.Buffer
	d := &HTTPDownloader{MaxAttempts: 2, BackoffBase: time.Millisecond}
	if err := d.Download(context.Background(), server.URL, &buf, job.NewInfo()); err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestDownloadHonorsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	d := &HTTPDownloader{MaxAttempts: 5, BackoffBase: time.Hour}
	if err := d.Download(ctx, server.URL, &buf, job.NewInfo()); err == nil {
		t.Fatal("expected a cancellation error")
	}
}
