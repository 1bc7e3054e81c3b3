package repository

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"casewatch/internal/apperr"
	"casewatch/internal/models"
	"casewatch/internal/testutil"
)

func TestBuildCaseURL_PathStyle(t *testing.T) {
	if got := BuildCaseURL("http://host/cases/", "12345678"); got != "http://host/cases/12345678" {
		t.Errorf("got %q", got)
	}
	if got := BuildCaseURL("http://host/cases", "12345678"); got != "http://host/cases/12345678" {
		t.Errorf("got %q", got)
	}
}

func TestBuildCaseURL_QueryStyle(t *testing.T) {
	if got := BuildCaseURL("http://host/view?case=", "12345678"); got != "http://host/view?case=12345678" {
		t.Errorf("got %q", got)
	}
	if got := BuildCaseURL("http://host/view?id=", "12345678"); got != "http://host/view?id=12345678" {
		t.Errorf("got %q", got)
	}
}

func TestFileSource_FetchCaseText(t *testing.T) {
	_, store := testutil.TestDir(t)
	if err := store.Write("12345678.txt", []byte("transcript body")); err != nil {
		t.Fatal(err)
	}

	src := NewFileSource(store)
	text, err := src.FetchCaseText(context.Background(), "12345678")
	if err != nil {
		t.Fatalf("FetchCaseText: %v", err)
	}
	if text != "transcript body" {
		t.Errorf("text = %q", text)
	}
}

func TestFileSource_Missing(t *testing.T) {
	_, store := testutil.TestDir(t)
	src := NewFileSource(store)
	_, err := src.FetchCaseText(context.Background(), "00000000")
	var se *apperr.StageError
	if !errors.As(err, &se) {
		t.Fatalf("error %v is not a StageError", err)
	}
	if se.Stage != models.StageFetch {
		t.Errorf("stage = %q, want fetch", se.Stage)
	}
	if se.Transient {
		t.Error("missing file should not be transient")
	}
}

func TestHTTPSource_FetchCaseText(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		io.WriteString(w, "case page body")
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/cases/", time.Second)
	text, err := src.FetchCaseText(context.Background(), "12345678")
	if err != nil {
		t.Fatalf("FetchCaseText: %v", err)
	}
	if text != "case page body" {
		t.Errorf("text = %q", text)
	}
	if gotPath != "/cases/12345678" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestHTTPSource_NotFoundNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/", time.Second)
	_, err := src.FetchCaseText(context.Background(), "12345678")
	var se *apperr.StageError
	if !errors.As(err, &se) {
		t.Fatalf("error %v is not a StageError", err)
	}
	if se.Transient {
		t.Error("404 should not be transient")
	}
}

func TestHTTPSource_ConnectionFailureTransient(t *testing.T) {
	src := NewHTTPSource("http://127.0.0.1:1/", 500*time.Millisecond)
	_, err := src.FetchCaseText(context.Background(), "12345678")
	var se *apperr.StageError
	if !errors.As(err, &se) {
		t.Fatalf("error %v is not a StageError", err)
	}
	if !se.Transient {
		t.Error("connection failure should be transient")
	}
}
