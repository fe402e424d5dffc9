package titles

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// chatServer replies to every completion with content.
func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "test-model" || len(req.Messages) != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
			t.Errorf("expected a JSON object response format, got %+v", req.ResponseFormat)
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]string{"role": "assistant", "content": content}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFallbackTitlesDeterministic(t *testing.T) {
	a := FallbackTitles("How To Bake Bread", 3)
	b := FallbackTitles("How To Bake Bread", 3)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("fallback titles differ: %v %v", a, b)
	}
	want := []string{"How To Bake Bread #1", "How To Bake Bread #2", "How To Bake Bread #3"}
	if !reflect.DeepEqual(a, want) {
		t.Fatalf("got %v, want %v", a, want)
	}
	if got := FallbackTitles("", 1); got[0] != "Highlight #1" {
		t.Fatalf("empty source title gave %q", got[0])
	}
}

func TestFallbackMetadata(t *testing.T) {
	md := FallbackMetadata("Cooking pasta at home", 1, 4)
	if md.Title != "Cooking pasta at home #2" {
		t.Errorf("title = %q", md.Title)
	}
	if !strings.HasPrefix(md.Description, `Part 2 of 4 from "Cooking pasta at home".`) {
		t.Errorf("description = %q", md.Description)
	}
	want := []string{"shorts", "cooking", "pasta", "home"}
	if !reflect.DeepEqual(md.Tags, want) {
		t.Errorf("tags = %v, want %v", md.Tags, want)
	}
}

func TestDisabledUsesTemplates(t *testing.T) {
	g := New("", "test-model", "http://127.0.0.1:0", quietLog())
	if g.Enabled() {
		t.Fatalf("expected disabled without a key")
	}
	got, err := g.GenerateClipTitles(context.Background(), "Video", 2)
	if err != nil || !reflect.DeepEqual(got, FallbackTitles("Video", 2)) {
		t.Fatalf("got %v %v", got, err)
	}
}

func TestGenerateClipTitles(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"titles": ["  First   one ", "", "Second", "Third", "Fourth"]}`)
	g := New("test-key", "test-model", srv.URL, quietLog())

	got, err := g.GenerateClipTitles(context.Background(), "Video", 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"First one", "Second", "Third"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestGenerateClipTitlesPadsShortReply(t *testing.T) {
	srv := chatServer(t, http.StatusOK, "```json\n{\"titles\": [\"Only one\"]}\n```")
	g := New("test-key", "test-model", srv.URL, quietLog())

	got, _ := g.GenerateClipTitles(context.Background(), "Video", 3)
	want := []string{"Only one", "Video #2", "Video #3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestGenerateFallsBackOnError(t *testing.T) {
	srv := chatServer(t, http.StatusInternalServerError, "")
	g := New("test-key", "test-model", srv.URL, quietLog())

	got, err := g.GenerateClipTitles(context.Background(), "Video", 2)
	if err != nil || !reflect.DeepEqual(got, FallbackTitles("Video", 2)) {
		t.Fatalf("got %v %v", got, err)
	}
	md, err := g.GenerateMetadata(context.Background(), "Video", 0, 2)
	if err != nil || !reflect.DeepEqual(md, FallbackMetadata("Video", 0, 2)) {
		t.Fatalf("got %+v %v", md, err)
	}
}

func TestGenerateMetadata(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"title": "\"Big moment\"", "description": "A clip.", "tags": ["#Fun", "fun", " Wow "]}`)
	g := New("test-key", "test-model", srv.URL, quietLog())

	md, err := g.GenerateMetadata(context.Background(), "Video", 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := Metadata{Title: "Big moment", Description: "A clip.", Tags: []string{"fun", "wow"}}
	if !reflect.DeepEqual(md, want) {
		t.Fatalf("got %+v, want %+v", md, want)
	}
}

func TestShorten(t *testing.T) {
	if got := shorten("one two three", 9); got != "one two" {
		t.Errorf("shorten = %q", got)
	}
	if got := shorten("abcdefghij", 4); got != "abcd" {
		t.Errorf("shorten long word = %q", got)
	}
}
