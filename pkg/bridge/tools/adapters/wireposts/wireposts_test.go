package wireposts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSearchPosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/posts/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer svc-key" {
			t.Errorf("auth = %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "golang" {
			t.Errorf("q = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"posts":[{"id":"p1","author":"ana","text":"go 1.25 is out","likes":12}]}`))
	}))
	defer srv.Close()

	c := NewClient("svc-key", srv.URL, srv.Client())
	posts, err := c.SearchPosts(context.Background(), "golang", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(posts) != 1 || posts[0].Author != "ana" {
		t.Fatalf("posts = %+v", posts)
	}
}

func TestEmptyBaseURLFallsBackToProductionHost(t *testing.T) {
	c := NewClient("svc-key", "", nil)
	if c.baseURL != "https://api.wireposts.net" {
		t.Fatalf("baseURL = %q", c.baseURL)
	}
}

func TestSearchPostsRequiresQuery(t *testing.T) {
	c := NewClient("svc-key", "http://unused", nil)
	if _, err := c.SearchPosts(context.Background(), "  ", 5); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestPublishPostUsesCallerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer caller-token" {
			t.Errorf("auth = %q", got)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body["text"] != "hello from the road" {
			t.Errorf("text = %q", body["text"])
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Post{ID: "p9", Text: body["text"]})
	}))
	defer srv.Close()

	c := NewClient("svc-key", srv.URL, srv.Client())
	post, err := c.PublishPost(context.Background(), "caller-token", "hello from the road")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if post.ID != "p9" {
		t.Fatalf("post = %+v", post)
	}
}

func TestErrorStatusSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "token expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient("svc-key", srv.URL, srv.Client())
	if _, err := c.ReadMentions(context.Background(), "stale-token", 5); err == nil {
		t.Fatal("expected error on 401")
	}
}

func TestSendDirectMessageValidation(t *testing.T) {
	c := NewClient("svc-key", "http://unused", nil)
	if err := c.SendDirectMessage(context.Background(), "tok", "", "hi"); err == nil {
		t.Fatal("expected error for empty recipient")
	}
	if err := c.SendDirectMessage(context.Background(), "tok", "bob", ""); err == nil {
		t.Fatal("expected error for empty text")
	}
}
