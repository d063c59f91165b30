package xapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLikedPostsClampsMaxResults(t *testing.T) {
	var gotPath, gotMaxResults, gotFields string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMaxResults = r.URL.Query().Get("max_results")
		gotFields = r.URL.Query().Get("tweet.fields")
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"id":"1","text":"great read https://example.com/a?utm_source=x","created_at":"2024-05-01T00:00:00Z"},
			{"id":"2","text":"no links here","created_at":"2024-05-02T00:00:00Z"},
			{"id":"3","text":"entities only","entities":{"urls":[{"url":"https://t.co/zzz","expanded_url":"https://example.com/b"}]}}
		]}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "user-1", server.URL, server.Client())
	posts, err := client.LikedPosts(context.Background(), 2)
	if err != nil {
		t.Fatalf("LikedPosts() error = %v", err)
	}

	if gotPath != "/users/user-1/liked_tweets" {
		t.Errorf("path = %q", gotPath)
	}
	if gotMaxResults != "5" {
		t.Errorf("max_results = %q, want 5", gotMaxResults)
	}
	if gotFields != "created_at,entities" {
		t.Errorf("tweet.fields = %q", gotFields)
	}
	if len(posts) != 2 {
		t.Fatalf("len(posts) = %d, want 2", len(posts))
	}
	if posts[0].ID != "1" || posts[1].ID != "2" {
		t.Errorf("post ids = %q, %q", posts[0].ID, posts[1].ID)
	}
	if len(posts[0].URLs) != 1 || posts[0].URLs[0] != "https://example.com/a" {
		t.Errorf("posts[0].URLs = %v, want tracking params stripped", posts[0].URLs)
	}
	if len(posts[1].URLs) != 0 {
		t.Errorf("posts[1].URLs = %v, want empty", posts[1].URLs)
	}
}

func TestLikedPostsFallsBackToEntityURLs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/user-1/liked_tweets", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"9","text":"entities only","entities":{"urls":[{"url":"https://t.co/zzz","expanded_url":"https://example.com/article"}]}}]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient("test-token", "user-1", server.URL, server.Client())
	posts, err := client.LikedPosts(context.Background(), 5)
	if err != nil {
		t.Fatalf("LikedPosts() error = %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("len(posts) = %d, want 1", len(posts))
	}
	if len(posts[0].URLs) != 1 || posts[0].URLs[0] != "https://example.com/article" {
		t.Errorf("URLs = %v, want expanded entity url", posts[0].URLs)
	}
}

func TestLikedPostsPaymentRequired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	client := NewClient("test-token", "user-1", server.URL, server.Client())
	_, err := client.LikedPosts(context.Background(), 5)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusPaymentRequired {
		t.Errorf("StatusCode = %d, want 402", apiErr.StatusCode)
	}
}

func TestLikedPostsResolvesUserIDOnce(t *testing.T) {
	meCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		meCalls++
		w.Write([]byte(`{"data":{"id":"resolved-7"}}`))
	})
	mux.HandleFunc("/users/resolved-7/liked_tweets", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient("test-token", "", server.URL, server.Client())
	for i := 0; i < 2; i++ {
		if _, err := client.LikedPosts(context.Background(), 5); err != nil {
			t.Fatalf("LikedPosts() #%d error = %v", i+1, err)
		}
	}
	if meCalls != 1 {
		t.Errorf("users/me calls = %d, want 1", meCalls)
	}
}

func TestLikedPostsWithoutToken(t *testing.T) {
	client := NewClient("", "", "", nil)
	_, err := client.LikedPosts(context.Background(), 5)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", apiErr.StatusCode)
	}
}

func TestFullTextPrefersNoteTweet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tweet.fields") != "note_tweet" {
			t.Errorf("tweet.fields = %q", r.URL.Query().Get("tweet.fields"))
		}
		w.Write([]byte(`{"data":{"id":"5","text":"short… https://t.co/abc","note_tweet":{"text":"the complete long-form body"}}}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "user-1", server.URL, server.Client())
	text, err := client.FullText(context.Background(), "5")
	if err != nil {
		t.Fatalf("FullText() error = %v", err)
	}
	if text.ExtendedText != "the complete long-form body" {
		t.Errorf("ExtendedText = %q", text.ExtendedText)
	}
	if text.Truncated {
		t.Error("Truncated = true, want false when note_tweet is present")
	}
}

func TestFullTextDetectsTruncation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"5","text":"this got cut off… https://t.co/abc"}}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "user-1", server.URL, server.Client())
	text, err := client.FullText(context.Background(), "5")
	if err != nil {
		t.Fatalf("FullText() error = %v", err)
	}
	if !text.Truncated {
		t.Error("Truncated = false, want true for trailing short link")
	}
}

func TestFullTextErrorsArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"title":"Not Found Error","detail":"Could not find tweet"}]}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "user-1", server.URL, server.Client())
	_, err := client.FullText(context.Background(), "gone")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
	if apiErr.Message != "Not Found Error" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestFullTextUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"title":"Forbidden"}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "user-1", server.URL, server.Client())
	_, err := client.FullText(context.Background(), "5")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", apiErr.StatusCode)
	}
}
