package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const reverseBody = `{
	"features": [
		{
			"properties": {
				"name": "Minneapolis",
				"context": {"country": {"name": "United States"}}
			}
		}
	]
}`

func TestResolveCity_ParsesPlace(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("types") != "place" {
			t.Errorf("Expected types=place, got %q", q.Get("types"))
		}
		if q.Get("access_token") != "test-token" {
			t.Errorf("Access token missing from query")
		}
		if q.Get("latitude") == "" || q.Get("longitude") == "" {
			t.Error("Coordinates missing from query")
		}
		w.Write([]byte(reverseBody))
	}))
	defer server.Close()

	g := NewMapboxGeocoder(server.URL, "test-token")
	place, err := g.ResolveCity(context.Background(), 44.97, -93.26)
	if err != nil {
		t.Fatalf("ResolveCity failed: %v", err)
	}
	if place.City != "Minneapolis" {
		t.Errorf("Expected Minneapolis, got %q", place.City)
	}
	if place.Country != "United States" {
		t.Errorf("Expected United States, got %q", place.Country)
	}
}

func TestResolveCity_CachesByRoundedCoordinates(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Write([]byte(reverseBody))
	}))
	defer server.Close()

	g := NewMapboxGeocoder(server.URL, "test-token")

	// Two lookups inside the same rounded cell hit the API once
	if _, err := g.ResolveCity(context.Background(), 44.9700, -93.2600); err != nil {
		t.Fatalf("First lookup failed: %v", err)
	}
	if _, err := g.ResolveCity(context.Background(), 44.9701, -93.2601); err != nil {
		t.Fatalf("Second lookup failed: %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("Expected 1 API call, got %d", got)
	}

	// A different cell goes back to the API
	if _, err := g.ResolveCity(context.Background(), 45.10, -93.26); err != nil {
		t.Fatalf("Third lookup failed: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("Expected 2 API calls, got %d", got)
	}
}

func TestResolveCity_NonOKStatusFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	g := NewMapboxGeocoder(server.URL, "bad-token")
	if _, err := g.ResolveCity(context.Background(), 44.97, -93.26); err == nil {
		t.Fatal("Expected an error for a 401 response")
	}
}

func TestResolveCity_NoFeaturesFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"features": []}`))
	}))
	defer server.Close()

	g := NewMapboxGeocoder(server.URL, "test-token")
	if _, err := g.ResolveCity(context.Background(), 0, 0); err == nil {
		t.Fatal("Expected an error when no place matches")
	}
}
