package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Place is a resolved reverse-geocoding result
type Place struct {
	City     string `json:"city"`
	Country  string `json:"country,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Geocoder resolves coordinates to a place. Failures must degrade gracefully:
// callers treat any error as "no city", never as fatal.
type Geocoder interface {
	ResolveCity(ctx context.Context, lat, lon float64) (*Place, error)
}

// MapboxGeocoder calls the Mapbox reverse-geocoding API. Outbound calls are
// rate limited and results are cached by rounded coordinates, since seshes
// from the same bathroom resolve to the same city.
type MapboxGeocoder struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	limiter     *rate.Limiter
	cache       *gocache.Cache
}

// NewMapboxGeocoder creates a geocoder against the given API base URL
func NewMapboxGeocoder(baseURL, accessToken string) *MapboxGeocoder {
	return &MapboxGeocoder{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(5), 10), // 5 req/s, burst 10
		cache:   gocache.New(24*time.Hour, 1*time.Hour),
	}
}

// mapbox /reverse response, trimmed to the fields we read
type reverseResponse struct {
	Features []struct {
		Properties struct {
			Name    string `json:"name"`
			Context struct {
				Country struct {
					Name string `json:"name"`
				} `json:"country"`
			} `json:"context"`
		} `json:"properties"`
	} `json:"features"`
}

// ResolveCity resolves lat/lon to the nearest place name
func (g *MapboxGeocoder) ResolveCity(ctx context.Context, lat, lon float64) (*Place, error) {
	cacheKey := fmt.Sprintf("%.3f:%.3f", lat, lon)
	if cached, ok := g.cache.Get(cacheKey); ok {
		return cached.(*Place), nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%f", lat))
	q.Set("longitude", fmt.Sprintf("%f", lon))
	q.Set("types", "place")
	q.Set("access_token", g.accessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geocode request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode request returned status %d", resp.StatusCode)
	}

	var parsed reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse geocode response: %w", err)
	}

	if len(parsed.Features) == 0 {
		return nil, fmt.Errorf("no place found for %.3f,%.3f", lat, lon)
	}

	place := &Place{
		City:    parsed.Features[0].Properties.Name,
		Country: parsed.Features[0].Properties.Context.Country.Name,
	}

	g.cache.Set(cacheKey, place, gocache.DefaultExpiration)
	return place, nil
}
