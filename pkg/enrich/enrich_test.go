package enrich

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reelsheet/reelsheet/internal/model"
)

func geocodeServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("geocoding request must carry a User-Agent")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func newTestEnricher(baseURL string) *NominatimEnricher {
	return NewNominatimEnricher(Config{
		BaseURL:        baseURL,
		RequestsPerSec: 1000,
	}, nil)
}

const parisResult = `[{"lat": "48.8566", "lon": "2.3522",
	"address": {"city": "Paris", "state": "Ile-de-France", "country": "France"}}]`

func TestEnrich_ResolvesLocationAndFloorsConfidence(t *testing.T) {
	srv := geocodeServer(t, parisResult)
	defer srv.Close()

	e := newTestEnricher(srv.URL)
	item := model.Item{Name: "Cafe de Flore", Type: model.TypePlace, Confidence: 0.5}

	got, err := e.Enrich(context.Background(), item, nil, nil)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if got.Lat == nil || math.Abs(*got.Lat-48.8566) > 1e-9 {
		t.Errorf("Lat = %v, want 48.8566", got.Lat)
	}
	if got.City != "Paris" || got.Country != "France" {
		t.Errorf("address not filled: %+v", got)
	}
	if got.Confidence != 0.7 {
		t.Errorf("Confidence = %v, want floored to 0.7", got.Confidence)
	}
}

func TestEnrich_NeverLowersConfidence(t *testing.T) {
	srv := geocodeServer(t, parisResult)
	defer srv.Close()

	e := newTestEnricher(srv.URL)
	item := model.Item{Name: "Cafe de Flore", Type: model.TypePlace, Confidence: 0.95}

	got, err := e.Enrich(context.Background(), item, nil, nil)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if got.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95 kept", got.Confidence)
	}
}

func TestEnrich_DoesNotOverwriteSetFields(t *testing.T) {
	srv := geocodeServer(t, parisResult)
	defer srv.Close()

	e := newTestEnricher(srv.URL)
	item := model.Item{Name: "Cafe de Flore", Type: model.TypePlace, City: "Lyon"}

	got, err := e.Enrich(context.Background(), item, nil, nil)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if got.City != "Lyon" {
		t.Errorf("City = %q, set field must survive", got.City)
	}
	if got.State != "Ile-de-France" {
		t.Errorf("State = %q, empty field should be filled", got.State)
	}
}

func TestEnrich_Idempotent(t *testing.T) {
	srv := geocodeServer(t, parisResult)
	defer srv.Close()

	e := newTestEnricher(srv.URL)
	item := model.Item{Name: "Cafe de Flore", Type: model.TypePlace, Confidence: 0.5}

	once, err := e.Enrich(context.Background(), item, nil, nil)
	if err != nil {
		t.Fatalf("first Enrich: %v", err)
	}
	twice, err := e.Enrich(context.Background(), once, nil, nil)
	if err != nil {
		t.Fatalf("second Enrich: %v", err)
	}
	if *twice.Lat != *once.Lat || twice.Confidence != once.Confidence || twice.City != once.City {
		t.Errorf("second pass changed the item: %+v vs %+v", once, twice)
	}
}

func TestEnrich_DistanceFromOrigin(t *testing.T) {
	srv := geocodeServer(t, parisResult)
	defer srv.Close()

	e := newTestEnricher(srv.URL)
	item := model.Item{Name: "Cafe de Flore", Type: model.TypePlace}
	originLat, originLng := 51.5074, -0.1278 // London

	got, err := e.Enrich(context.Background(), item, &originLat, &originLng)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if got.DistanceKm == nil {
		t.Fatal("DistanceKm not set")
	}
	// London to Paris is about 344 km.
	if *got.DistanceKm < 330 || *got.DistanceKm > 360 {
		t.Errorf("DistanceKm = %v, want ~344", *got.DistanceKm)
	}
}

func TestEnrich_NoMatchLeavesItemUntouched(t *testing.T) {
	srv := geocodeServer(t, `[]`)
	defer srv.Close()

	e := newTestEnricher(srv.URL)
	item := model.Item{Name: "Nowhere Special", Type: model.TypePlace, Confidence: 0.5}

	got, err := e.Enrich(context.Background(), item, nil, nil)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if got.Lat != nil {
		t.Error("no-match should not set coordinates")
	}
	if got.Confidence != 0.5 {
		t.Errorf("Confidence = %v, unresolved location must not raise it", got.Confidence)
	}
}

func TestEnrich_SkipsNonLocationTypes(t *testing.T) {
	srv := geocodeServer(t, parisResult)
	defer srv.Close()

	e := newTestEnricher(srv.URL)
	item := model.Item{Name: "Fancy Blender", Type: model.TypeProduct, Confidence: 0.4}

	got, err := e.Enrich(context.Background(), item, nil, nil)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if got.Lat != nil || got.Confidence != 0.4 {
		t.Errorf("product must not be geocoded: %+v", got)
	}
	if got.PriceSource != "web-scrape" || got.Status != model.StatusReview {
		t.Errorf("unpriced product should carry the lookup placeholder: %+v", got)
	}
}

func TestEnrich_PricedProductKeepsSource(t *testing.T) {
	srv := geocodeServer(t, parisResult)
	defer srv.Close()

	e := newTestEnricher(srv.URL)
	item := model.Item{
		Name:        "Fancy Blender",
		Type:        model.TypeProduct,
		Price:       "199 USD",
		PriceSource: "caption",
		Status:      model.StatusDone,
	}

	got, err := e.Enrich(context.Background(), item, nil, nil)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if got.PriceSource != "caption" || got.Status != model.StatusDone {
		t.Errorf("priced product should pass through untouched: %+v", got)
	}
}

func TestEnrich_ServerErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := newTestEnricher(srv.URL)
	item := model.Item{Name: "Cafe de Flore", Type: model.TypePlace}

	if _, err := e.Enrich(context.Background(), item, nil, nil); err == nil {
		t.Error("expected error on HTTP 429")
	}
}

func TestHaversine(t *testing.T) {
	// Same point.
	if d := Haversine(48.85, 2.35, 48.85, 2.35); d != 0 {
		t.Errorf("distance to self = %v, want 0", d)
	}
	// London to Paris.
	d := Haversine(51.5074, -0.1278, 48.8566, 2.3522)
	if d < 330 || d > 360 {
		t.Errorf("London-Paris = %v km, want ~344", d)
	}
}
