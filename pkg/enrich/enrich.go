// Package enrich completes an item's location fields through Nominatim
// geocoding. Enrichment is fill-only: a set field is never overwritten and
// confidence only moves up.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/reelsheet/reelsheet/internal/model"
	rserrors "github.com/reelsheet/reelsheet/pkg/errors"
)

// Enricher completes an item's fields. Implementations must be idempotent
// and must never erase previously set values.
type Enricher interface {
	Enrich(ctx context.Context, item model.Item, originLat, originLng *float64) (model.Item, error)
}

// Config configures the Nominatim enricher.
type Config struct {
	BaseURL         string
	UserAgent       string
	ConfidenceFloor float64
	Timeout         time.Duration
	// RequestsPerSec caps outbound geocoding calls. Nominatim's usage
	// policy allows at most one request per second.
	RequestsPerSec float64
}

// NominatimEnricher resolves place names to coordinates through a
// Nominatim instance.
type NominatimEnricher struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewNominatimEnricher creates an enricher.
func NewNominatimEnricher(cfg Config, logger *slog.Logger) *NominatimEnricher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://nominatim.openstreetmap.org"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "reelsheet/1.0"
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = 0.7
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NominatimEnricher{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		logger:  logger,
	}
}

// Enrich implements Enricher. Items without a name, and items that are not
// location-bearing, pass through untouched.
func (e *NominatimEnricher) Enrich(ctx context.Context, item model.Item, originLat, originLng *float64) (model.Item, error) {
	if item.Name == "" {
		return item, nil
	}
	if item.Type == model.TypeProduct {
		// Products without a sourced price are marked for a later price
		// lookup and stay in review.
		if item.Price == "" && item.PriceSource == "" {
			item.PriceSource = "web-scrape"
			item.Status = model.StatusReview
		}
		return item, nil
	}
	if item.Type != model.TypePlace && item.Type != model.TypeHotel {
		return item, nil
	}

	if item.Lat == nil || item.Lng == nil {
		place, err := e.geocode(ctx, item)
		if err != nil {
			return item, err
		}
		if place == nil {
			return item, nil
		}
		if item.Lat == nil {
			item.Lat = &place.Lat
		}
		if item.Lng == nil {
			item.Lng = &place.Lng
		}
		fillIfEmpty(&item.City, place.City)
		fillIfEmpty(&item.State, place.State)
		fillIfEmpty(&item.Country, place.Country)
	}

	if item.DistanceKm == nil && item.Lat != nil && item.Lng != nil && originLat != nil && originLng != nil {
		d := Haversine(*originLat, *originLng, *item.Lat, *item.Lng)
		item.DistanceKm = &d
	}

	// Resolved location raises confidence to the floor; it never drops.
	if item.Lat != nil && item.Lng != nil && item.Confidence < e.cfg.ConfidenceFloor {
		item.Confidence = e.cfg.ConfidenceFloor
	}

	return item, nil
}

// place is a resolved geocoding result.
type place struct {
	Lat     float64
	Lng     float64
	City    string
	State   string
	Country string
}

type nominatimResult struct {
	Lat     string `json:"lat"`
	Lon     string `json:"lon"`
	Address struct {
		City    string `json:"city"`
		Town    string `json:"town"`
		Village string `json:"village"`
		State   string `json:"state"`
		Country string `json:"country"`
	} `json:"address"`
}

// geocode queries the search endpoint with the item's name and any known
// location qualifiers. A no-match response is nil, not an error.
func (e *NominatimEnricher) geocode(ctx context.Context, item model.Item) (*place, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := item.Name
	for _, part := range []string{item.City, item.State, item.Country} {
		if part != "" {
			query += ", " + part
		}
	}

	u := fmt.Sprintf("%s/search?q=%s&format=json&addressdetails=1&limit=1",
		strings.TrimRight(e.cfg.BaseURL, "/"), url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, rserrors.Wrap(err, rserrors.CodeEnrichmentFailed, "geocoding request failed").
			WithContext("query", query)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, rserrors.New(rserrors.CodeEnrichmentFailed,
			fmt.Sprintf("geocoding returned HTTP %d", resp.StatusCode)).
			WithContext("query", query)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, rserrors.Wrap(err, rserrors.CodeEnrichmentFailed, "decode geocoding response")
	}
	if len(results) == 0 {
		e.logger.Debug("enrich.geocode.nomatch", "query", query)
		return nil, nil
	}

	r := results[0]
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return nil, rserrors.Wrap(err, rserrors.CodeEnrichmentFailed, "parse latitude")
	}
	lng, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return nil, rserrors.Wrap(err, rserrors.CodeEnrichmentFailed, "parse longitude")
	}

	city := r.Address.City
	if city == "" {
		city = r.Address.Town
	}
	if city == "" {
		city = r.Address.Village
	}

	return &place{
		Lat:     lat,
		Lng:     lng,
		City:    city,
		State:   r.Address.State,
		Country: r.Address.Country,
	}, nil
}

func fillIfEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// Haversine returns the great-circle distance in kilometers between two
// coordinate pairs.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0

	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
