// Package model defines core data structures for reelsheet.
package model

import (
	"regexp"
	"strings"
)

// ItemType classifies an extracted item.
type ItemType string

const (
	TypePlace   ItemType = "place"
	TypeHotel   ItemType = "hotel"
	TypeProduct ItemType = "product"
	TypeService ItemType = "service"
	TypeOther   ItemType = "other"
)

// ParseItemType normalizes a free-form type string from the extractor.
// Unknown values map to TypeOther.
func ParseItemType(s string) ItemType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "place":
		return TypePlace
	case "hotel":
		return TypeHotel
	case "product":
		return TypeProduct
	case "service":
		return TypeService
	default:
		return TypeOther
	}
}

// Status is the processing status of an item.
type Status string

const (
	StatusDone   Status = "done"
	StatusReview Status = "review"
	StatusFailed Status = "failed"
)

// Item is one structured item inferred from a post's source content.
// It is created by the extractor, filled in by the enricher, and frozen
// once handed to EncodeRow.
//
// JSON tags match the extraction model's output keys so the extractor can
// unmarshal responses directly into this type.
type Item struct {
	ItemIndex       int      `json:"item_index"`
	Type            ItemType `json:"type"`
	Name            string   `json:"item_name"`
	BrandOrCategory string   `json:"brand_or_category"`

	// Location fields. Lat/Lng/DistanceKm are pointers so "not resolved"
	// is distinguishable from zero coordinates.
	City       string   `json:"city"`
	State      string   `json:"state"`
	Country    string   `json:"country"`
	Lat        *float64 `json:"lat"`
	Lng        *float64 `json:"lng"`
	DistanceKm *float64 `json:"distance_km"`

	// Commerce fields.
	Price        string `json:"price"`
	PriceSource  string `json:"price_source"`
	PurchaseLink string `json:"purchase_link"`

	// Free-text fields.
	KeySpecs   string `json:"key_specs"`
	Notes      string `json:"notes"`
	SourceText string `json:"source_text"`

	Confidence float64 `json:"confidence"`
	Status     Status  `json:"processing_status"`
}

// reelURLPattern matches public Instagram reel/post URLs.
var reelURLPattern = regexp.MustCompile(`https?://(www\.)?instagram\.com/(reel|p)/[A-Za-z0-9_-]+/?`)

// IsValidReelURL reports whether text contains an Instagram reel or post URL.
func IsValidReelURL(text string) bool {
	return reelURLPattern.MatchString(text)
}
