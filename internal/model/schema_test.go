package model

import (
	"testing"
)

func TestEncodeRow_Width(t *testing.T) {
	tests := []struct {
		name string
		item Item
	}{
		{"empty item", Item{}},
		{"full item", Item{
			ItemIndex:       1,
			Type:            TypePlace,
			Name:            "Taco Place",
			BrandOrCategory: "restaurant",
			City:            "Austin",
			State:           "TX",
			Country:         "USA",
			Lat:             f64(30.2672),
			Lng:             f64(-97.7431),
			DistanceKm:      f64(12.5),
			Price:           "$$",
			PriceSource:     "menu",
			PurchaseLink:    "https://example.com",
			KeySpecs:        "outdoor seating",
			Notes:           "best at sunset",
			SourceText:      "Great tacos",
			Confidence:      0.7,
			Status:          StatusDone,
		}},
	}

	for _, tt := range tests {
		row := EncodeRow(1, "2025-01-02T03:04:05Z", "https://instagram.com/reel/abc/", tt.item)
		if len(row) != ColumnCount {
			t.Errorf("%s: row width = %d, want %d", tt.name, len(row), ColumnCount)
		}
	}
}

func TestEncodeRow_Fields(t *testing.T) {
	it := Item{
		ItemIndex:  2,
		Type:       TypeHotel,
		Name:       "Grand Hotel",
		Lat:        f64(48.8566),
		Confidence: 0.85,
		Status:     StatusReview,
	}
	row := EncodeRow(41, "2025-06-01T00:00:00Z", "https://instagram.com/p/xyz/", it)

	if row[0] != "41" {
		t.Errorf("Index cell = %q, want %q", row[0], "41")
	}
	if row[1] != "2025-06-01T00:00:00Z" {
		t.Errorf("Timestamp cell = %q", row[1])
	}
	if row[2] != "https://instagram.com/p/xyz/" {
		t.Errorf("Reel Link cell = %q", row[2])
	}
	if row[3] != "2" {
		t.Errorf("Item Index cell = %q, want %q", row[3], "2")
	}
	if row[4] != "hotel" {
		t.Errorf("Item Type cell = %q, want %q", row[4], "hotel")
	}
	if row[10] != "48.8566" {
		t.Errorf("Lat cell = %q, want %q", row[10], "48.8566")
	}
	if row[11] != "" {
		t.Errorf("Lng cell = %q, want empty", row[11])
	}
	if row[18] != "0.85" {
		t.Errorf("Confidence cell = %q, want %q", row[18], "0.85")
	}
	if row[20] != "review" {
		t.Errorf("Processing_Status cell = %q, want %q", row[20], "review")
	}
}

func TestNormalizeRow(t *testing.T) {
	tests := []struct {
		name string
		in   int
	}{
		{"short row padded", 3},
		{"exact row unchanged", ColumnCount},
		{"long row truncated", ColumnCount + 4},
	}

	for _, tt := range tests {
		in := make([]string, tt.in)
		for i := range in {
			in[i] = "x"
		}
		out := NormalizeRow(in)
		if len(out) != ColumnCount {
			t.Errorf("%s: width = %d, want %d", tt.name, len(out), ColumnCount)
		}
	}
}

func TestParseItemType(t *testing.T) {
	tests := []struct {
		in   string
		want ItemType
	}{
		{"place", TypePlace},
		{"Hotel", TypeHotel},
		{" PRODUCT ", TypeProduct},
		{"service", TypeService},
		{"gadget", TypeOther},
		{"", TypeOther},
	}

	for _, tt := range tests {
		if got := ParseItemType(tt.in); got != tt.want {
			t.Errorf("ParseItemType(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsValidReelURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.instagram.com/reel/Cxyz123_-/", true},
		{"https://instagram.com/p/AbC9/", true},
		{"http://instagram.com/reel/AbC9", true},
		{"check this out https://instagram.com/reel/AbC9/", true},
		{"https://www.youtube.com/watch?v=abc", false},
		{"instagram.com/reel/AbC9", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidReelURL(tt.url); got != tt.want {
			t.Errorf("IsValidReelURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func f64(v float64) *float64 { return &v }
