package model

import "strconv"

// Headers is the canonical destination schema, in column order. Every row
// written to the sheet or the local backup is exactly this wide.
var Headers = []string{
	"Index",
	"Timestamp",
	"Reel Link",
	"Item Index",
	"Item Type",
	"Item Name",
	"Brand/Category",
	"City",
	"State",
	"Country",
	"Lat",
	"Lng",
	"Distance_km",
	"Price",
	"Price_Source",
	"Purchase_Link",
	"Key_Specs/Features",
	"Best_Time/Notes",
	"Confidence",
	"Source_Text",
	"Processing_Status",
}

// ColumnCount is the fixed row width.
var ColumnCount = len(Headers)

// EncodeRow maps one item plus run context into an ordered row matching
// Headers. Pure: missing fields become empty cells, the result is always
// exactly ColumnCount wide.
func EncodeRow(index int64, timestamp, postURL string, it Item) []string {
	return []string{
		strconv.FormatInt(index, 10),
		timestamp,
		postURL,
		strconv.Itoa(it.ItemIndex),
		string(it.Type),
		it.Name,
		it.BrandOrCategory,
		it.City,
		it.State,
		it.Country,
		formatFloat(it.Lat),
		formatFloat(it.Lng),
		formatFloat(it.DistanceKm),
		it.Price,
		it.PriceSource,
		it.PurchaseLink,
		it.KeySpecs,
		it.Notes,
		strconv.FormatFloat(it.Confidence, 'f', -1, 64),
		it.SourceText,
		string(it.Status),
	}
}

// NormalizeRow forces a row to exactly ColumnCount cells, truncating
// overflow and padding shortfall with empty strings.
func NormalizeRow(row []string) []string {
	if len(row) == ColumnCount {
		return row
	}
	out := make([]string, ColumnCount)
	copy(out, row)
	return out
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}
