// Package route picks the destination sheet for a batch of items based on
// the semantic types present in it.
package route

import (
	"github.com/reelsheet/reelsheet/internal/model"
	rserrors "github.com/reelsheet/reelsheet/pkg/errors"
)

// Destinations holds the configured sheet IDs keyed by domain. Only
// General is required; the others are optional overflow sheets.
type Destinations struct {
	General  string
	Travel   string
	Commerce string
}

// Pick chooses a destination sheet for the batch. Place and hotel items
// route to the travel sheet when one is configured; otherwise product
// items route to the commerce sheet; everything else lands on the general
// sheet. Travel wins over commerce for mixed batches.
func Pick(items []model.Item, dst Destinations) (string, error) {
	if dst.General == "" && dst.Travel == "" && dst.Commerce == "" {
		return "", rserrors.New(rserrors.CodeNoDestination, "no destination sheet configured").
			WithContext("env", "GOOGLE_SHEET_ID")
	}

	hasTravel := false
	hasProduct := false
	for _, it := range items {
		switch it.Type {
		case model.TypePlace, model.TypeHotel:
			hasTravel = true
		case model.TypeProduct:
			hasProduct = true
		}
	}

	switch {
	case hasTravel && dst.Travel != "":
		return dst.Travel, nil
	case hasProduct && dst.Commerce != "":
		return dst.Commerce, nil
	case dst.General != "":
		return dst.General, nil
	case dst.Travel != "":
		return dst.Travel, nil
	default:
		return dst.Commerce, nil
	}
}
