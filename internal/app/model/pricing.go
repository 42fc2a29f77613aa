package model

import (
	"encoding/json"
	"sort"
)

// SizeVariant is the per-size price and stock of one color.
type SizeVariant struct {
	SizeID   uint  `json:"sizeId"`
	Price    Money `json:"price"`
	Quantity int   `json:"quantity"`
}

// PricingModel is either PerColorPricing or PerSizePricing.
// Use a type switch on ProductDetail.Pricing().
type PricingModel interface {
	pricingModel()
}

// PerColorPricing applies one price and quantity to every enabled size.
type PerColorPricing struct {
	Price    Money
	Quantity int
}

// PerSizePricing carries authored per-size values in authoring order.
type PerSizePricing struct {
	Variants []SizeVariant
}

func (PerColorPricing) pricingModel() {}
func (PerSizePricing) pricingModel()  {}

// GridKey addresses one (color, size) combination.
type GridKey struct {
	ColorID uint `json:"colorId"`
	SizeID  uint `json:"sizeId"`
}

type GridCell struct {
	Price    Money `json:"price"`
	Quantity int   `json:"quantity"`
}

// SparseGrid maps the combinations that exist to their variant data.
// Combinations that are absent do not exist; there is no implied cross product.
type SparseGrid map[GridKey]GridCell

type gridEntry struct {
	GridKey
	GridCell
}

func (g SparseGrid) Has(colorID, sizeID uint) bool {
	_, ok := g[GridKey{ColorID: colorID, SizeID: sizeID}]
	return ok
}

func (g SparseGrid) Set(colorID, sizeID uint, cell GridCell) {
	g[GridKey{ColorID: colorID, SizeID: sizeID}] = cell
}

// SizesFor returns the size ids present for a color.
func (g SparseGrid) SizesFor(colorID uint) []uint {
	var out []uint
	for k := range g {
		if k.ColorID == colorID {
			out = append(out, k.SizeID)
		}
	}
	return out
}

// MarshalJSON emits the grid as a list because struct keys are not valid JSON object keys.
func (g SparseGrid) MarshalJSON() ([]byte, error) {
	entries := make([]gridEntry, 0, len(g))
	for k, v := range g {
		entries = append(entries, gridEntry{GridKey: k, GridCell: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ColorID != entries[j].ColorID {
			return entries[i].ColorID < entries[j].ColorID
		}
		return entries[i].SizeID < entries[j].SizeID
	})
	return json.Marshal(entries)
}

func (g *SparseGrid) UnmarshalJSON(b []byte) error {
	var entries []gridEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}
	out := make(SparseGrid, len(entries))
	for _, e := range entries {
		out[e.GridKey] = e.GridCell
	}
	*g = out
	return nil
}
