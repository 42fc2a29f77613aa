package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// SizeQuantity is one entry of mapSizeToQuantity.
type SizeQuantity struct {
	Size     string
	Quantity int
}

// SizeQuantities is a JSON object of size code -> quantity that keeps the
// key order of the payload it was decoded from.
type SizeQuantities []SizeQuantity

func (s SizeQuantities) First() (SizeQuantity, bool) {
	if len(s) == 0 {
		return SizeQuantity{}, false
	}
	return s[0], true
}

func (s SizeQuantities) Get(size string) (int, bool) {
	for _, e := range s {
		if e.Size == size {
			return e.Quantity, true
		}
	}
	return 0, false
}

func (s SizeQuantities) Sizes() []string {
	out := make([]string, len(s))
	for i, e := range s {
		out[i] = e.Size
	}
	return out
}

func (s SizeQuantities) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Size)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d", e.Quantity)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON walks the object token by token so the key order survives.
func (s *SizeQuantities) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("mapSizeToQuantity: expected object, got %v", tok)
	}

	out := SizeQuantities{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("mapSizeToQuantity: expected string key, got %v", keyTok)
		}
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("mapSizeToQuantity[%s]: %w", key, err)
		}
		f, err := n.Float64()
		if err != nil {
			return fmt.Errorf("mapSizeToQuantity[%s]: %w", key, err)
		}
		out = append(out, SizeQuantity{Size: key, Quantity: int(math.Floor(f))})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = out
	return nil
}

// SizesByColorResponse lists every size that exists for one color of a product.
type SizesByColorResponse struct {
	DetailID          uint           `json:"detailId"`
	Price             Money          `json:"price"`
	Quantity          int            `json:"quantity"`
	MapSizeToQuantity SizeQuantities `json:"mapSizeToQuantity"`
	ActiveColor       string         `json:"activeColor"`
	Images            []string       `json:"images"`
}

// ProductDetailQueryResponse is the concrete SKU row for one (color, size) pair.
type ProductDetailQueryResponse struct {
	DetailID          uint           `json:"detailId"`
	ActiveColor       string         `json:"activeColor"`
	ActiveSize        string         `json:"activeSize"`
	VariantColors     []string       `json:"variantColors"`
	VariantSizes      []string       `json:"variantSizes"`
	Price             Money          `json:"price"`
	Quantity          int            `json:"quantity"`
	MapSizeToQuantity SizeQuantities `json:"mapSizeToQuantity"`
	Images            []string       `json:"images"`
}

type SessionState string

const (
	SessionIdle      SessionState = "idle"
	SessionResolving SessionState = "resolving"
	SessionSaving    SessionState = "saving"
	SessionClosed    SessionState = "closed"
)

// DetailSession is one admin editing an existing SKU row.
type DetailSession struct {
	ID                string         `json:"id"`
	DetailID          uint           `json:"detailId"`
	State             SessionState   `json:"state"`
	SelectedColor     string         `json:"selectedColor"`
	SelectedSize      string         `json:"selectedSize"`
	Price             Money          `json:"price"`
	Quantity          int            `json:"quantity"`
	MapSizeToQuantity SizeQuantities `json:"mapSizeToQuantity"`
	VariantColors     []string       `json:"variantColors"`
	VariantSizes      []string       `json:"variantSizes"`
	Images            []string       `json:"images"`
	ImageIndex        int            `json:"imageIndex"`
	Grid              SparseGrid     `json:"grid"`
	LastError         string         `json:"lastError,omitempty"`
	OpenedBy          uint           `json:"openedBy"`
	OpenedAt          time.Time      `json:"openedAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// Clone returns a copy that shares no slices with s.
func (s *DetailSession) Clone() DetailSession {
	c := *s
	c.MapSizeToQuantity = append(SizeQuantities(nil), s.MapSizeToQuantity...)
	c.VariantColors = append([]string(nil), s.VariantColors...)
	c.VariantSizes = append([]string(nil), s.VariantSizes...)
	c.Images = append([]string(nil), s.Images...)
	c.Grid = make(SparseGrid, len(s.Grid))
	for k, v := range s.Grid {
		c.Grid[k] = v
	}
	return c
}

// SaveResult is reported to the caller after a detail row was updated.
type SaveResult struct {
	DetailID uint  `json:"detailId"`
	Price    Money `json:"price"`
	Quantity int   `json:"quantity"`
}
