package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"math"
	"strings"
)

const (
	MaxImagesPerColor       = 5
	MaxImageBytes     int64 = 5 << 20
)

// ImageLimits bounds one color's image set.
type ImageLimits struct {
	MaxPerColor int
	MaxBytes    int64
}

var DefaultImageLimits = ImageLimits{MaxPerColor: MaxImagesPerColor, MaxBytes: MaxImageBytes}

type VariantField string

const (
	FieldPrice    VariantField = "price"
	FieldQuantity VariantField = "quantity"
)

func ParseVariantField(s string) (VariantField, error) {
	switch VariantField(strings.ToLower(strings.TrimSpace(s))) {
	case FieldPrice:
		return FieldPrice, nil
	case FieldQuantity:
		return FieldQuantity, nil
	}
	return "", ErrInvalidVariantField
}

// DetailImage is a remote image URL or a staged upload waiting for submission.
type DetailImage struct {
	URL       string `json:"url"`
	StagedKey string `json:"stagedKey,omitempty"`
}

// Pending reports whether the image is a locally held upload.
func (i DetailImage) Pending() bool {
	return i.StagedKey != ""
}

// ImageFile describes an incoming file before it is staged.
type ImageFile struct {
	Filename    string
	ContentType string
	Size        int64
}

// ProductDetail is one color variant of a product being authored.
type ProductDetail struct {
	Color        VariantColor  `json:"color"`
	Sizes        []uint        `json:"sizes"`
	Images       []DetailImage `json:"images"`
	SizeVariants []SizeVariant `json:"sizeVariants,omitempty"`
	Price        Money         `json:"price"`
	Quantity     int           `json:"quantity"`
}

func (d *ProductDetail) HasSize(sizeID uint) bool {
	for _, id := range d.Sizes {
		if id == sizeID {
			return true
		}
	}
	return false
}

func (d *ProductDetail) variantIndex(sizeID uint) int {
	for i, v := range d.SizeVariants {
		if v.SizeID == sizeID {
			return i
		}
	}
	return -1
}

func (d *ProductDetail) Pricing() PricingModel {
	if len(d.SizeVariants) > 0 {
		out := make([]SizeVariant, len(d.SizeVariants))
		copy(out, d.SizeVariants)
		return PerSizePricing{Variants: out}
	}
	return PerColorPricing{Price: d.Price, Quantity: d.Quantity}
}

// EffectiveVariants returns the authored per-size values, or one entry per
// enabled size carrying the color-level defaults.
func (d *ProductDetail) EffectiveVariants() []SizeVariant {
	switch p := d.Pricing().(type) {
	case PerSizePricing:
		return p.Variants
	case PerColorPricing:
		out := make([]SizeVariant, 0, len(d.Sizes))
		for _, sizeID := range d.Sizes {
			out = append(out, SizeVariant{SizeID: sizeID, Price: p.Price, Quantity: p.Quantity})
		}
		return out
	}
	return nil
}

func (d *ProductDetail) PendingCount() int {
	n := 0
	for _, img := range d.Images {
		if img.Pending() {
			n++
		}
	}
	return n
}

// VariantMatrix is the ordered list of color variants of one product.
type VariantMatrix struct {
	Details []ProductDetail `json:"details"`
}

func (m *VariantMatrix) index(colorID uint) int {
	for i := range m.Details {
		if m.Details[i].Color.ID == colorID {
			return i
		}
	}
	return -1
}

func (m *VariantMatrix) Detail(colorID uint) (*ProductDetail, bool) {
	i := m.index(colorID)
	if i < 0 {
		return nil, false
	}
	return &m.Details[i], true
}

// AddColor appends an empty variant for color. Adding a color twice is a no-op.
func (m *VariantMatrix) AddColor(color VariantColor) bool {
	if m.index(color.ID) >= 0 {
		return false
	}
	m.Details = append(m.Details, ProductDetail{
		Color:  color,
		Sizes:  []uint{},
		Images: []DetailImage{},
	})
	return true
}

// RemoveColor drops the variant and returns it so its staged images can be released.
func (m *VariantMatrix) RemoveColor(colorID uint) (ProductDetail, bool) {
	i := m.index(colorID)
	if i < 0 {
		return ProductDetail{}, false
	}
	removed := m.Details[i]
	m.Details = append(m.Details[:i], m.Details[i+1:]...)
	return removed, true
}

// ToggleSize flips sizeID for a color and keeps sizes and sizeVariants in step.
// It returns true when the size ends up enabled.
func (m *VariantMatrix) ToggleSize(colorID, sizeID uint) (bool, error) {
	d, ok := m.Detail(colorID)
	if !ok {
		return false, ErrColorNotInMatrix
	}

	// Legacy details carry sizes with color-level pricing only; seed one
	// entry per size before the first toggle so both sets stay equal.
	if len(d.SizeVariants) == 0 && len(d.Sizes) > 0 {
		d.SizeVariants = d.EffectiveVariants()
	}

	if d.HasSize(sizeID) {
		sizes := d.Sizes[:0]
		for _, id := range d.Sizes {
			if id != sizeID {
				sizes = append(sizes, id)
			}
		}
		d.Sizes = sizes
		if i := d.variantIndex(sizeID); i >= 0 {
			d.SizeVariants = append(d.SizeVariants[:i], d.SizeVariants[i+1:]...)
		}
		return false, nil
	}

	d.Sizes = append(d.Sizes, sizeID)
	if d.variantIndex(sizeID) < 0 {
		d.SizeVariants = append(d.SizeVariants, SizeVariant{
			SizeID:   sizeID,
			Price:    d.Price,
			Quantity: d.Quantity,
		})
	}
	return true, nil
}

// SetSizeVariantField updates one per-size value. Quantities are floored and
// clamped at zero, prices clamped at zero. A pair without a sizeVariants entry
// is left alone and reported as false.
func (m *VariantMatrix) SetSizeVariantField(colorID, sizeID uint, field VariantField, value float64) (bool, error) {
	if field != FieldPrice && field != FieldQuantity {
		return false, ErrInvalidVariantField
	}
	d, ok := m.Detail(colorID)
	if !ok {
		return false, nil
	}
	i := d.variantIndex(sizeID)
	if i < 0 {
		return false, nil
	}

	switch field {
	case FieldPrice:
		d.SizeVariants[i].Price = ClampPrice(value)
	case FieldQuantity:
		d.SizeVariants[i].Quantity = ClampQuantity(value)
	}
	return true, nil
}

// SetColorDefaults sets the color-level fallback price and quantity.
func (m *VariantMatrix) SetColorDefaults(colorID uint, price, quantity float64) error {
	d, ok := m.Detail(colorID)
	if !ok {
		return ErrColorNotInMatrix
	}
	d.Price = ClampPrice(price)
	d.Quantity = ClampQuantity(quantity)
	return nil
}

// CheckImages validates a whole batch for one color. Nothing is applied; a
// failing batch is rejected as a unit.
func (m *VariantMatrix) CheckImages(colorID uint, files []ImageFile, limits ImageLimits) error {
	d, ok := m.Detail(colorID)
	if !ok {
		return ErrColorNotInMatrix
	}

	var errs ValidationErrors
	if len(files) == 0 {
		errs.Add("image_required", "images", "select at least one image")
		return errs
	}
	if len(d.Images)+len(files) > limits.MaxPerColor {
		errs.Add("image_count", "images", "a color can hold at most %d images (has %d, adding %d)",
			limits.MaxPerColor, len(d.Images), len(files))
	}
	for _, f := range files {
		if !strings.HasPrefix(strings.ToLower(f.ContentType), "image/") {
			errs.Add("image_type", "images", "%s is not an image", f.Filename)
		}
		if f.Size > limits.MaxBytes {
			errs.Add("image_size", "images", "%s exceeds %d bytes", f.Filename, limits.MaxBytes)
		}
	}
	return errs.Err()
}

// AttachImages appends images that already passed CheckImages.
func (m *VariantMatrix) AttachImages(colorID uint, images []DetailImage) error {
	d, ok := m.Detail(colorID)
	if !ok {
		return ErrColorNotInMatrix
	}
	d.Images = append(d.Images, images...)
	return nil
}

// RemoveImage removes the image at index and returns it.
func (m *VariantMatrix) RemoveImage(colorID uint, index int) (DetailImage, error) {
	d, ok := m.Detail(colorID)
	if !ok {
		return DetailImage{}, ErrColorNotInMatrix
	}
	if index < 0 || index >= len(d.Images) {
		return DetailImage{}, ErrImageIndexOutOfRange
	}
	removed := d.Images[index]
	d.Images = append(d.Images[:index], d.Images[index+1:]...)
	return removed, nil
}

// Grid returns the effective price and quantity of every enabled combination.
func (m *VariantMatrix) Grid() SparseGrid {
	grid := make(SparseGrid)
	for i := range m.Details {
		d := &m.Details[i]
		for _, v := range d.EffectiveVariants() {
			grid.Set(d.Color.ID, v.SizeID, GridCell{Price: v.Price, Quantity: v.Quantity})
		}
	}
	return grid
}

// StagedKeys lists every staged upload referenced by the matrix.
func (m *VariantMatrix) StagedKeys() []string {
	var keys []string
	for _, d := range m.Details {
		for _, img := range d.Images {
			if img.Pending() {
				keys = append(keys, img.StagedKey)
			}
		}
	}
	return keys
}

func (m VariantMatrix) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *VariantMatrix) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = VariantMatrix{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	}
	return errors.New("failed to scan VariantMatrix")
}

func ClampPrice(value float64) Money {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return Money{}
	}
	return NewMoney(value)
}

// MaxQuantity caps every stock count so float input converts safely.
const MaxQuantity = math.MaxInt32

// IsWholeQuantity reports whether value is a stock count that converts to
// int without loss.
func IsWholeQuantity(value float64) bool {
	return isFinite(value) && value >= 0 && value <= MaxQuantity && value == math.Trunc(value)
}

func ClampQuantity(value float64) int {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	q := math.Floor(value)
	if q < 0 {
		return 0
	}
	if q > MaxQuantity {
		return MaxQuantity
	}
	return int(q)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
