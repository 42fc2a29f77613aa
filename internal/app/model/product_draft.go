package model

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const MaxTitleLength = 500

// ThumbnailField is the multipart field of a staged product thumbnail.
const ThumbnailField = "thumbnail"

// ProductDraft is a product being authored (or an existing one being edited)
// before it is submitted to the catalog API.
type ProductDraft struct {
	ID           string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ProductID    *uint         `gorm:"index" json:"productId,omitempty"`
	Title        string        `gorm:"type:text" json:"title"`
	Description  string        `gorm:"type:text" json:"description"`
	CategoryID   uint          `json:"categoryId"`
	ThumbnailURL string        `json:"thumbnailUrl,omitempty"`
	ThumbnailKey string        `json:"thumbnailKey,omitempty"`
	Matrix       VariantMatrix `gorm:"type:text" json:"matrix"`
	CreatedBy    uint          `gorm:"index" json:"createdBy"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `gorm:"index" json:"updatedAt"`
}

func (ProductDraft) TableName() string {
	return "product_drafts"
}

func (d *ProductDraft) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

func (d *ProductDraft) HasThumbnail() bool {
	return d.ThumbnailURL != "" || d.ThumbnailKey != ""
}

// Validate checks the draft before submission and reports every violated rule.
func (d *ProductDraft) Validate() error {
	var errs ValidationErrors

	title := strings.TrimSpace(d.Title)
	switch {
	case title == "":
		errs.Add("title_required", "title", "title is required")
	case utf8.RuneCountInString(title) > MaxTitleLength:
		errs.Add("title_length", "title", "title must be at most %d characters", MaxTitleLength)
	}

	if len(d.Matrix.Details) == 0 {
		errs.Add("detail_required", "productDetails", "add at least one color")
	}

	for i := range d.Matrix.Details {
		detail := &d.Matrix.Details[i]
		field := fmt.Sprintf("productDetails[%d]", i)
		label := detail.Color.Name
		if label == "" {
			label = fmt.Sprintf("color #%d", i+1)
		}

		if detail.Color.ID == 0 {
			errs.Add("color_required", field+".color", "%s has no color selected", label)
		}
		if len(detail.Sizes) == 0 {
			errs.Add("sizes_required", field+".sizes", "%s needs at least one size", label)
		}

		switch p := detail.Pricing().(type) {
		case PerSizePricing:
			for _, v := range p.Variants {
				if !v.Price.IsPositive() {
					errs.Add("size_price", field+".sizeVariants", "%s: every size needs a price above 0", label)
					break
				}
			}
			for _, v := range p.Variants {
				if v.Quantity < 0 {
					errs.Add("size_quantity", field+".sizeVariants", "%s: quantity cannot be negative", label)
					break
				}
			}
		case PerColorPricing:
			if !p.Price.IsPositive() {
				errs.Add("color_price", field+".price", "%s needs a price above 0", label)
			}
			if p.Quantity < 0 {
				errs.Add("color_quantity", field+".quantity", "%s: quantity cannot be negative", label)
			}
		}

		if len(detail.Images) == 0 && !d.HasThumbnail() {
			errs.Add("images_required", field+".images", "%s needs at least one image or a product thumbnail", label)
		}
		if detail.PendingCount() > MaxImagesPerColor {
			errs.Add("pending_files", field+".images", "%s has more than %d pending images", label, MaxImagesPerColor)
		}
	}

	return errs.Err()
}

// ProductSubmission is the JSON part of the create/update multipart request.
type ProductSubmission struct {
	Title          string             `json:"title"`
	Description    *string            `json:"description,omitempty"`
	CategoryIDs    []uint             `json:"categoryIds"`
	ThumbnailURL   string             `json:"thumbnailUrl,omitempty"`
	ProductDetails []DetailSubmission `json:"productDetails"`
}

type DetailSubmission struct {
	ColorID      uint          `json:"colorId"`
	SizeVariants []SizeVariant `json:"sizeVariants"`
	ImageURLs    []string      `json:"imageUrls,omitempty"`
}

// SubmissionFile binds a staged upload to its multipart field.
type SubmissionFile struct {
	Field     string `json:"field"`
	StagedKey string `json:"stagedKey"`
}

// DetailFileField is the multipart field that carries a color's images.
func DetailFileField(colorID uint) string {
	return fmt.Sprintf("detail_%d", colorID)
}

// BuildSubmission serializes the draft. Authored per-size values are sent
// as-is; colors without them get one entry per size from the color defaults.
func (d *ProductDraft) BuildSubmission() (ProductSubmission, []SubmissionFile) {
	sub := ProductSubmission{
		Title:          strings.TrimSpace(d.Title),
		CategoryIDs:    []uint{},
		ProductDetails: make([]DetailSubmission, 0, len(d.Matrix.Details)),
	}
	if desc := strings.TrimSpace(d.Description); desc != "" {
		sub.Description = &desc
	}
	if d.CategoryID != 0 {
		sub.CategoryIDs = append(sub.CategoryIDs, d.CategoryID)
	}

	var files []SubmissionFile
	if d.ThumbnailKey != "" {
		files = append(files, SubmissionFile{Field: ThumbnailField, StagedKey: d.ThumbnailKey})
	} else {
		sub.ThumbnailURL = d.ThumbnailURL
	}
	for i := range d.Matrix.Details {
		detail := &d.Matrix.Details[i]
		ds := DetailSubmission{
			ColorID:      detail.Color.ID,
			SizeVariants: detail.EffectiveVariants(),
		}
		for _, img := range detail.Images {
			if img.Pending() {
				files = append(files, SubmissionFile{Field: DetailFileField(detail.Color.ID), StagedKey: img.StagedKey})
			} else {
				ds.ImageURLs = append(ds.ImageURLs, img.URL)
			}
		}
		sub.ProductDetails = append(sub.ProductDetails, ds)
	}
	return sub, files
}

// ExistingProduct is the catalog's current state of a product opened for editing.
type ExistingProduct struct {
	ID             uint             `json:"id"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	CategoryIDs    []uint           `json:"categoryIds"`
	ThumbnailURL   string           `json:"thumbnailUrl"`
	ProductDetails []ExistingDetail `json:"productDetails"`
}

// ExistingDetail is one persisted color variant. Legacy rows have sizes and a
// color-level price and quantity but no sizeVariants.
type ExistingDetail struct {
	Color        VariantColor  `json:"color"`
	Sizes        []uint        `json:"sizes"`
	SizeVariants []SizeVariant `json:"sizeVariants"`
	Price        Money         `json:"price"`
	Quantity     int           `json:"quantity"`
	ImageURLs    []string      `json:"imageUrls"`
}

// Seed fills the draft from the product it edits. Title, description and
// category already set on the draft win over the product's.
func (d *ProductDraft) Seed(p *ExistingProduct) {
	id := p.ID
	d.ProductID = &id
	if strings.TrimSpace(d.Title) == "" {
		d.Title = p.Title
	}
	if strings.TrimSpace(d.Description) == "" {
		d.Description = p.Description
	}
	if d.CategoryID == 0 && len(p.CategoryIDs) > 0 {
		d.CategoryID = p.CategoryIDs[0]
	}
	if d.ThumbnailKey == "" {
		d.ThumbnailURL = p.ThumbnailURL
	}

	d.Matrix.Details = make([]ProductDetail, 0, len(p.ProductDetails))
	for _, e := range p.ProductDetails {
		detail := ProductDetail{
			Color:    e.Color,
			Sizes:    append([]uint{}, e.Sizes...),
			Images:   make([]DetailImage, 0, len(e.ImageURLs)),
			Price:    e.Price,
			Quantity: e.Quantity,
		}
		if len(e.SizeVariants) > 0 {
			detail.SizeVariants = append([]SizeVariant(nil), e.SizeVariants...)
		}
		for _, url := range e.ImageURLs {
			detail.Images = append(detail.Images, DetailImage{URL: url})
		}
		d.Matrix.Details = append(d.Matrix.Details, detail)
	}
}

// StagedKeys lists every staged upload owned by the draft.
func (d *ProductDraft) StagedKeys() []string {
	keys := d.Matrix.StagedKeys()
	if d.ThumbnailKey != "" {
		keys = append(keys, d.ThumbnailKey)
	}
	return keys
}
