package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ImportRow is one CSV line after the catalog API matched its images.
type ImportRow struct {
	ProductTitle string   `json:"productTitle"`
	Category     string   `json:"category"`
	Color        string   `json:"color"`
	Size         string   `json:"size"`
	Price        Money    `json:"price"`
	Quantity     int      `json:"quantity"`
	ImageURLs    []string `json:"imageUrls"`
	IsError      bool     `json:"isError"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
}

type ProductGroup struct {
	ProductTitle   string      `json:"productTitle"`
	Description    string      `json:"description"`
	Category       string      `json:"category"`
	ProductDetails []ImportRow `json:"productDetails"`
}

// ProductGroups is stored as a JSON column.
type ProductGroups []ProductGroup

func (g ProductGroups) Value() (driver.Value, error) {
	if g == nil {
		return "[]", nil
	}
	b, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (g *ProductGroups) Scan(value interface{}) error {
	return scanJSON(value, g, "ProductGroups")
}

// UploadRef points at a staged file.
type UploadRef struct {
	Key      string `json:"key"`
	Filename string `json:"filename"`
}

type UploadRefs []UploadRef

func (r UploadRefs) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *UploadRefs) Scan(value interface{}) error {
	return scanJSON(value, r, "UploadRefs")
}

func scanJSON(value interface{}, dst interface{}, name string) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	}
	return errors.New("failed to scan " + name)
}

type ImportState string

const (
	ImportNoFile         ImportState = "no_file"
	ImportFileSelected   ImportState = "file_selected"
	ImportReadyToPreview ImportState = "ready_to_preview"
	ImportPreviewing     ImportState = "previewing"
	ImportPreviewed      ImportState = "previewed"
	ImportSaving         ImportState = "saving"
	ImportSaved          ImportState = "saved"
	ImportSaveFailed     ImportState = "save_failed"
)

var importTransitions = map[ImportState][]ImportState{
	ImportNoFile:         {ImportNoFile, ImportFileSelected, ImportReadyToPreview},
	ImportFileSelected:   {ImportNoFile, ImportFileSelected, ImportReadyToPreview},
	ImportReadyToPreview: {ImportNoFile, ImportFileSelected, ImportReadyToPreview, ImportPreviewing},
	ImportPreviewing:     {ImportPreviewed, ImportReadyToPreview},
	ImportPreviewed:      {ImportNoFile, ImportFileSelected, ImportReadyToPreview, ImportPreviewing, ImportPreviewed, ImportSaving},
	ImportSaving:         {ImportSaved, ImportSaveFailed},
	ImportSaveFailed:     {ImportNoFile, ImportFileSelected, ImportReadyToPreview, ImportPreviewing, ImportPreviewed, ImportSaving},
	ImportSaved:          {ImportNoFile, ImportFileSelected, ImportReadyToPreview},
}

// CanTransition reports whether from -> to is a legal import step.
func CanTransition(from, to ImportState) bool {
	for _, s := range importTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Busy reports whether a request to the catalog API is in flight for the batch.
func (s ImportState) Busy() bool {
	return s == ImportPreviewing || s == ImportSaving
}

// Editable reports whether rows may be edited or deleted.
func (s ImportState) Editable() bool {
	return s == ImportPreviewed || s == ImportSaveFailed
}

// ImportBatch is one CSV bulk import, from file selection to save.
type ImportBatch struct {
	ID        string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	State     ImportState   `gorm:"type:varchar(32);index" json:"state"`
	FileKey   string        `json:"fileKey,omitempty"`
	FileName  string        `json:"fileName,omitempty"`
	Zips      UploadRefs    `gorm:"type:text" json:"zips"`
	Groups    ProductGroups `gorm:"type:text" json:"groups"`
	LastError string        `gorm:"type:text" json:"lastError,omitempty"`
	CreatedBy uint          `gorm:"index" json:"createdBy"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `gorm:"index" json:"updatedAt"`
}

func (ImportBatch) TableName() string {
	return "import_batches"
}

func (b *ImportBatch) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.State == "" {
		b.State = ImportNoFile
	}
	return nil
}

// TransitionTo moves the batch to state or fails without touching it.
func (b *ImportBatch) TransitionTo(state ImportState) error {
	if !CanTransition(b.State, state) {
		return ErrInvalidImportTransition
	}
	b.State = state
	return nil
}

// Interrupted reports whether a busy batch has sat longer than any request
// to the catalog API could take.
func (b *ImportBatch) Interrupted(now time.Time, limit time.Duration) bool {
	return b.State.Busy() && now.Sub(b.UpdatedAt) > limit
}

// Recover releases a batch left busy by a request that never finished.
// An interrupted save may already have reached the catalog, so it lands in
// SaveFailed where the admin decides whether to retry.
func (b *ImportBatch) Recover() bool {
	switch b.State {
	case ImportPreviewing:
		b.State = ImportReadyToPreview
		b.LastError = "preview was interrupted"
	case ImportSaving:
		b.State = ImportSaveFailed
		b.LastError = "save was interrupted, check the catalog before retrying"
	default:
		return false
	}
	return true
}

// FileState is the state implied by the attached files alone.
func (b *ImportBatch) FileState() ImportState {
	switch {
	case b.FileKey == "":
		return ImportNoFile
	case len(b.Zips) == 0:
		return ImportFileSelected
	default:
		return ImportReadyToPreview
	}
}

// Clear drops the preview and the attached files.
func (b *ImportBatch) Clear() {
	b.Groups = ProductGroups{}
	b.FileKey = ""
	b.FileName = ""
	b.Zips = UploadRefs{}
}

// StagedKeys lists the staged uploads owned by the batch.
func (b *ImportBatch) StagedKeys() []string {
	var keys []string
	if b.FileKey != "" {
		keys = append(keys, b.FileKey)
	}
	for _, z := range b.Zips {
		keys = append(keys, z.Key)
	}
	return keys
}

func (b *ImportBatch) RowCount() int {
	n := 0
	for _, g := range b.Groups {
		n += len(g.ProductDetails)
	}
	return n
}

func (b *ImportBatch) ErrorCount() int {
	n := 0
	for _, g := range b.Groups {
		for _, r := range g.ProductDetails {
			if r.IsError {
				n++
			}
		}
	}
	return n
}

func (b *ImportBatch) HasErrors() bool {
	return b.ErrorCount() > 0
}

// locate maps a flat row index (groups in order, rows in order) to its position.
func (b *ImportBatch) locate(flat int) (int, int, bool) {
	if flat < 0 {
		return 0, 0, false
	}
	for gi, g := range b.Groups {
		if flat < len(g.ProductDetails) {
			return gi, flat, true
		}
		flat -= len(g.ProductDetails)
	}
	return 0, 0, false
}

// Row returns a copy of the row at a flat index.
func (b *ImportBatch) Row(flat int) (ImportRow, error) {
	gi, ri, ok := b.locate(flat)
	if !ok {
		return ImportRow{}, ErrRowIndexOutOfRange
	}
	return b.Groups[gi].ProductDetails[ri], nil
}

// DeleteRow removes a row and drops its group when it becomes empty.
func (b *ImportBatch) DeleteRow(flat int) error {
	gi, ri, ok := b.locate(flat)
	if !ok {
		return ErrRowIndexOutOfRange
	}
	g := &b.Groups[gi]
	g.ProductDetails = append(g.ProductDetails[:ri], g.ProductDetails[ri+1:]...)
	if len(g.ProductDetails) == 0 {
		b.Groups = append(b.Groups[:gi], b.Groups[gi+1:]...)
	}
	return nil
}

// FileProductDetail is the duplicate-check context of one sibling row.
type FileProductDetail struct {
	ProductTitle string `json:"productTitle"`
	Color        string `json:"color"`
	Size         string `json:"size"`
}

// Siblings returns every row except the one at flat.
func (b *ImportBatch) Siblings(flat int) []FileProductDetail {
	out := make([]FileProductDetail, 0, b.RowCount())
	i := 0
	for _, g := range b.Groups {
		for _, r := range g.ProductDetails {
			if i != flat {
				out = append(out, FileProductDetail{ProductTitle: r.ProductTitle, Color: r.Color, Size: r.Size})
			}
			i++
		}
	}
	return out
}

// CommitRow writes an edited row back. The parent group takes the row's
// category; a changed title moves the row to the group carrying that title.
func (b *ImportBatch) CommitRow(flat int, row ImportRow) error {
	gi, ri, ok := b.locate(flat)
	if !ok {
		return ErrRowIndexOutOfRange
	}
	g := &b.Groups[gi]

	if row.ProductTitle == g.ProductTitle {
		g.ProductDetails[ri] = row
		g.Category = row.Category
		return nil
	}

	description := g.Description
	g.ProductDetails = append(g.ProductDetails[:ri], g.ProductDetails[ri+1:]...)

	target := -1
	for i := range b.Groups {
		if i != gi && b.Groups[i].ProductTitle == row.ProductTitle {
			target = i
			break
		}
	}
	if target >= 0 {
		b.Groups[target].ProductDetails = append(b.Groups[target].ProductDetails, row)
		b.Groups[target].Category = row.Category
	} else {
		b.Groups = append(b.Groups, ProductGroup{
			ProductTitle:   row.ProductTitle,
			Description:    description,
			Category:       row.Category,
			ProductDetails: []ImportRow{row},
		})
	}

	if len(b.Groups[gi].ProductDetails) == 0 {
		b.Groups = append(b.Groups[:gi], b.Groups[gi+1:]...)
	}
	return nil
}

// StripBreadcrumbs reduces every category path to its leaf name.
func (b *ImportBatch) StripBreadcrumbs() {
	for gi := range b.Groups {
		g := &b.Groups[gi]
		g.Category = LeafCategoryName(g.Category)
		for ri := range g.ProductDetails {
			g.ProductDetails[ri].Category = LeafCategoryName(g.ProductDetails[ri].Category)
		}
	}
}

// RowEdit carries the admin's new values for one row.
type RowEdit struct {
	ProductTitle string   `json:"productTitle"`
	Category     string   `json:"category"`
	Color        string   `json:"color"`
	Size         string   `json:"size"`
	Price        *float64 `json:"price"`
	Quantity     *float64 `json:"quantity"`
	ImageURLs    []string `json:"imageUrls"`
}

// Check runs the local required-field rules. Nothing here reaches the catalog API.
func (e *RowEdit) Check() error {
	var errs ValidationErrors
	if strings.TrimSpace(e.ProductTitle) == "" {
		errs.Add("title_required", "productTitle", "product title is required")
	}
	if strings.TrimSpace(e.Color) == "" {
		errs.Add("color_required", "color", "color is required")
	}
	if strings.TrimSpace(e.Size) == "" {
		errs.Add("size_required", "size", "size is required")
	}
	if e.Price == nil || !isFinite(*e.Price) || *e.Price < 0 {
		errs.Add("price_invalid", "price", "price must be a number of 0 or more")
	}
	if e.Quantity == nil || !IsWholeQuantity(*e.Quantity) {
		errs.Add("quantity_invalid", "quantity", "quantity must be a whole number of 0 or more")
	}
	return errs.Err()
}

// Apply builds the committed row. Validation state comes from the caller.
func (e *RowEdit) Apply(prev ImportRow) ImportRow {
	row := prev
	row.ProductTitle = strings.TrimSpace(e.ProductTitle)
	row.Category = strings.TrimSpace(e.Category)
	row.Color = strings.TrimSpace(e.Color)
	row.Size = strings.TrimSpace(e.Size)
	if e.Price != nil {
		row.Price = NewMoney(*e.Price)
	}
	if e.Quantity != nil {
		row.Quantity = int(*e.Quantity)
	}
	if e.ImageURLs != nil {
		row.ImageURLs = append([]string(nil), e.ImageURLs...)
	}
	return row
}
