package catalogapi

import (
	"fmt"
	"io"

	"github.com/ikkim/catalog-admin/internal/app/model"
)

// ErrorResponse is the error body returned by the catalog API
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ActionResponse is the {success, message} body of mutation endpoints
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Err converts success=false into ErrRejected carrying the message.
func (r *ActionResponse) Err() error {
	if r == nil || r.Success {
		return nil
	}
	if r.Message == "" {
		return ErrRejected
	}
	return fmt.Errorf("%w: %s", ErrRejected, r.Message)
}

// UpdateDetailRequest persists an edit to one SKU row
type UpdateDetailRequest struct {
	Price    model.Money `json:"price"`
	Quantity int         `json:"quantity"`
	ColorID  uint        `json:"colorId"`
	SizeID   uint        `json:"sizeId"`
}

// CheckDetail is the row under edit in a check-detail request
type CheckDetail struct {
	ProductTitle string `json:"productTitle"`
	Color        string `json:"color"`
	Size         string `json:"size"`
	Category     string `json:"category"`
}

// CheckDetailRequest validates one import row against its siblings
type CheckDetailRequest struct {
	ProductTitle       string                    `json:"productTitle"`
	Detail             CheckDetail               `json:"detail"`
	FileProductDetails []model.FileProductDetail `json:"fileProductDetails"`
}

// CheckDetailResponse is the verdict of check-detail
type CheckDetailResponse struct {
	Error        bool   `json:"error"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// ProductResponse is returned by product create and update
type ProductResponse struct {
	ID      uint   `json:"id"`
	Message string `json:"message,omitempty"`
}

// FilePart is one file of a multipart request. Body is read once.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Body        io.Reader
}
