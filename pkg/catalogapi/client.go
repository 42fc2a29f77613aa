package catalogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ikkim/catalog-admin/internal/app/model"
	"github.com/ikkim/catalog-admin/pkg/logger"
)

const defaultTimeout = 30 * time.Second

// Client represents a catalog REST API client
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a new catalog API client with the given configuration
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// GetConfig returns the client configuration
func (c *Client) GetConfig() Config {
	return c.config
}

// GET /colors/active
func (c *Client) GetActiveColors(ctx context.Context) ([]model.VariantColor, error) {
	var colors []model.VariantColor
	if err := c.getJSON(ctx, "/colors/active", nil, &colors); err != nil {
		return nil, fmt.Errorf("failed to fetch active colors: %w", err)
	}
	return colors, nil
}

// GET /sizes/active
func (c *Client) GetActiveSizes(ctx context.Context) ([]model.VariantSize, error) {
	var sizes []model.VariantSize
	if err := c.getJSON(ctx, "/sizes/active", nil, &sizes); err != nil {
		return nil, fmt.Errorf("failed to fetch active sizes: %w", err)
	}
	return sizes, nil
}

// GET /categories/tree
func (c *Client) GetCategoryTree(ctx context.Context) ([]model.Category, error) {
	var tree []model.Category
	if err := c.getJSON(ctx, "/categories/tree", nil, &tree); err != nil {
		return nil, fmt.Errorf("failed to fetch category tree: %w", err)
	}
	return tree, nil
}

// GET /products/details/:detailId/sizes?color=
func (c *Client) GetSizesByColor(ctx context.Context, detailID uint, color string) (*model.SizesByColorResponse, error) {
	var resp model.SizesByColorResponse
	path := fmt.Sprintf("/products/details/%d/sizes", detailID)
	if err := c.getJSON(ctx, path, url.Values{"color": {color}}, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch sizes for color %q: %w", color, err)
	}
	return &resp, nil
}

// GET /products/details/:detailId?color=&size=
func (c *Client) GetProductByColorPublic(ctx context.Context, detailID uint, color, size string) (*model.ProductDetailQueryResponse, error) {
	var resp model.ProductDetailQueryResponse
	query := url.Values{"color": {color}}
	if size != "" {
		query.Set("size", size)
	}
	path := fmt.Sprintf("/products/details/%d", detailID)
	if err := c.getJSON(ctx, path, query, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch detail %d (%s/%s): %w", detailID, color, size, err)
	}
	return &resp, nil
}

// PUT /admin/products/details/:detailId
func (c *Client) UpdateProductDetailAdmin(ctx context.Context, detailID uint, req UpdateDetailRequest) (*ActionResponse, error) {
	var resp ActionResponse
	path := fmt.Sprintf("/admin/products/details/%d", detailID)
	if err := c.sendJSON(ctx, http.MethodPut, path, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to update detail %d: %w", detailID, err)
	}
	return &resp, nil
}

// POST /products/import/check-detail
func (c *Client) CheckImportDetail(ctx context.Context, req CheckDetailRequest) (*CheckDetailResponse, error) {
	if req.FileProductDetails == nil {
		req.FileProductDetails = []model.FileProductDetail{}
	}
	var resp CheckDetailResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/products/import/check-detail", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to check import row: %w", err)
	}
	return &resp, nil
}

// POST /products/import/zip-preview
func (c *Client) PreviewImport(ctx context.Context, file FilePart, zips []FilePart) ([]model.ProductGroup, error) {
	file.Field = "file"
	parts := []FilePart{file}
	for _, z := range zips {
		z.Field = "zips"
		parts = append(parts, z)
	}

	var groups []model.ProductGroup
	if err := c.sendMultipart(ctx, http.MethodPost, "/products/import/zip-preview", nil, parts, &groups); err != nil {
		return nil, fmt.Errorf("failed to preview import: %w", err)
	}
	return groups, nil
}

// POST /products/import/zip-save
func (c *Client) SaveImport(ctx context.Context, groups []model.ProductGroup) (*ActionResponse, error) {
	var resp ActionResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/products/import/zip-save", groups, &resp); err != nil {
		return nil, fmt.Errorf("failed to save import: %w", err)
	}
	return &resp, nil
}

// GET /products/:id
func (c *Client) GetProduct(ctx context.Context, productID uint) (*model.ExistingProduct, error) {
	var resp model.ExistingProduct
	path := fmt.Sprintf("/products/%d", productID)
	if err := c.getJSON(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch product %d: %w", productID, err)
	}
	if resp.ID == 0 {
		resp.ID = productID
	}
	return &resp, nil
}

// POST /products
func (c *Client) CreateProduct(ctx context.Context, sub model.ProductSubmission, files []FilePart) (*ProductResponse, error) {
	var resp ProductResponse
	if err := c.sendMultipart(ctx, http.MethodPost, "/products", &jsonPart{Field: "product", Value: sub}, files, &resp); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return &resp, nil
}

// PUT /products/:id
func (c *Client) UpdateProduct(ctx context.Context, productID uint, sub model.ProductSubmission, files []FilePart) (*ProductResponse, error) {
	var resp ProductResponse
	path := fmt.Sprintf("/products/%d", productID)
	if err := c.sendMultipart(ctx, http.MethodPut, path, &jsonPart{Field: "product", Value: sub}, files, &resp); err != nil {
		return nil, fmt.Errorf("failed to update product %d: %w", productID, err)
	}
	if resp.ID == 0 {
		resp.ID = productID
	}
	return &resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	body, err := c.doRequest(ctx, http.MethodGet, path, query, nil, "")
	if err != nil {
		return err
	}
	return decode(body, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	body, err := c.doRequest(ctx, method, path, nil, bytes.NewReader(reqBody), "application/json")
	if err != nil {
		return err
	}
	return decode(body, out)
}

func decode(body []byte, out interface{}) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

// doRequest performs an HTTP request against the catalog API
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	endpoint := c.config.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	log := logger.FromContext(ctx)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.config.ServiceToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.ServiceToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("Catalog API request failed", map[string]interface{}{
			"method": method,
			"path":   path,
			"error":  err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrNetwork, err)
	}

	log.Debug("Catalog API request completed", map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": resp.StatusCode,
		"latency_ms":  time.Since(start).Milliseconds(),
	})

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}
	return nil, statusError(resp.StatusCode, respBody)
}

func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		switch {
		case errResp.Message != "":
			msg = errResp.Message
		case errResp.Error != "":
			msg = errResp.Error
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	var sentinel error
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		sentinel = ErrBadRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = ErrUnauthorized
	case http.StatusNotFound:
		sentinel = ErrNotFound
	case http.StatusConflict:
		sentinel = ErrConflict
	default:
		sentinel = ErrUpstream
	}
	return &StatusError{Status: status, Message: msg, sentinel: sentinel}
}

// StatusError is a non-2xx response. It matches its sentinel with errors.Is.
type StatusError struct {
	Status   int
	Message  string
	sentinel error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (status %d): %s", e.sentinel.Error(), e.Status, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.sentinel
}

// UpstreamMessage extracts the catalog API's own message from err, if any.
func UpstreamMessage(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return ""
}
