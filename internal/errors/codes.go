package errors

// Error codes returned in the "error" field of every error response.
// Format: CATEGORY_SPECIFIC_DETAIL. Admin UIs map messages from these.

const (
	// ==================== Auth (AUTH_) ====================
	AuthUnauthorized = "AUTH_UNAUTHORIZED"
	AuthTokenExpired = "AUTH_TOKEN_EXPIRED"
	AuthTokenInvalid = "AUTH_TOKEN_INVALID"

	// ==================== Authorization (AUTHZ_) ====================
	AuthzForbidden    = "AUTHZ_FORBIDDEN"
	AuthzRoleNotFound = "AUTHZ_ROLE_NOT_FOUND"

	// ==================== Validation (VALIDATION_) ====================
	ValidationInvalidInput    = "VALIDATION_INVALID_INPUT"
	ValidationInvalidID       = "VALIDATION_INVALID_ID"
	ValidationFailed          = "VALIDATION_FAILED" // carries per-field violations
	ValidationInvalidPrice    = "VALIDATION_INVALID_PRICE"
	ValidationInvalidQuantity = "VALIDATION_INVALID_QUANTITY"

	// ==================== Variant editor (VARIANT_) ====================
	VariantDraftNotFound    = "VARIANT_DRAFT_NOT_FOUND"
	VariantColorNotInMatrix = "VARIANT_COLOR_NOT_IN_MATRIX"
	VariantInvalidField     = "VARIANT_INVALID_FIELD"
	VariantImageIndex       = "VARIANT_IMAGE_INDEX_OUT_OF_RANGE"

	// ==================== Vocabulary (VOCAB_) ====================
	VocabUnknownColor    = "VOCAB_UNKNOWN_COLOR"
	VocabUnknownSize     = "VOCAB_UNKNOWN_SIZE"
	VocabUnknownCategory = "VOCAB_UNKNOWN_CATEGORY"

	// ==================== Detail sessions (SESSION_) ====================
	SessionNotFound      = "SESSION_NOT_FOUND"
	SessionBusy          = "SESSION_BUSY"
	SessionStaleResponse = "SESSION_STALE_RESPONSE"

	// ==================== Bulk import (IMPORT_) ====================
	ImportNotFound     = "IMPORT_NOT_FOUND"
	ImportHasErrors    = "IMPORT_HAS_ERRORS"
	ImportEmpty        = "IMPORT_EMPTY"
	ImportInvalidState = "IMPORT_INVALID_STATE"
	ImportRowIndex     = "IMPORT_ROW_INDEX_OUT_OF_RANGE"
	ImportFileMissing  = "IMPORT_FILE_MISSING"

	// ==================== Uploads (UPLOAD_) ====================
	UploadInvalidFileType = "UPLOAD_INVALID_FILE_TYPE"
	UploadFileTooLarge    = "UPLOAD_FILE_TOO_LARGE"
	UploadNotFound        = "UPLOAD_NOT_FOUND"
	UploadFailed          = "UPLOAD_FAILED"

	// ==================== Catalog API (UPSTREAM_) ====================
	UpstreamUnavailable  = "UPSTREAM_UNAVAILABLE"
	UpstreamUnauthorized = "UPSTREAM_UNAUTHORIZED"
	UpstreamNotFound     = "UPSTREAM_NOT_FOUND"
	UpstreamRejected     = "UPSTREAM_REJECTED"
	UpstreamConflict     = "UPSTREAM_CONFLICT"
	UpstreamBadResponse  = "UPSTREAM_BAD_RESPONSE"
	UpstreamError        = "UPSTREAM_ERROR"

	// ==================== Resources (RESOURCE_) ====================
	ResourceNotFound = "RESOURCE_NOT_FOUND"

	// ==================== Internal (INTERNAL_) ====================
	InternalServerError   = "INTERNAL_SERVER_ERROR"
	InternalDatabaseError = "INTERNAL_DATABASE_ERROR"
	InternalTimeout       = "INTERNAL_TIMEOUT"
)
