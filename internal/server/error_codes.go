package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument  = 1000
	ErrCodeInvalidJSON      = 1001
	ErrCodeRequestTooLarge  = 1002
	ErrCodeInvalidQuery     = 1003
	ErrCodeInvalidID        = 1004
	ErrCodeInvalidStatus    = 1005
	ErrCodeInvalidMediaType = 1006
	ErrCodeInvalidPriority  = 1007
	ErrCodeInvalidDate      = 1008
	ErrCodeMissingRequired  = 1009
	ErrCodeInvalidEncoding  = 1010

	// Domain state (2xxx)
	ErrCodeTaskNotFound       = 2001
	ErrCodeFileNotFound       = 2002
	ErrCodePreconditionFailed = 2103

	// Auth & limits (3xxx)
	ErrCodeUnauthorized = 3001

	// Internal/system (4xxx)
	ErrCodeInternal             = 4001
	ErrCodeStoreFailure         = 4002
	ErrCodeStorageWriteFailure  = 4006
	ErrCodeMetadataWriteFailure = 4007
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 404:
		return ErrCodeTaskNotFound
	case 413:
		return ErrCodeRequestTooLarge
	case 500:
		return ErrCodeInternal
	default:
		return 0
	}
}
