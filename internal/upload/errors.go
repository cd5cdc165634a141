package upload

import "errors"

// Upload tracking errors
var (
	ErrNoActiveUpload = errors.New("no active file upload")
	ErrUploadNotFound = errors.New("no matching file upload found")
	ErrUploadOverflow = errors.New("upload exceeds declared size")
	ErrInvalidSize    = errors.New("invalid file size")
)
