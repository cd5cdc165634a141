package types

import (
	"strings"
)

// Validate ensures the settings describe a drawable canvas
// FUNCTIONAL DISCOVERY: Validation rejects the whole update; callers must not
// apply a partially valid settings object
func (s BoardSettings) Validate() error {
	if s.Width <= 0 || s.Height <= 0 || s.GridSize <= 0 {
		return ErrInvalidSettings
	}
	if strings.TrimSpace(s.BackgroundColor) == "" {
		return ErrInvalidSettings
	}
	return nil
}

// Validate ensures a stroke carries drawable data
func (s Stroke) Validate() error {
	if len(s.Points) == 0 {
		return ErrEmptyStroke
	}
	return nil
}

// IsValidSubject reports whether subject is one of the fixed study subjects
func IsValidSubject(subject string) bool {
	for _, s := range Subjects {
		if s == subject {
			return true
		}
	}
	return false
}

// IsValidGroupName checks the length of a group display name
func IsValidGroupName(name string) bool {
	name = strings.TrimSpace(name)
	return len(name) >= 1 && len(name) <= 100
}

// IsAllowedUploadType reports whether a chat attachment may have mimeType.
// PDF, DOCX and any image type are accepted.
func IsAllowedUploadType(mimeType string) bool {
	switch {
	case mimeType == MimePDF, mimeType == MimeDOCX:
		return true
	case strings.HasPrefix(mimeType, "image/"):
		return true
	default:
		return false
	}
}

// IsDocument reports whether mimeType is a PDF or DOCX document
func IsDocument(mimeType string) bool {
	return mimeType == MimePDF || mimeType == MimeDOCX
}

// Document MIME types accepted by the chat channel
const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)
