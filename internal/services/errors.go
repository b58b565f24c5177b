package services

import (
	apperrors "github.com/charlesng35/doctracker/pkg/errors"
)

var (
	// ErrUserNotFound indicates the referenced user profile does not exist.
	ErrUserNotFound = apperrors.ErrNotFound.WithMessage("User not found")
	// ErrDocumentNotFound indicates the document does not exist or belongs to someone else.
	ErrDocumentNotFound = apperrors.ErrNotFound.WithMessage("Document not found")
)
