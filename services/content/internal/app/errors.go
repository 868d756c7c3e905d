package app

import "errors"

var (
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("content not found")
	ErrStatusConflict = errors.New("content is not in a state that allows this change")

	ErrInvalidKind         = errors.New("content_type must be one of: book video quiz")
	ErrInvalidAction       = errors.New("action must be one of: approve reject request_changes")
	ErrInvalidStatusFilter = errors.New("only status=pending can be listed for review")
	ErrContentIDRequired   = errors.New("content_id required")
	ErrTitleRequired       = errors.New("title required")
	ErrSubjectRequired     = errors.New("subject required")

	// ErrAttachmentUnsupported is returned for quizzes, which carry no file.
	ErrAttachmentUnsupported = errors.New("attachments are only supported for books and videos")
	ErrNoAttachment          = errors.New("content has no attachment")
	ErrFilenameRequired      = errors.New("filename required")
	// ErrStorageUnavailable covers a missing or failing object store.
	ErrStorageUnavailable = errors.New("attachment storage unavailable")
)
