package service

import "errors"

var (
	// ErrSubmissionNotFound indicates a submission could not be found.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrDuplicateSubmission indicates a completed submission already exists
	// for the (exam, student) pair.
	ErrDuplicateSubmission = errors.New("submission already completed for this exam")
	// ErrNotOwner indicates the caller does not own the submission.
	ErrNotOwner = errors.New("submission belongs to another student")
	// ErrAlreadyFinalized indicates the submission reached its terminal state.
	ErrAlreadyFinalized = errors.New("submission already finalized")
	// ErrPayloadTooLarge indicates the payload exceeded the hard ceiling.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum allowed size")
	// ErrEmptyPayload indicates the decoded payload was zero bytes.
	ErrEmptyPayload = errors.New("decoded payload is empty")
	// ErrMissingPDFPrefix indicates pdfData did not carry the PDF data-URI prefix.
	ErrMissingPDFPrefix = errors.New("pdfData must be a base64 PDF data URI")
	// ErrStudentNameRequired indicates the non-text path is missing the display name.
	ErrStudentNameRequired = errors.New("student name is required")
	// ErrInvalidChunkIndex indicates the chunk index is outside the declared range.
	ErrInvalidChunkIndex = errors.New("chunk index out of range")
)
