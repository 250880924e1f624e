package domain

import "errors"

var (
	// ErrEmptyRecordType is returned when no record type was supplied.
	ErrEmptyRecordType = errors.New("record type cannot be empty")
	// ErrInvalidRecordType is returned for identifiers outside the allow-list.
	ErrInvalidRecordType = errors.New("invalid record type")
	// ErrInvalidRecord wraps decoding and validation failures of a single record.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrMissingTimestamp indicates a record carries neither time nor a start/end pair.
	ErrMissingTimestamp = errors.New("no start time or end time provided")
	// ErrUnpairedInterval indicates only one of startTime/endTime was provided.
	ErrUnpairedInterval = errors.New("start time and end time must be provided together")
	// ErrInvalidInput is returned when tenant, user or date parameters are malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAggregateNotFound is returned when no daily aggregate exists for a key.
	ErrAggregateNotFound = errors.New("daily aggregate not found")
)
