package repository

import "errors"

var (
	// ErrEntryNotFound indicates no history entry has the requested id
	ErrEntryNotFound = errors.New("history entry not found")

	// ErrCorruptRecord indicates stored content could not be decoded
	ErrCorruptRecord = errors.New("stored record is corrupt")
)
