// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates a conditional write lost (row not in the expected state).
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates failed authentication (bad credentials or token).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates malformed or missing input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCodeTaken indicates a randomly drawn short code (friend code) is already in use.
	ErrCodeTaken = errors.New("code taken")
)

// Membership and permission checks done by the relay and services.
var (
	// ErrNotEnrolled indicates the caller (or target) is not a member of the group.
	ErrNotEnrolled = errors.New("not enrolled")

	// ErrNotAuthorized indicates an authenticated caller may not perform the action.
	ErrNotAuthorized = errors.New("not authorized")
)

// End-to-end crypto failures.
var (
	// ErrInvalidPasswordOrCorruptData is returned by private key unwrap. Wrong
	// password and damaged blobs are deliberately reported the same way.
	ErrInvalidPasswordOrCorruptData = errors.New("invalid password or corrupt data")

	// ErrMessageDecryptionFailed marks message content that could not be opened.
	ErrMessageDecryptionFailed = errors.New("message decryption failed")

	// ErrGroupKeyUnwrapFailed is returned when no envelope format yields the group key.
	ErrGroupKeyUnwrapFailed = errors.New("group key unwrap failed")

	// ErrNoGroupKey indicates the client does not hold the key for a group yet.
	ErrNoGroupKey = errors.New("no group key")
)
