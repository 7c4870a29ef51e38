package services

import "errors"

var (
	// ErrTestNotFound is a hard error for admin actions on a missing test.
	// Storefront surfaces never see it; they degrade to a "no test" result.
	ErrTestNotFound = errors.New("test not found")

	// ErrTestConflict reports that another test already occupies the
	// product's experiment slot.
	ErrTestConflict = errors.New("another test is already active for this product")

	// ErrInvalidTransition reports a lifecycle action that the test's
	// current status does not allow.
	ErrInvalidTransition = errors.New("invalid test state transition")

	// ErrIncompleteVariants reports a test without a usable A/B image pair.
	ErrIncompleteVariants = errors.New("test does not have a complete A/B variant pair")

	// ErrStaleRotation reports a rotate whose compare-and-swap lost to a
	// concurrent rotation; the flip already happened exactly once.
	ErrStaleRotation = errors.New("rotation superseded by a concurrent rotation")

	// ErrRotationInProgress reports that another holder owns the per-test
	// rotation lock right now.
	ErrRotationInProgress = errors.New("a rotation for this test is already in progress")

	// ErrMediaSwap wraps a commerce-platform failure during an image swap.
	ErrMediaSwap = errors.New("product media swap failed")

	// ErrInvalidEvent reports a malformed tracking payload.
	ErrInvalidEvent = errors.New("invalid tracking event")
)
