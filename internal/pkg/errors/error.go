package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict: resource already exists")
	ErrInternal       = errors.New("internal server error")
	ErrDuplicateEntry = errors.New("duplicate entry")
)

// Loyalty domain rejections. These abort a single sub-step (a redemption, a
// bonus) and are reported to the caller; they never roll back the whole bill.
var (
	ErrCustomerNotEnrolled = errors.New("customer not enrolled in loyalty program")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrBelowMinRedeem      = errors.New("points below minimum redemption")
	ErrInvalidTierCatalog  = errors.New("tier catalog ordering invariant violated")
	ErrRewardInactive      = errors.New("reward is inactive")
	ErrRewardOutOfWindow   = errors.New("reward outside its validity window")
	ErrOfferNotAvailable   = errors.New("offer not available for customer")
)

// Storage failures. StorageConflict signals a serialization failure; the
// caller may retry the whole operation once. StorageError is durable.
var (
	ErrStorageConflict = errors.New("storage serialization conflict")
	ErrStorageError    = errors.New("storage failure")
)

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap extracts the underlying wrapped error.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
