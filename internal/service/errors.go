package service

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProvider  = errors.New("unknown payment provider")
	ErrProductNotFound  = errors.New("product not found")
	ErrCourseNotFound   = errors.New("course not found")
	ErrFreeProduct      = errors.New("product is free and needs no checkout")
	ErrMissingPaymentID = errors.New("missing payment id")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// ProviderRejectionError means the provider did not approve or complete the
// payment. The checkout attempt is over; nothing was granted.
type ProviderRejectionError struct {
	Provider string
	Status   string
	Reason   string
}

func (e *ProviderRejectionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s payment not approved (status %s): %s", e.Provider, e.Status, e.Reason)
	}
	return fmt.Sprintf("%s payment not approved (status %s)", e.Provider, e.Status)
}

func IsProviderRejection(err error) bool {
	var rej *ProviderRejectionError
	return errors.As(err, &rej)
}
