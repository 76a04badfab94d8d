package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator with custom struct-level
// validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// Transactional consent is the floor: a checkout cannot be started
	// without permission for transactional contact, and consent is
	// immutable afterwards.
	v.RegisterStructValidation(startCheckoutStructValidation, StartCheckoutRequest{})

	return v
}

func startCheckoutStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(StartCheckoutRequest)

	if req.Consent.Transactional != nil && !*req.Consent.Transactional {
		sl.ReportError(req.Consent.Transactional, "consent.transactional", "Transactional", "transactional_consent_required", "")
	}
}
