package errors

var (
	ErrInvalidReferralCode = &DomainError{
		Code:    "INVALID_REFERRAL_CODE",
		Message: "referral code does not exist",
	}
	ErrAlreadyReferred = &DomainError{
		Code:    "ALREADY_REFERRED",
		Message: "user has already been referred",
	}
)
