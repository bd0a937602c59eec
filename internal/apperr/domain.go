package apperr

// Domain failures shared by the identity, policy and role-transition layers.
// Compare with errors.Is; wrapping keeps the match.
var (
	ErrUnauthenticated = New(CodeUnauthorized, "authentication required")
	ErrForbidden       = New(CodeForbidden, "access denied")
	ErrNotFound        = New(CodeNotFound, "resource not found")

	ErrDuplicateIdentity     = New(CodeConflict, "an account with this identity already exists")
	ErrNoPendingOtp          = New(CodeValidation, "no pending verification code")
	ErrInvalidOrExpiredOtp   = New(CodeValidation, "invalid or expired verification code")
	ErrOtpAttemptsExceeded   = New(CodeRateLimit, "too many verification attempts")
	ErrInvalidCredentials    = New(CodeUnauthorized, "invalid credentials")
	ErrProviderNotConfigured = New(CodeDependency, "identity provider not configured")
	ErrInvalidToken          = New(CodeUnauthorized, "invalid token")

	ErrMissingOwner       = New(CodeValidation, "seller_id is required")
	ErrOwnershipViolation = New(CodeForbidden, "resource belongs to another seller")

	ErrAlreadyHasSellerProfile = New(CodeValidation, "user already has a seller profile")
	ErrNoSellerProfile         = New(CodeValidation, "user has no seller profile")
	ErrRoleNotEligible         = New(CodeValidation, "role is not eligible for a seller profile")
	ErrSelfRoleChange          = New(CodeValidation, "admins cannot change their own role")
	ErrSelfDelete              = New(CodeValidation, "you cannot delete your own account")
)
