package ledger

import "github.com/smartdevs17/govledger/pkg/utils"

// Sentinels for errors.Is. Operations return AppErrors with the same code
// and a specific message.
var (
	ErrValidation          = utils.NewAppError(utils.ErrCodeValidation, "validation failed")
	ErrNotFound            = utils.NewAppError(utils.ErrCodeNotFound, "not found")
	ErrTimelockActive      = utils.NewAppError(utils.ErrCodeTimelockActive, "timelock active")
	ErrLockActive          = utils.NewAppError(utils.ErrCodeLockActive, "lock active")
	ErrDelegationLocked    = utils.NewAppError(utils.ErrCodeDelegationLocked, "delegation locked")
	ErrInsufficientBalance = utils.NewAppError(utils.ErrCodeInsufficientBalance, "insufficient balance")
	ErrInvalidAmount       = utils.NewAppError(utils.ErrCodeInvalidAmount, "invalid amount")
	ErrSignatureExpired    = utils.NewAppError(utils.ErrCodeSignatureExpired, "signature expired")
	ErrSignatureRevoked    = utils.NewAppError(utils.ErrCodeSignatureRevoked, "signature revoked")
	ErrSignatureInvalid    = utils.NewAppError(utils.ErrCodeSignatureInvalid, "signature invalid")
)

func validationError(message string, details ...string) error {
	return utils.NewAppError(utils.ErrCodeValidation, message, details...)
}

func notFound(message string, details ...string) error {
	return utils.NewAppError(utils.ErrCodeNotFound, message, details...)
}
