package ir

import (
	"errors"
	"fmt"
)

// ContractError is a precondition failure reported by a contract operation.
//
// Contract errors are detected before any state is written, and the
// enclosing store transaction is rolled back, so a failed operation never
// leaves a partial effect behind.
type ContractError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// ErrorCode categorizes contract errors.
type ErrorCode string

const (
	// CodeUnauthorized indicates a role check failed.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// CodeInsufficientStake indicates the deposit is below the minimum stake.
	CodeInsufficientStake ErrorCode = "INSUFFICIENT_STAKE"

	// CodeCrossCallNotAllowed indicates a proxied submission.
	CodeCrossCallNotAllowed ErrorCode = "CROSS_CALL_NOT_ALLOWED"

	// CodeRequestNotFound indicates the id is beyond the request log.
	CodeRequestNotFound ErrorCode = "REQUEST_NOT_FOUND"

	// CodeRequestAlreadyProcessed indicates the request is no longer pending.
	CodeRequestAlreadyProcessed ErrorCode = "REQUEST_ALREADY_PROCESSED"

	// CodeAlreadyLinked indicates either side of a link is already taken.
	CodeAlreadyLinked ErrorCode = "ALREADY_LINKED"

	// CodeNotLinked indicates the exact pair is not linked.
	CodeNotLinked ErrorCode = "NOT_LINKED"

	// CodeNoLinkedAccount indicates the caller has no linked external account.
	CodeNoLinkedAccount ErrorCode = "NO_LINKED_ACCOUNT"

	// CodeNothingToClaim indicates an empty escrow balance.
	CodeNothingToClaim ErrorCode = "NOTHING_TO_CLAIM"

	// CodeAmountOverflow indicates an accumulator would exceed 2^128 - 1.
	CodeAmountOverflow ErrorCode = "AMOUNT_OVERFLOW"

	// CodeNotInitialized indicates roles and parameters were never set.
	CodeNotInitialized ErrorCode = "NOT_INITIALIZED"

	// CodeAlreadyInitialized indicates a second bootstrap attempt.
	CodeAlreadyInitialized ErrorCode = "ALREADY_INITIALIZED"

	// CodeInvalidArgument indicates malformed input.
	CodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
)

// Sentinels for errors.Is. Matching compares codes only.
var (
	ErrUnauthorized            = &ContractError{Code: CodeUnauthorized, Message: "caller is not authorized"}
	ErrInsufficientStake       = &ContractError{Code: CodeInsufficientStake, Message: "deposit is below the minimum stake"}
	ErrCrossCallNotAllowed     = &ContractError{Code: CodeCrossCallNotAllowed, Message: "caller must be the transaction signer"}
	ErrRequestNotFound         = &ContractError{Code: CodeRequestNotFound, Message: "request not found"}
	ErrRequestAlreadyProcessed = &ContractError{Code: CodeRequestAlreadyProcessed, Message: "request already processed"}
	ErrAlreadyLinked           = &ContractError{Code: CodeAlreadyLinked, Message: "account already linked"}
	ErrNotLinked               = &ContractError{Code: CodeNotLinked, Message: "accounts are not linked"}
	ErrNoLinkedAccount         = &ContractError{Code: CodeNoLinkedAccount, Message: "caller has no linked external account"}
	ErrNothingToClaim          = &ContractError{Code: CodeNothingToClaim, Message: "nothing to claim"}
	ErrAmountOverflow          = &ContractError{Code: CodeAmountOverflow, Message: "amount overflow"}
	ErrNotInitialized          = &ContractError{Code: CodeNotInitialized, Message: "contract is not initialized"}
	ErrAlreadyInitialized      = &ContractError{Code: CodeAlreadyInitialized, Message: "contract is already initialized"}
	ErrInvalidArgument         = &ContractError{Code: CodeInvalidArgument, Message: "invalid argument"}
)

// Errorf returns a ContractError with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *ContractError {
	return &ContractError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// With returns a copy of e carrying an extra detail.
func (e *ContractError) With(key, value string) *ContractError {
	details := make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &ContractError{Code: e.Code, Message: e.Message, Details: details}
}

// Error implements the error interface.
func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any ContractError with the same code.
func (e *ContractError) Is(target error) bool {
	var ce *ContractError
	if errors.As(target, &ce) {
		return ce.Code == e.Code
	}
	return false
}

// CodeOf returns the code of a ContractError anywhere in err's chain,
// or "" if err is nil or not a contract error.
func CodeOf(err error) ErrorCode {
	var ce *ContractError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsContractError reports whether err carries a ContractError.
// Uses errors.As to handle wrapped errors.
func IsContractError(err error) bool {
	return CodeOf(err) != ""
}
