package errno

import "errors"

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// WithMessage 复用错误码，替换展示给用户的消息
func (e Errno) WithMessage(msg string) Errno {
	return Errno{Code: e.Code, Message: msg}
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	var typed Errno
	if errors.As(err, &typed) {
		return typed.Code, typed.Message
	}
	var ptr *Errno
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Code, ptr.Message
	}
	return InternalServerError.Code, err.Error()
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrRedis            = Errno{Code: 10005, Message: "Redis error"}
)

// Pipeline Errors (30000+)
var (
	ErrMissingDependencies = Errno{Code: 30001, Message: "Missing Dependencies"}
	ErrAwaitingMarketData  = Errno{Code: 30002, Message: "Market data is still loading"}
	ErrInvalidIntent       = Errno{Code: 30003, Message: "Invalid transaction parameters"}
	ErrUnsupportedChain    = Errno{Code: 30004, Message: "Chain is not served by this signer"}
	ErrAlreadyApproved     = Errno{Code: 30005, Message: "Allowance already covers the amount"}
	ErrApprovalPending     = Errno{Code: 30006, Message: "An approval for this token and spender is still pending"}
	ErrEstimation          = Errno{Code: 30101, Message: "Gas estimation failed"}
	ErrRejected            = Errno{Code: 30102, Message: "Transaction rejected."}
	ErrSubmission          = Errno{Code: 30103, Message: "Transaction submission failed"}
	ErrDuplicateSubmission = Errno{Code: 30104, Message: "An identical transaction is already being submitted"}
	ErrLedgerInvariant     = Errno{Code: 30201, Message: "Transaction already tracked"}
	ErrTxNotFound          = Errno{Code: 30202, Message: "Transaction not found"}
	ErrLedgerRegistration  = Errno{Code: 30203, Message: "Transaction submitted but not tracked"}
)
