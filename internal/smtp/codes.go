package smtp

// SMTP reply codes this package emits. Names follow RFC 5321 §4.2.
const (
	CodeServiceReady       = 220
	CodeClosing            = 221
	CodeOK                 = 250
	CodeStartMailInput     = 354
	CodeServiceNotAvailable = 421
	CodeMailboxUnavailable = 450
	CodeLocalError         = 451
	CodeInsufficientStorage = 452
	CodeSyntaxError        = 500
	CodeSyntaxErrorParams  = 501
	CodeNotImplemented     = 502
	CodeBadSequence        = 503
	CodeParamNotImplemented = 504
	CodeSizeExceeded       = 552
	CodeTransactionFailed  = 554
)
