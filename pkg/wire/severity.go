package wire

// Severity is the value of the Severity field on ErrorResponse/NoticeResponse.
type Severity string

const (
	Error      Severity = "ERROR"
	ErrorFatal Severity = "FATAL"
	ErrorPanic Severity = "PANIC"

	NoticeWarning Severity = "WARNING"
	Notice        Severity = "NOTICE"
	NoticeDebug   Severity = "DEBUG"
	NoticeInfo    Severity = "INFO"
	NoticeLog     Severity = "LOG"
)
