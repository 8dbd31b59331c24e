package pipeline

import "fmt"

// TranslateError reports a query shape the pipeline language cannot
// express. Translation errors are never retried and never silently
// approximated: a pipeline that quietly returned wrong rows would be
// worse than a failed compile.
type TranslateError struct {
	// Code identifies the error category.
	Code TranslateErrorCode

	// Message is a human-readable description.
	Message string
}

// TranslateErrorCode categorizes translation errors.
type TranslateErrorCode string

const (
	// ErrCodeUnknownTable indicates a scan of a table absent from the
	// generated schema.
	ErrCodeUnknownTable TranslateErrorCode = "UNKNOWN_TABLE"

	// ErrCodeUnknownColumn indicates a reference to a column absent
	// from the current row shape.
	ErrCodeUnknownColumn TranslateErrorCode = "UNKNOWN_COLUMN"

	// ErrCodeUnsupportedJoin indicates a join kind or join condition
	// the compiler does not implement (RIGHT/FULL joins, non-equi or
	// incomplete-key joins between tables of one collection, compound
	// cross-collection conditions).
	ErrCodeUnsupportedJoin TranslateErrorCode = "UNSUPPORTED_JOIN"

	// ErrCodeUnsupportedExpr indicates an expression outside the
	// translatable fragment.
	ErrCodeUnsupportedExpr TranslateErrorCode = "UNSUPPORTED_EXPR"

	// ErrCodeUnsupportedSort indicates a collation feature the target
	// has no equivalent for (explicit NULLS FIRST/LAST).
	ErrCodeUnsupportedSort TranslateErrorCode = "UNSUPPORTED_SORT"
)

func (e *TranslateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func translateErrf(code TranslateErrorCode, format string, args ...any) *TranslateError {
	return &TranslateError{Code: code, Message: fmt.Sprintf(format, args...)}
}
