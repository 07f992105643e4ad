package models

import "errors"

var (
	ErrBusy            = errors.New("an upload is already in progress")
	ErrUnknownField    = errors.New("unknown form field")
	ErrSessionNotFound = errors.New("session not found")
)

type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindUpload       ErrorKind = "upload"
	KindRegistration ErrorKind = "registration"
)

// FormError is a terminal failure of one form action. Msg is what the
// user is shown; Err carries the underlying cause, if any.
type FormError struct {
	Kind   ErrorKind
	Rule   string
	Msg    string
	Status int
	Err    error
}

type FormErrorOption func(*FormError)

func WithKind(kind ErrorKind) FormErrorOption {
	return func(fe *FormError) {
		fe.Kind = kind
	}
}

func WithMessage(msg string) FormErrorOption {
	return func(fe *FormError) {
		fe.Msg = msg
	}
}

// WithRule names the check that rejected the input.
func WithRule(rule string) FormErrorOption {
	return func(fe *FormError) {
		fe.Rule = rule
	}
}

// WithStatus records the upstream HTTP status that caused the failure.
func WithStatus(status int) FormErrorOption {
	return func(fe *FormError) {
		fe.Status = status
	}
}

func WithCause(err error) FormErrorOption {
	return func(fe *FormError) {
		fe.Err = err
	}
}

func NewFormError(opts ...FormErrorOption) *FormError {
	fe := &FormError{
		Kind: KindValidation,
		Msg:  "invalid form",
	}
	for _, opt := range opts {
		opt(fe)
	}
	return fe
}

func (e *FormError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Msg + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Msg
}

func (e *FormError) Unwrap() error {
	return e.Err
}
