package translate

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

var (
	ErrConfiguration                 = errors.New("translate: configuration incomplete")
	ErrUnsupportedDialect            = errors.New("translate: unsupported sql dialect")
	ErrInvalidOperator               = errors.New("translate: invalid operator combination")
	ErrPartialWrite                  = errors.New("translate: partial write")
	ErrMissingPrimaryKey             = errors.New("translate: primary key unavailable")
	ErrEmptyWrite                    = errors.New("translate: empty write payload")
	ErrNoKeys                        = errors.New("translate: no keys matched")
	ErrTableRequired                 = errors.New("translate: table name is required")
	ErrRecordNotFound                = errors.New("translate: record not found")
	ErrTranslatableColumnUnsupported = errors.New("translate: increment on translatable column is unsupported")
)

const configInvalidCode = "TRANSLATE_CONFIG_INVALID"

// ConfigurationError reports a capability that was never registered
// before first use (locale getters, cache provider).
type ConfigurationError struct {
	Capability string
}

func (e *ConfigurationError) Error() string {
	if e == nil || e.Capability == "" {
		return ErrConfiguration.Error()
	}
	return fmt.Sprintf("%s: %s", ErrConfiguration.Error(), e.Capability)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// UnsupportedDialectError is returned when the active connection's
// grammar has no known null-coalescing function mapping.
type UnsupportedDialectError struct {
	Dialect string
}

func (e *UnsupportedDialectError) Error() string {
	if e == nil || e.Dialect == "" {
		return ErrUnsupportedDialect.Error()
	}
	return fmt.Sprintf("%s: %s", ErrUnsupportedDialect.Error(), e.Dialect)
}

func (e *UnsupportedDialectError) Unwrap() error {
	return ErrUnsupportedDialect
}

// InvalidOperatorError captures malformed operator/value combinations
// passed to a translated where call.
type InvalidOperatorError struct {
	Column   string
	Operator string
	Reason   string
}

func (e *InvalidOperatorError) Error() string {
	if e == nil {
		return ErrInvalidOperator.Error()
	}
	msg := ErrInvalidOperator.Error()
	if e.Column != "" {
		msg = fmt.Sprintf("%s: column=%s", msg, e.Column)
	}
	if e.Operator != "" {
		msg = fmt.Sprintf("%s operator=%q", msg, e.Operator)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	return msg
}

func (e *InvalidOperatorError) Unwrap() error {
	return ErrInvalidOperator
}

// PartialWriteError reports a logical write that succeeded on one
// physical table and failed on the other. The surviving side is not
// undone by this layer; callers needing atomicity wrap the operation in
// a transaction obtained from bun.
type PartialWriteError struct {
	Table string
	Stage string
	ID    any
	Err   error
}

func (e *PartialWriteError) Error() string {
	if e == nil {
		return ErrPartialWrite.Error()
	}
	return fmt.Sprintf("%s: stage=%s table=%s id=%v: %v", ErrPartialWrite.Error(), e.Stage, e.Table, e.ID, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return ErrPartialWrite
}

// RecordNotFoundError maps a missing lookup at the repository boundary.
type RecordNotFoundError struct {
	Resource string
	Key      string
}

func (e *RecordNotFoundError) Error() string {
	if e == nil {
		return ErrRecordNotFound.Error()
	}
	return fmt.Sprintf("%s: %s %q", ErrRecordNotFound.Error(), e.Resource, e.Key)
}

func (e *RecordNotFoundError) Unwrap() error {
	return ErrRecordNotFound
}

func wrapConfigError(err error) error {
	if err == nil {
		return nil
	}
	if goerrors.IsWrapped(err) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, "translation configuration failed validation").
		WithTextCode(configInvalidCode)
}
