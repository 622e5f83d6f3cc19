package model

import "fmt"

// ContractError is an invariant violation while assembling a response:
// a missing required field, an empty snippet source, or an ALLOW decision
// without matched rule ids. Fatal to the query; no partial response.
type ContractError struct {
	Field string
	Msg   string
}

func (e *ContractError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("contract violation: %s: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("contract violation: missing required field %s", e.Field)
}

// NewContractError reports a missing required field.
func NewContractError(field string) *ContractError {
	return &ContractError{Field: field}
}

// AuditError is a failed audit sink write. The enclosing query must not
// return results after an audit failure.
type AuditError struct {
	Err error
}

func (e *AuditError) Error() string { return fmt.Sprintf("audit log write failed: %v", e.Err) }
func (e *AuditError) Unwrap() error { return e.Err }

// BackendError is a failed lexical, vector, embedding, or catalog call.
// Timeouts are a kind of BackendError. Fatal to the query.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string { return fmt.Sprintf("%s backend: %v", e.Backend, e.Err) }
func (e *BackendError) Unwrap() error { return e.Err }
