package app

import "fmt"

// DomainError is a rule violation the service reports deliberately: a
// failed validation, a lifecycle conflict (pinning an archived post,
// editing an archived meeting), a role gate. mapError passes its status
// and body through to the client as-is instead of a generic 500.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
