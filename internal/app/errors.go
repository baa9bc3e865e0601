package app

import "fmt"

// DomainError is a business-rule failure that maps straight onto an
// HTTP response. Services return it instead of writing status codes
// themselves; writeMappedError turns anything else into a plain 500
// so internals never leak to clients.
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
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message, Details: details}
}
