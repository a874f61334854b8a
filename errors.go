package main

import "fmt"

// invalidSessionIDError reports an identifier containing characters that can
// never appear in a UUID.
type invalidSessionIDError struct {
	id string
}

func (e *invalidSessionIDError) Error() string {
	return fmt.Sprintf("Invalid UUID format: %s", e.id)
}

// conversationNotFoundError reports an identifier that matched no
// conversation in the store.
type conversationNotFoundError struct {
	id string
}

func (e *conversationNotFoundError) Error() string {
	return fmt.Sprintf("No conversation found with ID: %s", e.id)
}

// ambiguousSessionIDError reports a prefix that matched more than one
// conversation; matches carries the candidates for disambiguation output.
type ambiguousSessionIDError struct {
	id      string
	matches []conversation
}

func (e *ambiguousSessionIDError) Error() string {
	return fmt.Sprintf("Ambiguous session ID '%s'. Found %d matches.", e.id, len(e.matches))
}

// branchError wraps any non-resolver failure raised while duplicating a
// conversation. Resolver errors pass through duplication unwrapped.
type branchError struct {
	msg string
	err error
}

func (e *branchError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *branchError) Unwrap() error { return e.err }
