package errors

import "fmt"

type DatabaseError struct {
	Operation string
	Err       error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Operation, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

type NotFoundError struct {
	Resource   string
	Identifier string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Identifier)
}

// ExplorerError covers failures talking to the block explorer API.
type ExplorerError struct {
	Operation string
	Err       error
}

func (e *ExplorerError) Error() string {
	return fmt.Sprintf("explorer error during %s: %v", e.Operation, e.Err)
}

func (e *ExplorerError) Unwrap() error {
	return e.Err
}

// ChainError covers failures talking to the chain RPC node.
type ChainError struct {
	Operation string
	Err       error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("chain error during %s: %v", e.Operation, e.Err)
}

func (e *ChainError) Unwrap() error {
	return e.Err
}

type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s - %v", e.StatusCode, e.Message, e.Err)
}

type WebSocketError struct {
	Operation string
	Err       error
}

func (e *WebSocketError) Error() string {
	return fmt.Sprintf("WebSocket error during %s: %v", e.Operation, e.Err)
}

// ClassificationError marks a raw record whose contract or method is not in
// the known-address registry. Such records become type "other" and never
// earn points, but the record itself is not fatal to normalization.
type ClassificationError struct {
	TxHash string
	Reason string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("cannot classify transaction %s: %s", e.TxHash, e.Reason)
}

// PrecisionError marks an amount or timestamp that could not be parsed
// safely. The record is excluded from the point-bearing set and flagged
// for manual review.
type PrecisionError struct {
	TxHash string
	Field  string
	Value  string
}

func (e *PrecisionError) Error() string {
	return fmt.Sprintf("unparseable %s %q on transaction %s", e.Field, e.Value, e.TxHash)
}

// ConflictError signals a lost optimistic-concurrency race on a user row.
type ConflictError struct {
	UserID int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrent update detected for user %d", e.UserID)
}
