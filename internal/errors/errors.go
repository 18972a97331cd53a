// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// Transport error codes the pipeline special-cases.
const (
	CodeRecipientNotFound = "RECIPIENT_NOT_FOUND"
	CodeNoChannelSender   = "NO_CHANNEL_SENDER"
)

// ErrConversationNotFound is a sentinel error
type ErrConversationNotFound struct {
	ConversationID string
}

func (e *ErrConversationNotFound) Error() string {
	return fmt.Sprintf("conversation %s not found", e.ConversationID)
}

// Helper constructor
func NewConversationNotFound(id string) error {
	return &ErrConversationNotFound{ConversationID: id}
}

// ErrInFlightConflict signals the single-in-flight-item invariant would be
// violated: the conversation already has a pending or processing item.
type ErrInFlightConflict struct {
	ConversationID string
}

func (e *ErrInFlightConflict) Error() string {
	return fmt.Sprintf("conversation %s already has an in-flight outbound item", e.ConversationID)
}

func NewInFlightConflict(conversationID string) error {
	return &ErrInFlightConflict{ConversationID: conversationID}
}

func IsInFlightConflict(err error) bool {
	var e *ErrInFlightConflict
	return errors.As(err, &e)
}

// GenerationError wraps a failure of the generation collaborator. Recoverable:
// the batch is skipped, no outbound item is created, and the next inbound
// message re-triggers the pipeline.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func NewGenerationError(err error) error {
	return &GenerationError{Err: err}
}

// TransportError is returned by a ChannelSender. RECIPIENT_NOT_FOUND is the
// only remote code treated as permanent; everything else is retried with
// backoff.
type TransportError struct {
	Code    string
	Message string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error %s: %s", e.Code, e.Message)
}

func (e *TransportError) Permanent() bool {
	return e.Code == CodeRecipientNotFound || e.Code == CodeNoChannelSender
}

func NewTransportError(code, message string) error {
	return &TransportError{Code: code, Message: message}
}

// ErrRateLimited defers a send without consuming a retry attempt.
type ErrRateLimited struct {
	Gate string // "account" or "contact"
}

func (e *ErrRateLimited) Error() string {
	return fmt.Sprintf("rate limited by %s gate", e.Gate)
}

func NewRateLimited(gate string) error {
	return &ErrRateLimited{Gate: gate}
}

func IsRateLimited(err error) bool {
	var e *ErrRateLimited
	return errors.As(err, &e)
}
