// Package feed serves the object store over WebSocket and provides a
// store.Store client for it.
//
// Every request carries a reqId echoed on its result. Connections
// subscribed to a scope also receive "event" messages for every change in
// that scope, including their own writes.
package feed

import (
	"errors"
	"fmt"

	"whiteboard/internal/object"
	"whiteboard/internal/store"
)

type MessageType string

const (
	TypeCreate      MessageType = "create"
	TypeUpdate      MessageType = "update"
	TypeDelete      MessageType = "delete"
	TypeList        MessageType = "list"
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"

	TypeResult   MessageType = "result"
	TypeEvent    MessageType = "event"
	TypeFeedLost MessageType = "feedLost"
)

// Request is a client to server message.
type Request struct {
	Type   MessageType    `json:"type"`
	ReqID  string         `json:"reqId"`
	Scope  object.Scope   `json:"scope"`
	ID     string         `json:"id,omitempty"`
	Object *object.Object `json:"object,omitempty"`
	Patch  *object.Patch  `json:"patch,omitempty"`
}

// envelope is the part of a Request needed to answer it.
type envelope struct {
	Type  MessageType `json:"type"`
	ReqID string      `json:"reqId"`
}

// Response is a server to client message: a request result, a change
// event, or notice that a scope's feed was lost.
type Response struct {
	Type    MessageType     `json:"type"`
	ReqID   string          `json:"reqId,omitempty"`
	Scope   *object.Scope   `json:"scope,omitempty"`
	Object  *object.Object  `json:"object,omitempty"`
	Objects []object.Object `json:"objects,omitempty"`
	Event   *store.Event    `json:"event,omitempty"`
	Code    ErrorCode       `json:"code,omitempty"`
	Error   string          `json:"error,omitempty"`
}

var (
	ErrBadRequest      = errors.New("bad request")
	ErrRateLimited     = errors.New("rate limited")
	ErrMessageTooLarge = errors.New("message too large")
	ErrObjectLimit     = errors.New("scope at maximum object capacity")
	ErrRoomLimit       = errors.New("server at maximum room capacity")
	ErrRemote          = errors.New("remote error")
	ErrConnClosed      = errors.New("feed connection closed")
)

// ErrorCode identifies a failure on the wire so clients can rebuild the
// matching sentinel error.
type ErrorCode string

const (
	CodeBadRequest      ErrorCode = "bad_request"
	CodeNotFound        ErrorCode = "not_found"
	CodeFieldTooLarge   ErrorCode = "field_too_large"
	CodeScopeMismatch   ErrorCode = "scope_mismatch"
	CodeInvalidScope    ErrorCode = "invalid_scope"
	CodeInvalidObject   ErrorCode = "invalid_object"
	CodeObjectLimit     ErrorCode = "object_limit"
	CodeRoomLimit       ErrorCode = "room_limit"
	CodeRateLimited     ErrorCode = "rate_limited"
	CodeMessageTooLarge ErrorCode = "message_too_large"
	CodeInternal        ErrorCode = "internal"
)

var codes = []struct {
	code ErrorCode
	err  error
}{
	{CodeBadRequest, ErrBadRequest},
	{CodeNotFound, store.ErrNotFound},
	{CodeFieldTooLarge, store.ErrFieldTooLarge},
	{CodeScopeMismatch, store.ErrScopeMismatch},
	{CodeInvalidScope, store.ErrInvalidScope},
	{CodeInvalidObject, object.ErrInvalidObject},
	{CodeObjectLimit, ErrObjectLimit},
	{CodeRoomLimit, ErrRoomLimit},
	{CodeRateLimited, ErrRateLimited},
	{CodeMessageTooLarge, ErrMessageTooLarge},
}

func codeFor(err error) ErrorCode {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

func errorFor(code ErrorCode, msg string) error {
	for _, c := range codes {
		if c.code == code {
			return fmt.Errorf("%w: %s", c.err, msg)
		}
	}
	return fmt.Errorf("%w: %s", ErrRemote, msg)
}

func failure(req Request, err error) Response {
	return Response{Type: TypeResult, ReqID: req.ReqID, Code: codeFor(err), Error: err.Error()}
}
