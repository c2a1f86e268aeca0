// Package errs defines the error taxonomy shared by every eventbus package.
package errs

import "fmt"

// BusNotSetError is returned by operations that require a bound bus
// (Publish, Queue, Stub) while the bus is still unbound.
type BusNotSetError struct{}

func (e *BusNotSetError) Error() string { return "eventbus: no bus is set" }

// ErrBusNotSet is the shared sentinel instance; compare with errors.Is.
var ErrBusNotSet = &BusNotSetError{}

// AlreadyRunningError is returned by Init when a bus is already bound
// and running.
type AlreadyRunningError struct{}

func (e *AlreadyRunningError) Error() string { return "eventbus: bus is already running" }

var ErrAlreadyRunning = &AlreadyRunningError{}

// InvalidListenerError is returned when a handler cannot be registered
// because its channel cannot be derived (no registered type, and no
// explicit channel was given).
type InvalidListenerError struct {
	Reason string
}

func (e *InvalidListenerError) Error() string {
	return fmt.Sprintf("eventbus: invalid listener: %s", e.Reason)
}

func NewInvalidListenerError(reason string) *InvalidListenerError {
	return &InvalidListenerError{Reason: reason}
}

// ChannelConflictError is returned when Expose is called twice for the
// same channel. A channel with pattern subscribers is reported with
// PatternChannelForRPCError instead.
type ChannelConflictError struct {
	Channel string
}

func (e *ChannelConflictError) Error() string {
	return fmt.Sprintf("eventbus: channel %q is already in use", e.Channel)
}

func NewChannelConflictError(channel string) *ChannelConflictError {
	return &ChannelConflictError{Channel: channel}
}

// PatternChannelForRPCError is returned when Expose targets a channel
// that has pattern subscribers, or when NewStub targets a pattern
// channel — patterns make the RPC recipient count ambiguous.
type PatternChannelForRPCError struct {
	Channel string
}

func (e *PatternChannelForRPCError) Error() string {
	return fmt.Sprintf("eventbus: channel %q cannot be used for RPC because it accepts pattern subscribers", e.Channel)
}

func NewPatternChannelForRPCError(channel string) *PatternChannelForRPCError {
	return &PatternChannelForRPCError{Channel: channel}
}

// NoSuchRemoteError is returned by Stub.Call when the request reached
// zero recipients.
type NoSuchRemoteError struct {
	Fn string
}

func (e *NoSuchRemoteError) Error() string {
	return fmt.Sprintf("eventbus: no remote registered for %q", e.Fn)
}

func NewNoSuchRemoteError(fn string) *NoSuchRemoteError {
	return &NoSuchRemoteError{Fn: fn}
}

// RemoteInvocationError wraps a remote failure (a panic or returned
// error on the skeleton side, or a timeout) so the caller can inspect
// it without importing the remote's concrete error type.
type RemoteInvocationError struct {
	Fn       string
	TypeName string
	Args     []any
}

func (e *RemoteInvocationError) Error() string {
	return fmt.Sprintf("eventbus: remote invocation of %q failed: %s%v", e.Fn, e.TypeName, e.Args)
}

func NewRemoteInvocationError(fn, typeName string, args []any) *RemoteInvocationError {
	return &RemoteInvocationError{Fn: fn, TypeName: typeName, Args: args}
}

// IsTimeout reports whether this error represents a stub giving up
// waiting for a response, rather than a genuine remote failure.
func (e *RemoteInvocationError) IsTimeout() bool {
	return e.TypeName == "TimeoutError"
}

// EmptyError is returned by Queue.Get when no item became available
// within the requested timeout (or immediately, for a non-blocking
// probe). It is the analogue of queue.Empty.
type EmptyError struct{}

func (e *EmptyError) Error() string { return "eventbus: queue is empty" }

var ErrEmpty = &EmptyError{}

// InvalidTopicNameError is returned when a channel name fails the
// validation rules shared by every transport (EncodeName/DecodeName
// only ever need to round-trip valid names).
type InvalidTopicNameError struct {
	Name string
}

func (e *InvalidTopicNameError) Error() string {
	return fmt.Sprintf("eventbus: invalid topic name %q", e.Name)
}

func NewInvalidTopicNameError(name string) *InvalidTopicNameError {
	return &InvalidTopicNameError{Name: name}
}

// RecipientCountUnavailableError is returned when an adapter cannot
// report how many subscribers received a publish, which makes it
// unsafe to use for RPC (see Adapter.Publish).
type RecipientCountUnavailableError struct {
	Channel string
}

func (e *RecipientCountUnavailableError) Error() string {
	return fmt.Sprintf("eventbus: adapter cannot report recipient count for %q, refusing RPC", e.Channel)
}

func NewRecipientCountUnavailableError(channel string) *RecipientCountUnavailableError {
	return &RecipientCountUnavailableError{Channel: channel}
}

// Codec errors.

// UnknownGenericError is returned when decoding encounters a __type
// tag that was never registered, or a container kind the codec does
// not understand.
type UnknownGenericError struct {
	TypeName string
}

func (e *UnknownGenericError) Error() string {
	return fmt.Sprintf("eventbus/codec: unknown type %q", e.TypeName)
}

func NewUnknownGenericError(typeName string) *UnknownGenericError {
	return &UnknownGenericError{TypeName: typeName}
}

// UnsafeTypeDecodeError is returned when a document asks the codec to
// decode into a reflect.Type value itself (Go's analogue of "decode
// into `type`") — refused because it would let an untrusted payload
// name arbitrary registry entries for reconstruction at a layer that
// did not ask for one.
type UnsafeTypeDecodeError struct {
	TypeName string
}

func (e *UnsafeTypeDecodeError) Error() string {
	return fmt.Sprintf("eventbus/codec: refusing to decode %q as a type value", e.TypeName)
}

func NewUnsafeTypeDecodeError(typeName string) *UnsafeTypeDecodeError {
	return &UnsafeTypeDecodeError{TypeName: typeName}
}
