package nanorpc

import "sync/atomic"

// CallKind distinguishes the four call patterns a MethodDescriptor can
// describe.
type CallKind int

const (
	CallKindUnary CallKind = iota
	CallKindServerStreaming
	CallKindClientStreaming
	CallKindBidiStreaming
)

func (this CallKind) String() string {
	switch this {
	case CallKindUnary:
		return "unary"
	case CallKindServerStreaming:
		return "server-streaming"
	case CallKindClientStreaming:
		return "client-streaming"
	case CallKindBidiStreaming:
		return "bidi-streaming"
	default:
		return "unknown"
	}
}

// Callbacks holds the user-settable hooks a Call dispatches to. Which ones
// are meaningful depends on CallKind and on which side (client or server)
// owns the Call: on_client_stream_end is server-side only, on_completed is
// client-side only.
type Callbacks struct {
	OnNext  func(payload []byte)
	OnError func(status Status)
	// OnCompleted is the client-side terminal callback, fired once for a
	// RESPONSE. It carries the RESPONSE's payload as well as its status:
	// unary calls never call OnNext (their single RESPONSE is both the
	// only data and the terminal signal), so the payload has to travel
	// somewhere, and bundling it here keeps one callback per kind instead
	// of inventing a separate unary-only callback shape.
	OnCompleted       func(payload []byte, status Status)
	OnClientStreamEnd func()
}

// Call is the state shared by both sides of any call. It
// is never constructed directly by users; Server and Client build it via
// newCall and hand out one of the role-specific handles in server_call.go
// or client_call.go that wrap it.
type Call struct {
	ChannelID uint32
	ServiceID uint32
	MethodID  uint32
	Kind      CallKind

	active atomic.Bool

	Callbacks Callbacks

	// sendTerminalError emits a CLIENT_ERROR or SERVER_ERROR packet for
	// this call with the given status. Supplied by whichever of Server or
	// Client created the call, since only they know which packet type and
	// which Channel to use.
	sendTerminalError func(status Status) error

	// unlink removes this Call from its owning active-call table. Safe to
	// call more than once.
	unlink func()
}

func newCall(channelID, serviceID, methodID uint32, kind CallKind,
	sendTerminalError func(Status) error, unlink func()) *Call {

	this := new(Call)
	this.ChannelID = channelID
	this.ServiceID = serviceID
	this.MethodID = methodID
	this.Kind = kind
	this.sendTerminalError = sendTerminalError
	this.unlink = unlink
	this.active.Store(true)
	return this
}

// IsActive reports whether this call can still send or receive packets.
func (this *Call) IsActive() bool {
	return this.active.Load()
}

// deactivateSilently marks the call inactive and unlinks it without
// invoking any callback or sending any packet. Used both when a REQUEST
// arrives for a tuple that already has an active call (the previous one
// is silently aborted and replaced) and for the analogous replace-on-
// reinvoke behavior on the client side.
func (this *Call) deactivateSilently() {
	if this.active.Swap(false) {
		if this.unlink != nil {
			this.unlink()
		}
	}
}

// terminate marks the call inactive and unlinks it. Used once a terminal
// packet has already been sent or received by the caller; terminate itself
// sends nothing.
func (this *Call) terminate() {
	if this.active.Swap(false) {
		if this.unlink != nil {
			this.unlink()
		}
	}
}

// Cancel marks the call inactive, unlinks it, and sends a CLIENT_ERROR or
// SERVER_ERROR with CANCELLED. Calling Cancel on an already
// inactive call is a no-op that returns nil.
func (this *Call) Cancel() error {
	if !this.active.Swap(false) {
		return nil
	}
	if this.unlink != nil {
		this.unlink()
	}
	if this.sendTerminalError != nil {
		return this.sendTerminalError(StatusCancelled)
	}
	return nil
}

// abortSilently is the receive-side counterpart to deactivateSilently: it
// is used when a CLIENT_ERROR/SERVER_ERROR arrives for a call whose peer
// has already given up, in which case no reply packet is sent either.
func (this *Call) abortSilently() {
	this.terminate()
}
