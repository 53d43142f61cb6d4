package nanorpc

// This file implements the move-only server-side streaming handles. Each
// handle wraps a *Call plus whatever it needs to compose and send packets
// for its role. "Move-only" has no language support in Go, so it is
// modeled with an explicit operation (Move) that transfers the underlying
// *Call pointer to the destination handle and clears the source handle's
// pointer, so that any later Write or Finish on the source observes the
// moved-from state and returns FAILED_PRECONDITION without sending a
// packet (Cancel on the source is a no-op that returns nil).

// UnaryResponder is the move-only handle an AsyncUnaryHandler uses to send
// its RESPONSE whenever it is ready.
type UnaryResponder struct {
	call    *Call
	server  *Server
	channel *Channel
	request *Packet
}

// Finish sends the RESPONSE for this call. Calling Finish more than once,
// or after Move has emptied this handle, returns FAILED_PRECONDITION
// without sending anything.
func (this *UnaryResponder) Finish(payload []byte, status Status) error {
	if this.call == nil || !this.call.IsActive() {
		return &StatusError{Status: StatusFailedPrecondition}
	}
	this.call.terminate()
	return this.server.sendResponse(this.channel, this.request, payload, status)
}

// Move transfers ownership of this responder to dst, emptying this
// responder. dst must be a freshly zero-valued UnaryResponder.
func (this *UnaryResponder) Move(dst *UnaryResponder) {
	*dst = *this
	*this = UnaryResponder{}
}

// ServerWriter is the move-only handle a ServerStreamingHandler or
// BidiStreamingHandler uses to emit SERVER_STREAM packets.
type ServerWriter struct {
	call    *Call
	server  *Server
	channel *Channel
	request *Packet
}

// Write sends one SERVER_STREAM packet carrying payload. Write on a
// finished or moved-from writer returns FAILED_PRECONDITION without
// sending anything.
func (this *ServerWriter) Write(payload []byte) error {
	if this.call == nil || !this.call.IsActive() {
		return &StatusError{Status: StatusFailedPrecondition}
	}
	return this.server.sendServerStream(this.channel, this.request, payload)
}

// Finish sends the RESPONSE that terminates this call's stream.
func (this *ServerWriter) Finish(status Status) error {
	if this.call == nil || !this.call.IsActive() {
		return &StatusError{Status: StatusFailedPrecondition}
	}
	this.call.terminate()
	return this.server.sendResponse(this.channel, this.request, nil, status)
}

// Cancel aborts this call, sending SERVER_ERROR/CANCELLED.
func (this *ServerWriter) Cancel() error {
	if this.call == nil {
		return nil
	}
	return this.call.Cancel()
}

// Move transfers ownership of this writer to dst, emptying this writer.
func (this *ServerWriter) Move(dst *ServerWriter) {
	*dst = *this
	*this = ServerWriter{}
}

// ServerReader is the move-only handle a ClientStreamingHandler or
// BidiStreamingHandler uses to receive CLIENT_STREAM packets.
type ServerReader struct {
	call    *Call
	server  *Server
	channel *Channel
	request *Packet
}

// SetOnNext registers the callback invoked with each CLIENT_STREAM
// payload. It should be called before the handler that created this
// reader returns.
func (this *ServerReader) SetOnNext(onNext func(payload []byte)) {
	if this.call == nil {
		return
	}
	this.call.Callbacks.OnNext = onNext
}

// InitialPayload returns the payload of the REQUEST that started this
// call, for handlers whose first meaningful message arrives on the
// REQUEST itself rather than on a later CLIENT_STREAM packet.
func (this *ServerReader) InitialPayload() []byte {
	if this.request == nil {
		return nil
	}
	return this.request.Payload
}

// SetOnClientStreamEnd registers the callback invoked when the client
// signals the end of its stream via CLIENT_STREAM_END.
func (this *ServerReader) SetOnClientStreamEnd(onEnd func()) {
	if this.call == nil {
		return
	}
	this.call.Callbacks.OnClientStreamEnd = onEnd
}

// Finish sends the RESPONSE that terminates this call.
func (this *ServerReader) Finish(payload []byte, status Status) error {
	if this.call == nil || !this.call.IsActive() {
		return &StatusError{Status: StatusFailedPrecondition}
	}
	this.call.terminate()
	return this.server.sendResponse(this.channel, this.request, payload, status)
}

// Cancel aborts this call, sending SERVER_ERROR/CANCELLED.
func (this *ServerReader) Cancel() error {
	if this.call == nil {
		return nil
	}
	return this.call.Cancel()
}

// Move transfers ownership of this reader to dst, emptying this reader.
func (this *ServerReader) Move(dst *ServerReader) {
	*dst = *this
	*this = ServerReader{}
}

// ServerReaderWriter is the union handle a BidiStreamingHandler uses.
type ServerReaderWriter struct {
	ServerReader
	ServerWriter
}

// Move transfers ownership of this reader-writer to dst, emptying this
// one.
func (this *ServerReaderWriter) Move(dst *ServerReaderWriter) {
	this.ServerReader.Move(&dst.ServerReader)
	this.ServerWriter.Move(&dst.ServerWriter)
}

// Finish and Cancel are promoted ambiguously from the two embedded handles
// (both define a method by that name), so ServerReaderWriter resolves them
// explicitly rather than leaving them out of its method set.

// Finish sends the RESPONSE that terminates this call.
func (this *ServerReaderWriter) Finish(payload []byte, status Status) error {
	return this.ServerReader.Finish(payload, status)
}

// Cancel aborts this call, sending SERVER_ERROR/CANCELLED.
func (this *ServerReaderWriter) Cancel() error {
	return this.ServerReader.Cancel()
}
