package nanorpc

// This file implements the move-only client-side streaming handles,
// mirroring the server-side handles in server_call.go. Write and
// CloseClientStream on a finished or moved-from handle return
// FAILED_PRECONDITION without sending anything; Cancel on such a handle
// is a no-op that returns nil.

// ClientReader is the handle InvokeServerStreaming and InvokeBidiStreaming
// hand back for observing the server's half of a stream.
type ClientReader struct {
	call      *Call
	client    *Client
	channel   *Channel
	serviceID uint32
	methodID  uint32
}

// SetOnNext registers the callback invoked with each SERVER_STREAM
// payload.
func (this *ClientReader) SetOnNext(onNext func(payload []byte)) {
	if this.call == nil {
		return
	}
	this.call.Callbacks.OnNext = onNext
}

// SetOnCompleted registers the callback invoked once with the RESPONSE
// that terminates this call.
func (this *ClientReader) SetOnCompleted(onCompleted func(payload []byte, status Status)) {
	if this.call == nil {
		return
	}
	this.call.Callbacks.OnCompleted = onCompleted
}

// SetOnError registers the callback invoked if a SERVER_ERROR arrives
// instead of a RESPONSE.
func (this *ClientReader) SetOnError(onError func(status Status)) {
	if this.call == nil {
		return
	}
	this.call.Callbacks.OnError = onError
}

// Cancel aborts this call, sending CLIENT_ERROR/CANCELLED.
func (this *ClientReader) Cancel() error {
	if this.call == nil {
		return nil
	}
	return this.call.Cancel()
}

// Move transfers ownership of this reader to dst, emptying this reader.
func (this *ClientReader) Move(dst *ClientReader) {
	*dst = *this
	*this = ClientReader{}
}

// ClientWriter is the handle InvokeClientStreaming and InvokeBidiStreaming
// hand back for pushing the client's half of a stream.
type ClientWriter struct {
	call      *Call
	client    *Client
	channel   *Channel
	serviceID uint32
	methodID  uint32
}

// Write sends one CLIENT_STREAM packet carrying payload.
func (this *ClientWriter) Write(payload []byte) error {
	if this.call == nil || !this.call.IsActive() {
		return &StatusError{Status: StatusFailedPrecondition}
	}
	return this.client.sendClientStream(this.channel, this.serviceID, this.methodID, payload)
}

// CloseClientStream sends CLIENT_STREAM_END, signaling that no further
// Write calls will follow. The call itself remains active until a
// RESPONSE or SERVER_ERROR arrives.
func (this *ClientWriter) CloseClientStream() error {
	if this.call == nil || !this.call.IsActive() {
		return &StatusError{Status: StatusFailedPrecondition}
	}
	return this.client.sendClientStreamEnd(this.channel, this.serviceID, this.methodID)
}

// SetOnCompleted registers the callback invoked once with the RESPONSE
// that terminates this call.
func (this *ClientWriter) SetOnCompleted(onCompleted func(payload []byte, status Status)) {
	if this.call == nil {
		return
	}
	this.call.Callbacks.OnCompleted = onCompleted
}

// SetOnError registers the callback invoked if a SERVER_ERROR arrives
// instead of a RESPONSE.
func (this *ClientWriter) SetOnError(onError func(status Status)) {
	if this.call == nil {
		return
	}
	this.call.Callbacks.OnError = onError
}

// Cancel aborts this call, sending CLIENT_ERROR/CANCELLED.
func (this *ClientWriter) Cancel() error {
	if this.call == nil {
		return nil
	}
	return this.call.Cancel()
}

// Move transfers ownership of this writer to dst, emptying this writer.
func (this *ClientWriter) Move(dst *ClientWriter) {
	*dst = *this
	*this = ClientWriter{}
}

// ClientReaderWriter is the union handle InvokeBidiStreaming hands back.
type ClientReaderWriter struct {
	ClientReader
	ClientWriter
}

// Move transfers ownership of this reader-writer to dst, emptying this
// one.
func (this *ClientReaderWriter) Move(dst *ClientReaderWriter) {
	this.ClientReader.Move(&dst.ClientReader)
	this.ClientWriter.Move(&dst.ClientWriter)
}

// Cancel is promoted ambiguously from the two embedded handles, so
// ClientReaderWriter resolves it explicitly.
func (this *ClientReaderWriter) Cancel() error {
	return this.ClientReader.Cancel()
}
