package nanorpc

// invocationStyle distinguishes synchronous from asynchronous unary
// handlers. It is meaningless for the three streaming call
// kinds, which are always "asynchronous" in the sense that the handler
// returns immediately and the writer/reader handle outlives it.
type invocationStyle int

const (
	invocationSync invocationStyle = iota
	invocationAsync
)

// CallContext is what an Invoker receives: everything it needs to decode
// the incoming packet, run the user's handler, and send whatever packets
// the call pattern requires. MethodDescriptor models handler style as a
// tagged variant rather than a virtual call per style; CallContext is the
// uniform argument every invoker shares.
type CallContext struct {
	server  *Server
	channel *Channel
	packet  *Packet
	call    *Call
}

// Invoker is the free function a MethodDescriptor dispatches to. It is
// selected once at registration time based on the method's kind and style,
// keeping MethodDescriptor itself a plain, copyable struct.
type Invoker func(ctx *CallContext) error

// MethodDescriptor is the uniform dispatch record for one method,
// regardless of whether it is unary, streaming, synchronous, or
// asynchronous.
type MethodDescriptor struct {
	Name   string
	ID     uint32
	Kind   CallKind
	style  invocationStyle
	invoke Invoker
}

// UnaryHandler handles a synchronous unary call: it runs to completion and
// returns the response payload and status in one step.
type UnaryHandler func(requestPayload []byte) (responsePayload []byte, status Status)

// AsyncUnaryHandler handles an asynchronous unary call: it receives a
// UnaryResponder and may call its Finish method at any later point, from
// any goroutine, to send the RESPONSE.
type AsyncUnaryHandler func(requestPayload []byte, responder *UnaryResponder)

// ServerStreamingHandler handles a server-streaming call: it receives a
// ServerWriter it may Write to any number of times before calling Finish.
type ServerStreamingHandler func(requestPayload []byte, writer *ServerWriter)

// ClientStreamingHandler handles a client-streaming call: it receives a
// ServerReader on which it should set OnNext/OnClientStreamEnd before
// returning, then later call Finish once the stream has ended.
type ClientStreamingHandler func(reader *ServerReader)

// BidiStreamingHandler handles a bidirectional-streaming call: the union of
// ServerReader and ServerWriter behavior.
type BidiStreamingHandler func(readerWriter *ServerReaderWriter)

// NewUnaryMethod registers a synchronous unary method.
func NewUnaryMethod(name string, handler UnaryHandler) MethodDescriptor {
	return MethodDescriptor{
		Name:  name,
		Kind:  CallKindUnary,
		style: invocationSync,
		invoke: func(ctx *CallContext) error {
			response, status := handler(ctx.packet.Payload)
			return ctx.respondUnary(response, status)
		},
	}
}

// NewAsyncUnaryMethod registers an asynchronous unary method.
func NewAsyncUnaryMethod(name string, handler AsyncUnaryHandler) MethodDescriptor {
	return MethodDescriptor{
		Name:  name,
		Kind:  CallKindUnary,
		style: invocationAsync,
		invoke: func(ctx *CallContext) error {
			responder, err := ctx.newUnaryResponder()
			if err != nil {
				return err
			}
			handler(ctx.packet.Payload, responder)
			return nil
		},
	}
}

// NewServerStreamingMethod registers a server-streaming method.
func NewServerStreamingMethod(name string, handler ServerStreamingHandler) MethodDescriptor {
	return MethodDescriptor{
		Name: name,
		Kind: CallKindServerStreaming,
		invoke: func(ctx *CallContext) error {
			writer, err := ctx.newServerWriter()
			if err != nil {
				return err
			}
			handler(ctx.packet.Payload, writer)
			return nil
		},
	}
}

// NewClientStreamingMethod registers a client-streaming method.
func NewClientStreamingMethod(name string, handler ClientStreamingHandler) MethodDescriptor {
	return MethodDescriptor{
		Name: name,
		Kind: CallKindClientStreaming,
		invoke: func(ctx *CallContext) error {
			reader, err := ctx.newServerReader()
			if err != nil {
				return err
			}
			handler(reader)
			return nil
		},
	}
}

// NewBidiStreamingMethod registers a bidirectional-streaming method.
func NewBidiStreamingMethod(name string, handler BidiStreamingHandler) MethodDescriptor {
	return MethodDescriptor{
		Name: name,
		Kind: CallKindBidiStreaming,
		invoke: func(ctx *CallContext) error {
			rw, err := ctx.newServerReaderWriter()
			if err != nil {
				return err
			}
			handler(rw)
			return nil
		},
	}
}
