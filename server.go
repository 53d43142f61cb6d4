package nanorpc

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/nanorpc/go-nanorpc/internal/callset"
)

// Server demultiplexes incoming packets to services and methods, and owns
// the set of active server-side calls. All bookkeeping mutation happens
// under mu; user callbacks and handlers are always invoked with mu
// released.
type Server struct {
	mu                   sync.Mutex
	services             map[uint32]*Service
	channels             map[uint32]*Channel
	calls                *callset.Table
	allowDynamicChannels bool
	log                  *zap.Logger
}

// NewServer creates an empty Server. Dynamic channel binding is enabled
// by default; call SetAllowDynamicChannels(false) to require channels to
// be bound explicitly via BindChannel.
func NewServer(log *zap.Logger) *Server {
	this := new(Server)
	this.Init(log)
	return this
}

// Init resets this Server to empty. It exists so Server can be embedded by
// value in larger structs that want two-phase construction, matching the
// New()+Init() shape used throughout this module.
func (this *Server) Init(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	this.services = make(map[uint32]*Service)
	this.channels = make(map[uint32]*Channel)
	this.calls = callset.New()
	this.allowDynamicChannels = true
	this.log = log.Named("nanorpc.server")
}

// SetAllowDynamicChannels controls whether ProcessPacket may bind a
// previously unknown channel_id to the ChannelOutput it was called with.
func (this *Server) SetAllowDynamicChannels(allow bool) {
	this.mu.Lock()
	defer this.mu.Unlock()
	this.allowDynamicChannels = allow
}

// RegisterService adds service to this Server, refusing a second service
// whose id collides with one already registered.
func (this *Server) RegisterService(service *Service) error {
	this.mu.Lock()
	defer this.mu.Unlock()
	if existing, exists := this.services[service.ID]; exists && existing != service {
		return newStatusError(StatusAlreadyExists,
			"service %q collides with already-registered service %q on id %#x",
			service.Name, existing.Name, service.ID)
	}
	this.services[service.ID] = service
	return nil
}

// BindChannel explicitly associates channelID with output, for transports
// that know their channel ids up front rather than relying on dynamic
// binding.
func (this *Server) BindChannel(channelID uint32, output ChannelOutput) *Channel {
	this.mu.Lock()
	defer this.mu.Unlock()
	channel := newChannel(channelID, output)
	this.channels[channelID] = channel
	return channel
}

// ProcessPacket decodes data, routes it to the matching service and
// method, and dispatches it according to its packet type.
// It returns the status of the outcome for diagnostic purposes; the peer
// has already been notified of anything but success via an emitted *_ERROR
// packet.
func (this *Server) ProcessPacket(data []byte, output ChannelOutput) Status {
	packet, err := DecodePacket(data)
	if err != nil {
		this.log.Debug("failed to decode incoming packet", zap.Error(err))
		this.emitDecodeError(output)
		return StatusDataLoss
	}

	channel := this.resolveChannel(packet.ChannelID, output)

	this.mu.Lock()
	service, serviceFound := this.services[packet.ServiceID]
	this.mu.Unlock()
	if !serviceFound {
		this.sendServerError(channel, packet, StatusNotFound)
		return StatusNotFound
	}

	method, methodFound := service.methodByID(packet.MethodID)
	if !methodFound {
		this.sendServerError(channel, packet, StatusNotFound)
		return StatusNotFound
	}

	return this.dispatch(channel, method, packet)
}

// emitDecodeError sends a best-effort CLIENT_ERROR/DATA_LOSS for a packet
// that could not even be decoded enough to learn its channel id. Since the
// channel id is unknown, this sends directly on the caller-supplied output
// with channel/service/method left zeroed; a peer that cannot make sense
// of the reply simply drops it, which is the best any implementation can
// do here.
func (this *Server) emitDecodeError(output ChannelOutput) {
	if output == nil {
		return
	}
	channel := &Channel{Output: output}
	errPacket := &Packet{Type: PacketTypeClientError, Status: StatusDataLoss}
	_ = channel.send(errPacket)
}

func (this *Server) resolveChannel(channelID uint32, output ChannelOutput) *Channel {
	this.mu.Lock()
	defer this.mu.Unlock()
	if channel, exists := this.channels[channelID]; exists {
		return channel
	}
	channel := newChannel(channelID, output)
	if this.allowDynamicChannels {
		this.channels[channelID] = channel
	}
	return channel
}

func callKeyOf(p *Packet) callset.Key {
	return callset.Key{ChannelID: p.ChannelID, ServiceID: p.ServiceID, MethodID: p.MethodID}
}

// dispatch implements the per-packet-type routing table.
func (this *Server) dispatch(channel *Channel, method *MethodDescriptor, packet *Packet) Status {
	key := callKeyOf(packet)

	switch packet.Type {
	case PacketTypeRequest:
		if previous, had := this.calls.Clear(key); had {
			previous.(*Call).deactivateSilently()
		}
		ctx := &CallContext{server: this, channel: channel, packet: packet}
		if err := method.invoke(ctx); err != nil {
			this.log.Warn("method invoker returned an error", zap.String("method", method.Name), zap.Error(err))
		}
		return StatusOK

	case PacketTypeClientStream:
		value, ok := this.calls.Load(key)
		if !ok {
			this.sendServerError(channel, packet, StatusFailedPrecondition)
			return StatusFailedPrecondition
		}
		call := value.(*Call)
		if !call.IsActive() {
			this.sendServerError(channel, packet, StatusFailedPrecondition)
			return StatusFailedPrecondition
		}
		onNext := call.Callbacks.OnNext
		if onNext != nil {
			onNext(packet.Payload)
		}
		return StatusOK

	case PacketTypeClientStreamEnd:
		value, ok := this.calls.Load(key)
		if ok {
			call := value.(*Call)
			if call.IsActive() {
				if onEnd := call.Callbacks.OnClientStreamEnd; onEnd != nil {
					onEnd()
				}
			}
		}
		return StatusOK

	case PacketTypeClientError:
		if value, ok := this.calls.Load(key); ok {
			value.(*Call).abortSilently()
		}
		return StatusOK

	default:
		this.sendServerError(channel, packet, StatusInvalidArgument)
		return StatusInvalidArgument
	}
}

// sendResponse sends a RESPONSE for req, or, if the response does not fit
// in the channel's output buffer, a SERVER_ERROR/INTERNAL instead. The handler has already run by the time this is called, so
// its side effects are observed either way.
func (this *Server) sendResponse(channel *Channel, req *Packet, payload []byte, status Status) error {
	resp := &Packet{
		Type:      PacketTypeResponse,
		ChannelID: req.ChannelID,
		ServiceID: req.ServiceID,
		MethodID:  req.MethodID,
		Payload:   payload,
		Status:    status,
		CallID:    req.CallID,
		HasCallID: req.HasCallID,
	}
	if err := channel.send(resp); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Status == StatusInternal {
			return this.sendServerError(channel, req, StatusInternal)
		}
		return err
	}
	return nil
}

// sendServerStream sends one SERVER_STREAM packet carrying payload.
func (this *Server) sendServerStream(channel *Channel, req *Packet, payload []byte) error {
	packet := &Packet{
		Type:      PacketTypeServerStream,
		ChannelID: req.ChannelID,
		ServiceID: req.ServiceID,
		MethodID:  req.MethodID,
		Payload:   payload,
		CallID:    req.CallID,
		HasCallID: req.HasCallID,
	}
	return channel.send(packet)
}

// sendServerError sends a SERVER_ERROR with the given status for req.
func (this *Server) sendServerError(channel *Channel, req *Packet, status Status) error {
	packet := &Packet{
		Type:      PacketTypeServerError,
		ChannelID: req.ChannelID,
		ServiceID: req.ServiceID,
		MethodID:  req.MethodID,
		Status:    status,
		CallID:    req.CallID,
		HasCallID: req.HasCallID,
	}
	return channel.send(packet)
}

// respondUnary sends the RESPONSE for a synchronous unary call.
func (ctx *CallContext) respondUnary(payload []byte, status Status) error {
	return ctx.server.sendResponse(ctx.channel, ctx.packet, payload, status)
}

// newUnaryResponder registers an asynchronous unary call and returns the
// move-only handle a handler uses to Finish it later.
func (ctx *CallContext) newUnaryResponder() (*UnaryResponder, error) {
	server := ctx.server
	key := callKeyOf(ctx.packet)
	request := ctx.packet
	channel := ctx.channel

	call := newCall(request.ChannelID, request.ServiceID, request.MethodID, CallKindUnary,
		func(status Status) error { return server.sendServerError(channel, request, status) },
		nil)
	call.unlink = func() { server.calls.Delete(key, call) }
	server.calls.Swap(key, call)

	return &UnaryResponder{call: call, server: server, channel: channel, request: request}, nil
}

// newServerWriter registers a server-streaming call and returns its
// move-only writer handle.
func (ctx *CallContext) newServerWriter() (*ServerWriter, error) {
	server := ctx.server
	key := callKeyOf(ctx.packet)
	request := ctx.packet
	channel := ctx.channel

	call := newCall(request.ChannelID, request.ServiceID, request.MethodID, CallKindServerStreaming,
		func(status Status) error { return server.sendServerError(channel, request, status) },
		nil)
	call.unlink = func() { server.calls.Delete(key, call) }
	server.calls.Swap(key, call)

	return &ServerWriter{call: call, server: server, channel: channel, request: request}, nil
}

// newServerReader registers a client-streaming call and returns its
// move-only reader handle.
func (ctx *CallContext) newServerReader() (*ServerReader, error) {
	server := ctx.server
	key := callKeyOf(ctx.packet)
	request := ctx.packet
	channel := ctx.channel

	call := newCall(request.ChannelID, request.ServiceID, request.MethodID, CallKindClientStreaming,
		func(status Status) error { return server.sendServerError(channel, request, status) },
		nil)
	call.unlink = func() { server.calls.Delete(key, call) }
	server.calls.Swap(key, call)

	return &ServerReader{call: call, server: server, channel: channel, request: request}, nil
}

// newServerReaderWriter registers a bidirectional-streaming call and
// returns its move-only handle.
func (ctx *CallContext) newServerReaderWriter() (*ServerReaderWriter, error) {
	server := ctx.server
	key := callKeyOf(ctx.packet)
	request := ctx.packet
	channel := ctx.channel

	call := newCall(request.ChannelID, request.ServiceID, request.MethodID, CallKindBidiStreaming,
		func(status Status) error { return server.sendServerError(channel, request, status) },
		nil)
	call.unlink = func() { server.calls.Delete(key, call) }
	server.calls.Swap(key, call)

	return &ServerReaderWriter{
		ServerReader: ServerReader{call: call, server: server, channel: channel, request: request},
		ServerWriter: ServerWriter{call: call, server: server, channel: channel, request: request},
	}, nil
}

// ActiveCallCount returns the number of active server calls, across all
// channels and services. Exposed for tests asserting the "≤ 1 per tuple"
// invariant holds in aggregate.
func (this *Server) ActiveCallCount() int {
	return this.calls.Len()
}
