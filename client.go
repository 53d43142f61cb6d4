package nanorpc

import (
	"sync"

	"go.uber.org/zap"

	"github.com/nanorpc/go-nanorpc/internal/callset"
)

// Client issues outbound calls and tracks them by (channel, service,
// method) so incoming packets can be dispatched to the right callbacks.
// Like Server, all bookkeeping happens under the call table's own lock;
// user callbacks run with no lock held.
type Client struct {
	mu       sync.Mutex
	channels map[uint32]*Channel
	calls    *callset.Table
	log      *zap.Logger
}

// NewClient creates an empty Client.
func NewClient(log *zap.Logger) *Client {
	this := new(Client)
	this.Init(log)
	return this
}

// Init resets this Client to empty.
func (this *Client) Init(log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	this.channels = make(map[uint32]*Channel)
	this.calls = callset.New()
	this.log = log.Named("nanorpc.client")
}

// BindChannel associates channelID with output for this Client's outbound
// calls.
func (this *Client) BindChannel(channelID uint32, output ChannelOutput) *Channel {
	this.mu.Lock()
	defer this.mu.Unlock()
	channel := newChannel(channelID, output)
	this.channels[channelID] = channel
	return channel
}

// CallHandle identifies one outstanding call for cancellation purposes.
type CallHandle struct {
	call *Call
}

// Cancel cancels the call this handle refers to.
func (this *CallHandle) Cancel() error {
	if this == nil || this.call == nil {
		return nil
	}
	return this.call.Cancel()
}

// beginCall atomically replaces whatever call currently occupies
// (channel, service, method), deactivating it silently with no error
// callback, and registers a new Call in
// its place.
func (this *Client) beginCall(channel *Channel, serviceID, methodID uint32, kind CallKind) *Call {
	key := callset.Key{ChannelID: channel.ID, ServiceID: serviceID, MethodID: methodID}
	if previous, had := this.calls.Clear(key); had {
		previous.(*Call).deactivateSilently()
	}

	call := newCall(channel.ID, serviceID, methodID, kind,
		func(status Status) error { return this.sendClientError(channel, serviceID, methodID, status) },
		nil)
	call.unlink = func() { this.calls.Delete(key, call) }
	this.calls.Swap(key, call)
	return call
}

func (this *Client) sendRequest(channel *Channel, serviceID, methodID uint32, payload []byte) error {
	packet := &Packet{Type: PacketTypeRequest, ChannelID: channel.ID, ServiceID: serviceID, MethodID: methodID, Payload: payload}
	return channel.send(packet)
}

func (this *Client) sendClientStream(channel *Channel, serviceID, methodID uint32, payload []byte) error {
	packet := &Packet{Type: PacketTypeClientStream, ChannelID: channel.ID, ServiceID: serviceID, MethodID: methodID, Payload: payload}
	return channel.send(packet)
}

func (this *Client) sendClientStreamEnd(channel *Channel, serviceID, methodID uint32) error {
	packet := &Packet{Type: PacketTypeClientStreamEnd, ChannelID: channel.ID, ServiceID: serviceID, MethodID: methodID}
	return channel.send(packet)
}

func (this *Client) sendClientError(channel *Channel, serviceID, methodID uint32, status Status) error {
	packet := &Packet{Type: PacketTypeClientError, ChannelID: channel.ID, ServiceID: serviceID, MethodID: methodID, Status: status}
	return channel.send(packet)
}

// InvokeUnary issues a unary call. onCompleted receives the RESPONSE's
// payload and status; onError receives a transport-level SERVER_ERROR
// status, if one arrives instead.
func (this *Client) InvokeUnary(channel *Channel, serviceID, methodID uint32, request []byte,
	onCompleted func(payload []byte, status Status), onError func(status Status)) (*CallHandle, error) {

	call := this.beginCall(channel, serviceID, methodID, CallKindUnary)
	call.Callbacks.OnCompleted = onCompleted
	call.Callbacks.OnError = onError

	if err := this.sendRequest(channel, serviceID, methodID, request); err != nil {
		call.terminate()
		return nil, err
	}
	return &CallHandle{call: call}, nil
}

// InvokeServerStreaming issues a server-streaming call and returns the
// ClientReader the caller uses to observe it.
func (this *Client) InvokeServerStreaming(channel *Channel, serviceID, methodID uint32, request []byte) (*ClientReader, error) {
	call := this.beginCall(channel, serviceID, methodID, CallKindServerStreaming)
	reader := &ClientReader{call: call, client: this, channel: channel, serviceID: serviceID, methodID: methodID}

	if err := this.sendRequest(channel, serviceID, methodID, request); err != nil {
		call.terminate()
		return nil, err
	}
	return reader, nil
}

// InvokeClientStreaming issues a client-streaming call and returns the
// ClientWriter the caller uses to push data and close the stream.
func (this *Client) InvokeClientStreaming(channel *Channel, serviceID, methodID uint32) (*ClientWriter, error) {
	call := this.beginCall(channel, serviceID, methodID, CallKindClientStreaming)
	writer := &ClientWriter{call: call, client: this, channel: channel, serviceID: serviceID, methodID: methodID}

	if err := this.sendRequest(channel, serviceID, methodID, nil); err != nil {
		call.terminate()
		return nil, err
	}
	return writer, nil
}

// InvokeBidiStreaming issues a bidirectional-streaming call and returns
// the combined ClientReaderWriter handle.
func (this *Client) InvokeBidiStreaming(channel *Channel, serviceID, methodID uint32) (*ClientReaderWriter, error) {
	call := this.beginCall(channel, serviceID, methodID, CallKindBidiStreaming)
	rw := &ClientReaderWriter{
		ClientReader: ClientReader{call: call, client: this, channel: channel, serviceID: serviceID, methodID: methodID},
		ClientWriter: ClientWriter{call: call, client: this, channel: channel, serviceID: serviceID, methodID: methodID},
	}

	if err := this.sendRequest(channel, serviceID, methodID, nil); err != nil {
		call.terminate()
		return nil, err
	}
	return rw, nil
}

// ProcessPacket dispatches an incoming packet to its call's callbacks.
// A duplicate RESPONSE on an already-completed call is silently ignored.
func (this *Client) ProcessPacket(data []byte) Status {
	packet, err := DecodePacket(data)
	if err != nil {
		this.log.Debug("failed to decode incoming packet", zap.Error(err))
		return StatusDataLoss
	}

	value, ok := this.calls.Load(callKeyOf(packet))
	if !ok {
		return StatusNotFound
	}
	call := value.(*Call)
	if !call.IsActive() {
		return StatusOK
	}

	switch packet.Type {
	case PacketTypeResponse:
		onCompleted := call.Callbacks.OnCompleted
		call.terminate()
		if onCompleted != nil {
			onCompleted(packet.Payload, packet.Status)
		}
		return StatusOK

	case PacketTypeServerStream:
		if onNext := call.Callbacks.OnNext; onNext != nil {
			onNext(packet.Payload)
		}
		return StatusOK

	case PacketTypeServerError:
		onError := call.Callbacks.OnError
		call.terminate()
		if onError != nil {
			onError(packet.Status)
		}
		return StatusOK

	default:
		return StatusInvalidArgument
	}
}

// ActiveCallCount returns the number of active client calls.
func (this *Client) ActiveCallCount() int {
	return this.calls.Len()
}
