package nanorpc

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
)

// ChannelOutput is the sink a Channel writes encoded packets to.
// AcquirePayloadBuffer/SendAndReleaseBuffer/ReleaseBuffer is the only
// permitted acquire/release sequence: a double-acquire is a contract
// violation and panics rather than returning an error, since it should
// never happen in correct code.
type ChannelOutput interface {
	// AcquirePayloadBuffer returns a byte slice the caller may fill with an
	// encoded Packet. The slice is only valid until the matching
	// SendAndReleaseBuffer or ReleaseBuffer call.
	AcquirePayloadBuffer() []byte

	// SendAndReleaseBuffer transmits the first packetSize bytes of the
	// acquired buffer and releases it.
	SendAndReleaseBuffer(packetSize int) error

	// ReleaseBuffer releases the acquired buffer without sending anything.
	ReleaseBuffer()

	// MaximumTransmissionUnit reports the largest packet this output can
	// carry in one send.
	MaximumTransmissionUnit() int
}

// Channel is an addressable transport endpoint: a channel_id
// plus the ChannelOutput that owns writing on its behalf. One ChannelOutput
// backs exactly one Channel.
type Channel struct {
	ID     uint32
	Output ChannelOutput
}

func newChannel(id uint32, output ChannelOutput) *Channel {
	return &Channel{ID: id, Output: output}
}

// send encodes packet into the channel's output buffer and sends
// it, enforcing the acquire/release contract even when encoding fails
// partway through.
func (this *Channel) send(packet *Packet) error {
	if this.Output == nil {
		panic(fmt.Errorf("nanorpc: channel %d has a nil ChannelOutput", this.ID))
	}
	buffer := this.Output.AcquirePayloadBuffer()
	encoded := packet.Encode(buffer[:0])
	if len(encoded) > len(buffer) {
		this.Output.ReleaseBuffer()
		return newStatusError(StatusInternal,
			"encoded packet (%d bytes) does not fit in channel %d's output buffer (%d bytes)",
			len(encoded), this.ID, len(buffer))
	}
	return this.Output.SendAndReleaseBuffer(len(encoded))
}

// bufferedChannelOutput is an in-memory ChannelOutput used by tests and by
// same-process demonstrations (cmd/nanorpc). Every sent packet is appended,
// still encoded, to Sent; a paired bufferedChannelOutput on "the other end"
// of a test fixture typically feeds Sent straight into the peer's
// Server.ProcessPacket/Client.ProcessPacket.
type bufferedChannelOutput struct {
	mu     sync.Mutex
	mtu    int
	buf    []byte
	held   bool
	Sent   [][]byte
	OnSend func(packet []byte)
}

// NewBufferedChannelOutput creates an in-memory ChannelOutput with the
// given maximum transmission unit.
func NewBufferedChannelOutput(mtu int) *bufferedChannelOutput {
	this := new(bufferedChannelOutput)
	this.mtu = mtu
	return this
}

func (this *bufferedChannelOutput) AcquirePayloadBuffer() []byte {
	this.mu.Lock()
	if this.held {
		this.mu.Unlock()
		panic(fmt.Errorf("nanorpc: double-acquire on bufferedChannelOutput"))
	}
	this.held = true
	this.mu.Unlock()
	if cap(this.buf) < this.mtu {
		this.buf = make([]byte, this.mtu)
	}
	return this.buf[:this.mtu]
}

func (this *bufferedChannelOutput) SendAndReleaseBuffer(packetSize int) error {
	this.mu.Lock()
	if !this.held {
		this.mu.Unlock()
		panic(fmt.Errorf("nanorpc: SendAndReleaseBuffer without a matching acquire"))
	}
	this.held = false
	sent := append([]byte(nil), this.buf[:packetSize]...)
	this.Sent = append(this.Sent, sent)
	callback := this.OnSend
	this.mu.Unlock()
	if callback != nil {
		callback(sent)
	}
	return nil
}

func (this *bufferedChannelOutput) ReleaseBuffer() {
	this.mu.Lock()
	this.held = false
	this.mu.Unlock()
}

func (this *bufferedChannelOutput) MaximumTransmissionUnit() int {
	return this.mtu
}

// Last returns the most recently sent encoded packet, or nil if none has
// been sent yet. It exists purely for tests.
func (this *bufferedChannelOutput) Last() []byte {
	this.mu.Lock()
	defer this.mu.Unlock()
	if len(this.Sent) == 0 {
		return nil
	}
	return this.Sent[len(this.Sent)-1]
}

// netChannelOutput wraps a net.Conn with a 4-byte big-endian length prefix
// per message. The Packet wire format assumes a framed transport
// underneath it; this is this module's concrete choice of framing.
type netChannelOutput struct {
	mu   sync.Mutex
	conn net.Conn
	mtu  int
	buf  []byte
	held bool
}

// NewNetChannelOutput wraps conn as a ChannelOutput. mtu bounds the size of
// a single encoded packet, not counting the length prefix.
func NewNetChannelOutput(conn net.Conn, mtu int) *netChannelOutput {
	this := new(netChannelOutput)
	this.conn = conn
	this.mtu = mtu
	return this
}

func (this *netChannelOutput) AcquirePayloadBuffer() []byte {
	this.mu.Lock()
	if this.held {
		this.mu.Unlock()
		panic(fmt.Errorf("nanorpc: double-acquire on netChannelOutput"))
	}
	this.held = true
	this.mu.Unlock()
	if cap(this.buf) < this.mtu+4 {
		this.buf = make([]byte, this.mtu+4)
	}
	return this.buf[4 : 4+this.mtu]
}

func (this *netChannelOutput) SendAndReleaseBuffer(packetSize int) error {
	this.mu.Lock()
	if !this.held {
		this.mu.Unlock()
		panic(fmt.Errorf("nanorpc: SendAndReleaseBuffer without a matching acquire"))
	}
	this.held = false
	frame := this.buf[:4+packetSize]
	binary.BigEndian.PutUint32(frame[:4], uint32(packetSize))
	conn := this.conn
	this.mu.Unlock()
	_, err := conn.Write(frame)
	return err
}

func (this *netChannelOutput) ReleaseBuffer() {
	this.mu.Lock()
	this.held = false
	this.mu.Unlock()
}

func (this *netChannelOutput) MaximumTransmissionUnit() int {
	return this.mtu
}

// ReadPackets reads length-prefixed packets from r until it returns an
// error (typically io.EOF), invoking onPacket with each encoded packet's
// bytes. It is the receive-side counterpart to netChannelOutput's framing.
func ReadPackets(r io.Reader, onPacket func([]byte) error) error {
	var lengthBuf [4]byte
	for {
		if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
			return err
		}
		length := binary.BigEndian.Uint32(lengthBuf[:])
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return err
		}
		if err := onPacket(payload); err != nil {
			return err
		}
	}
}
