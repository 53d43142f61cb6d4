package nanorpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeAndProcess(t *testing.T, server *Server, output ChannelOutput, packet *Packet) Status {
	t.Helper()
	data := packet.Encode(nil)
	return server.ProcessPacket(data, output)
}

func TestServerUnaryRequestSendsResponse(t *testing.T) {
	server := NewServer(nil)
	svc, err := NewService("nanorpc.test.Echo", NewUnaryMethod("Say", func(req []byte) ([]byte, Status) {
		return append([]byte("echo:"), req...), StatusOK
	}))
	require.NoError(t, err)
	require.NoError(t, server.RegisterService(svc))

	output := NewBufferedChannelOutput(256)
	status := encodeAndProcess(t, server, output, &Packet{
		Type: PacketTypeRequest, ChannelID: 1, ServiceID: svc.ID, MethodID: HashName("Say"), Payload: []byte("hi"),
	})
	require.Equal(t, StatusOK, status)

	require.Len(t, output.Sent, 1)
	resp, err := DecodePacket(output.Last())
	require.NoError(t, err)
	assert.Equal(t, PacketTypeResponse, resp.Type)
	assert.Equal(t, "echo:hi", string(resp.Payload))
}

func TestServerUnknownServiceReturnsNotFound(t *testing.T) {
	server := NewServer(nil)
	output := NewBufferedChannelOutput(256)

	status := encodeAndProcess(t, server, output, &Packet{Type: PacketTypeRequest, ChannelID: 1, ServiceID: 999})
	assert.Equal(t, StatusNotFound, status)

	resp, err := DecodePacket(output.Last())
	require.NoError(t, err)
	assert.Equal(t, PacketTypeServerError, resp.Type)
	assert.Equal(t, StatusNotFound, resp.Status)
}

func TestServerUnknownMethodReturnsNotFound(t *testing.T) {
	server := NewServer(nil)
	svc, err := NewService("nanorpc.test.Echo", NewUnaryMethod("Say", noopUnary))
	require.NoError(t, err)
	require.NoError(t, server.RegisterService(svc))

	output := NewBufferedChannelOutput(256)
	status := encodeAndProcess(t, server, output, &Packet{Type: PacketTypeRequest, ChannelID: 1, ServiceID: svc.ID, MethodID: 0xDEAD})
	assert.Equal(t, StatusNotFound, status)
}

func TestServerMalformedPacketReturnsDataLoss(t *testing.T) {
	server := NewServer(nil)
	output := NewBufferedChannelOutput(256)
	status := server.ProcessPacket([]byte{0xFF, 0xFF, 0xFF}, output)
	assert.Equal(t, StatusDataLoss, status)
}

func TestServerRegisterServiceCollisionFails(t *testing.T) {
	server := NewServer(nil)
	svcA, err := NewService("nanorpc.test.A", NewUnaryMethod("M", noopUnary))
	require.NoError(t, err)
	require.NoError(t, server.RegisterService(svcA))

	svcB := &Service{Name: "nanorpc.test.B", ID: svcA.ID}
	err = server.RegisterService(svcB)
	require.Error(t, err)
}

func TestServerAsyncUnaryRespondsLaterViaResponder(t *testing.T) {
	server := NewServer(nil)
	var captured *UnaryResponder
	svc, err := NewService("nanorpc.test.Async", NewAsyncUnaryMethod("Do", func(req []byte, responder *UnaryResponder) {
		captured = new(UnaryResponder)
		responder.Move(captured)
	}))
	require.NoError(t, err)
	require.NoError(t, server.RegisterService(svc))

	output := NewBufferedChannelOutput(256)
	status := encodeAndProcess(t, server, output, &Packet{Type: PacketTypeRequest, ChannelID: 1, ServiceID: svc.ID, MethodID: HashName("Do")})
	require.Equal(t, StatusOK, status)
	assert.Empty(t, output.Sent, "async handler must not respond before Finish is called")

	require.NoError(t, captured.Finish([]byte("done"), StatusOK))
	require.Len(t, output.Sent, 1)
	resp, err := DecodePacket(output.Last())
	require.NoError(t, err)
	assert.Equal(t, "done", string(resp.Payload))
}

func TestServerServerStreamingWriterEmitsMultipleStreamPackets(t *testing.T) {
	server := NewServer(nil)
	var captured *ServerWriter
	svc, err := NewService("nanorpc.test.Stream", NewServerStreamingMethod("Tail", func(req []byte, writer *ServerWriter) {
		captured = new(ServerWriter)
		writer.Move(captured)
	}))
	require.NoError(t, err)
	require.NoError(t, server.RegisterService(svc))

	output := NewBufferedChannelOutput(256)
	status := encodeAndProcess(t, server, output, &Packet{Type: PacketTypeRequest, ChannelID: 1, ServiceID: svc.ID, MethodID: HashName("Tail")})
	require.Equal(t, StatusOK, status)

	require.NoError(t, captured.Write([]byte("a")))
	require.NoError(t, captured.Write([]byte("b")))
	require.NoError(t, captured.Finish(StatusOK))

	require.Len(t, output.Sent, 3)
	p0, _ := DecodePacket(output.Sent[0])
	p1, _ := DecodePacket(output.Sent[1])
	p2, _ := DecodePacket(output.Sent[2])
	assert.Equal(t, PacketTypeServerStream, p0.Type)
	assert.Equal(t, PacketTypeServerStream, p1.Type)
	assert.Equal(t, PacketTypeResponse, p2.Type)
}

func TestServerRequestReplacesExistingActiveCall(t *testing.T) {
	server := NewServer(nil)
	var first *ServerWriter
	svc, err := NewService("nanorpc.test.Stream", NewServerStreamingMethod("Tail", func(req []byte, writer *ServerWriter) {
		if first == nil {
			first = new(ServerWriter)
			writer.Move(first)
		}
	}))
	require.NoError(t, err)
	require.NoError(t, server.RegisterService(svc))

	output := NewBufferedChannelOutput(256)
	req := &Packet{Type: PacketTypeRequest, ChannelID: 1, ServiceID: svc.ID, MethodID: HashName("Tail")}
	require.Equal(t, StatusOK, encodeAndProcess(t, server, output, req))
	require.Equal(t, StatusOK, encodeAndProcess(t, server, output, req))

	// The first call was silently replaced: writing to it now fails without
	// sending anything, since the table no longer points at it.
	err = first.Write([]byte("late"))
	require.Error(t, err)
	assert.Equal(t, 1, server.ActiveCallCount())
}

func TestServerClientStreamRoutesToActiveCall(t *testing.T) {
	server := NewServer(nil)
	received := make(chan []byte, 1)
	svc, err := NewService("nanorpc.test.Upload", NewClientStreamingMethod("Put", func(reader *ServerReader) {
		reader.SetOnNext(func(payload []byte) { received <- payload })
	}))
	require.NoError(t, err)
	require.NoError(t, server.RegisterService(svc))

	output := NewBufferedChannelOutput(256)
	req := &Packet{Type: PacketTypeRequest, ChannelID: 1, ServiceID: svc.ID, MethodID: HashName("Put")}
	require.Equal(t, StatusOK, encodeAndProcess(t, server, output, req))

	status := encodeAndProcess(t, server, output, &Packet{
		Type: PacketTypeClientStream, ChannelID: 1, ServiceID: svc.ID, MethodID: HashName("Put"), Payload: []byte("chunk"),
	})
	require.Equal(t, StatusOK, status)
	assert.Equal(t, "chunk", string(<-received))
}

func TestServerClientStreamWithoutActiveCallReturnsFailedPrecondition(t *testing.T) {
	server := NewServer(nil)
	svc, err := NewService("nanorpc.test.Upload", NewClientStreamingMethod("Put", func(*ServerReader) {}))
	require.NoError(t, err)
	require.NoError(t, server.RegisterService(svc))

	output := NewBufferedChannelOutput(256)
	status := encodeAndProcess(t, server, output, &Packet{
		Type: PacketTypeClientStream, ChannelID: 1, ServiceID: svc.ID, MethodID: HashName("Put"), Payload: []byte("x"),
	})
	assert.Equal(t, StatusFailedPrecondition, status)
}

func TestServerClientErrorAbortsActiveCallSilently(t *testing.T) {
	server := NewServer(nil)
	svc, err := NewService("nanorpc.test.Stream", NewServerStreamingMethod("Tail", func([]byte, *ServerWriter) {}))
	require.NoError(t, err)
	require.NoError(t, server.RegisterService(svc))

	output := NewBufferedChannelOutput(256)
	req := &Packet{Type: PacketTypeRequest, ChannelID: 1, ServiceID: svc.ID, MethodID: HashName("Tail")}
	require.Equal(t, StatusOK, encodeAndProcess(t, server, output, req))
	require.Equal(t, 1, server.ActiveCallCount())

	status := encodeAndProcess(t, server, output, &Packet{
		Type: PacketTypeClientError, ChannelID: 1, ServiceID: svc.ID, MethodID: HashName("Tail"),
	})
	require.Equal(t, StatusOK, status)
	assert.Equal(t, 0, server.ActiveCallCount())
	assert.Len(t, output.Sent, 0, "aborting must not itself trigger a reply packet")
}

func TestServerDynamicChannelBindingCanBeDisabled(t *testing.T) {
	server := NewServer(nil)
	server.SetAllowDynamicChannels(false)
	svc, err := NewService("nanorpc.test.Echo", NewUnaryMethod("Say", noopUnary))
	require.NoError(t, err)
	require.NoError(t, server.RegisterService(svc))

	output := NewBufferedChannelOutput(256)
	status := encodeAndProcess(t, server, output, &Packet{Type: PacketTypeRequest, ChannelID: 7, ServiceID: svc.ID, MethodID: HashName("Say")})
	assert.Equal(t, StatusOK, status)

	bound := server.BindChannel(8, output)
	assert.Equal(t, uint32(8), bound.ID)
}
