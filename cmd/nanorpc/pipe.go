package main

import (
	"net"

	"go.uber.org/zap"

	"github.com/nanorpc/go-nanorpc"
)

const (
	demoChannelID = 1
	demoMTU       = 16 * 1024
)

// connectedPair builds a Server and a Client joined by a net.Pipe, each
// end fed by its own ReadPackets loop, so the two halves behave exactly
// as they would over a real socket.
type connectedPair struct {
	Server *nanorpc.Server
	Client *nanorpc.Client

	serverChannel *nanorpc.Channel
	clientChannel *nanorpc.Channel
}

func newConnectedPair(log *zap.Logger) *connectedPair {
	serverConn, clientConn := net.Pipe()

	server := nanorpc.NewServer(log.Named("server"))
	client := nanorpc.NewClient(log.Named("client"))

	serverOutput := nanorpc.NewNetChannelOutput(serverConn, demoMTU)
	clientOutput := nanorpc.NewNetChannelOutput(clientConn, demoMTU)

	pair := &connectedPair{
		Server:        server,
		Client:        client,
		serverChannel: server.BindChannel(demoChannelID, serverOutput),
		clientChannel: client.BindChannel(demoChannelID, clientOutput),
	}

	go func() {
		_ = nanorpc.ReadPackets(serverConn, func(data []byte) error {
			server.ProcessPacket(data, serverOutput)
			return nil
		})
	}()
	go func() {
		_ = nanorpc.ReadPackets(clientConn, func(data []byte) error {
			client.ProcessPacket(data)
			return nil
		})
	}()

	return pair
}
