// cmd/nanorpc is a manual-verification CLI: it wires a Server and a
// Client together over a net.Pipe connected pair in one process, then
// runs either an echo unary call or a file transfer across it, printing
// what it observes. It exists to be read and run by hand.
package main

import (
	"github.com/alecthomas/kong"
)

var cli struct {
	Echo     EchoCommand     `cmd:"" help:"Send one unary echo request over a connected pair."`
	Transfer TransferCommand `cmd:"" help:"Write a file through the transfer protocol, then read it back."`
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Description("demonstrates the RPC core and transfer protocol over a single connected pair"),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
