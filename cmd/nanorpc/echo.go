package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nanorpc/go-nanorpc"
	"github.com/nanorpc/go-nanorpc/codec"
)

const echoServiceName = "nanorpc.demo.Echo"

// EchoCommand registers a unary echo method, then calls it once and
// prints the round trip.
type EchoCommand struct {
	Message string `arg:"" default:"hello, nanorpc" help:"Message to echo."`
}

func (this *EchoCommand) Run() error {
	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	service, err := nanorpc.NewService(echoServiceName,
		nanorpc.NewUnaryMethod("Say", handleEcho),
	)
	if err != nil {
		return err
	}

	pair := newConnectedPair(log)
	if err := pair.Server.RegisterService(service); err != nil {
		return err
	}

	serviceID := nanorpc.HashName(echoServiceName)
	methodID := nanorpc.HashName("Say")

	var request codec.StringValue
	request.Value = this.Message
	requestPayload, err := request.Marshal()
	if err != nil {
		return err
	}

	done := make(chan struct{})
	_, err = pair.Client.InvokeUnary(pair.clientChannel, serviceID, methodID, requestPayload,
		func(payload []byte, status nanorpc.Status) {
			defer close(done)
			if status != nanorpc.StatusOK {
				fmt.Printf("echo failed: %s\n", status)
				return
			}
			var response codec.StringValue
			if err := response.Unmarshal(payload); err != nil {
				fmt.Printf("echo response undecodable: %v\n", err)
				return
			}
			fmt.Printf("echo: %q\n", response.Value)
		},
		func(status nanorpc.Status) {
			defer close(done)
			fmt.Printf("echo error: %s\n", status)
		})
	if err != nil {
		return err
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("echo timed out waiting for a response")
	}
	return nil
}

func handleEcho(requestPayload []byte) ([]byte, nanorpc.Status) {
	var request codec.StringValue
	if err := request.Unmarshal(requestPayload); err != nil {
		return nil, nanorpc.StatusInvalidArgument
	}
	response := codec.StringValue{Value: request.Value}
	payload, err := response.Marshal()
	if err != nil {
		return nil, nanorpc.StatusInternal
	}
	return payload, nanorpc.StatusOK
}
