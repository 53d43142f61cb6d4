package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/nanorpc/go-nanorpc"
	"github.com/nanorpc/go-nanorpc/transfer"
)

const demoTransferID = 7

// TransferCommand pushes a file's bytes to the server through a WRITE
// transfer, then reads the same bytes back through a READ transfer, and
// confirms the two copies match.
type TransferCommand struct {
	Path string `arg:"" optional:"" help:"File to transfer; a small built-in payload is used if omitted."`
}

func (this *TransferCommand) Run() error {
	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	payload, err := this.loadPayload()
	if err != nil {
		return err
	}

	store := newServerStore()
	manager := transfer.NewManager(4096, 1024, log.Named("transfer.server"))
	manager.RegisterWriteHandler(demoTransferID, store)
	manager.RegisterReadHandler(demoTransferID, store)

	pair := newConnectedPair(log)
	service, err := transfer.NewService(manager)
	if err != nil {
		return err
	}
	if err := pair.Server.RegisterService(service); err != nil {
		return err
	}

	clientManager := transfer.NewClientManager(pair.Client, pair.clientChannel,
		4096, 1024, nil, log.Named("transfer.client"), nil, time.Second, 3)

	if err := runWrite(clientManager, payload); err != nil {
		return err
	}

	received, err := runRead(clientManager, len(payload))
	if err != nil {
		return err
	}

	if !bytes.Equal(payload, received) {
		return fmt.Errorf("round trip mismatch: sent %d bytes, got back %d bytes", len(payload), len(received))
	}
	fmt.Printf("transferred %s round trip successfully\n", humanize.Bytes(uint64(len(payload))))
	return nil
}

func (this *TransferCommand) loadPayload() ([]byte, error) {
	if this.Path == "" {
		return []byte("the quick brown fox jumps over the lazy dog"), nil
	}
	return os.ReadFile(this.Path)
}

func runWrite(clientManager *transfer.ClientManager, payload []byte) error {
	done := make(chan nanorpc.Status, 1)
	reader := transfer.NewBytesReader(payload)
	if err := clientManager.StartWrite(demoTransferID, reader, func(status nanorpc.Status) { done <- status }); err != nil {
		return err
	}
	return waitForTransfer(done, "write")
}

func runRead(clientManager *transfer.ClientManager, maxBytes int) ([]byte, error) {
	done := make(chan nanorpc.Status, 1)
	writer := &transfer.BytesWriter{}
	if err := clientManager.StartRead(demoTransferID, writer, func(status nanorpc.Status) { done <- status }); err != nil {
		return nil, err
	}
	if err := waitForTransfer(done, "read"); err != nil {
		return nil, err
	}
	return writer.Data, nil
}

func waitForTransfer(done chan nanorpc.Status, label string) error {
	select {
	case status := <-done:
		if status != nanorpc.StatusOK {
			return fmt.Errorf("%s transfer finished with status %s", label, status)
		}
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("%s transfer timed out", label)
	}
}

// serverStore is the server side of both transfer directions for this
// demo: a WRITE fills it, and a subsequent READ hands the same bytes
// back out.
type serverStore struct {
	data []byte
}

func newServerStore() *serverStore {
	return &serverStore{}
}

func (this *serverStore) PrepareWrite() nanorpc.Status {
	return nanorpc.StatusOK
}

func (this *serverStore) FinalizeWrite(status nanorpc.Status) nanorpc.Status {
	return nanorpc.StatusOK
}

func (this *serverStore) Writer() transfer.Writer {
	return (*serverStoreWriter)(this)
}

func (this *serverStore) PrepareRead() nanorpc.Status {
	return nanorpc.StatusOK
}

func (this *serverStore) FinalizeRead(status nanorpc.Status) {
}

func (this *serverStore) Reader() transfer.Reader {
	return transfer.NewBytesReader(this.data)
}

type serverStoreWriter serverStore

func (this *serverStoreWriter) Write(data []byte) nanorpc.Status {
	this.data = append(this.data, data...)
	return nanorpc.StatusOK
}
