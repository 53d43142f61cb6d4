package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanorpc/go-nanorpc"
)

type fakeWriteHandler struct {
	writer         *BytesWriter
	writeStatus    nanorpc.Status
	prepareStatus  nanorpc.Status
	prepareCalls   int
	finalizeStatus nanorpc.Status
	finalizeResult nanorpc.Status
	finalizeCalls  int
}

func newFakeWriteHandler() *fakeWriteHandler {
	return &fakeWriteHandler{
		writer:         &BytesWriter{},
		prepareStatus:  nanorpc.StatusOK,
		writeStatus:    nanorpc.StatusOK,
		finalizeResult: nanorpc.StatusOK,
	}
}

func (this *fakeWriteHandler) PrepareWrite() nanorpc.Status {
	this.prepareCalls++
	return this.prepareStatus
}

func (this *fakeWriteHandler) FinalizeWrite(status nanorpc.Status) nanorpc.Status {
	this.finalizeCalls++
	this.finalizeStatus = status
	return this.finalizeResult
}

func (this *fakeWriteHandler) Writer() Writer { return &statusOverrideWriter{handler: this} }

// statusOverrideWriter lets a test force the next Write to fail without a
// separate handler implementation.
type statusOverrideWriter struct {
	handler *fakeWriteHandler
}

func (this *statusOverrideWriter) Write(data []byte) nanorpc.Status {
	if !this.handler.writeStatus.Ok() {
		return this.handler.writeStatus
	}
	return this.handler.writer.Write(data)
}

func newTestServerWriteSession(handler *fakeWriteHandler, window, maxChunkSizeBytes uint32) (*ServerWriteSession, *[]*Chunk) {
	var sent []*Chunk
	session := NewServerWriteSession(1, handler, window, maxChunkSizeBytes, func(c *Chunk) error {
		sent = append(sent, c)
		return nil
	}, nil)
	return session, &sent
}

func TestServerWriteSessionBareInitialSendsParameters(t *testing.T) {
	handler := newFakeWriteHandler()
	session, sent := newTestServerWriteSession(handler, 16, 8)

	session.HandleChunk(&Chunk{})

	assert.Equal(t, 1, handler.prepareCalls)
	require.Len(t, *sent, 1)
	params := (*sent)[0]
	require.NotNil(t, params.PendingBytes)
	assert.Equal(t, uint32(16), *params.PendingBytes)
	require.NotNil(t, params.MaxChunkSizeBytes)
	assert.Equal(t, uint32(8), *params.MaxChunkSizeBytes)
}

func TestServerWriteSessionPrepareFailureReportsStatus(t *testing.T) {
	handler := newFakeWriteHandler()
	handler.prepareStatus = nanorpc.StatusResourceExhausted
	session, sent := newTestServerWriteSession(handler, 16, 8)

	session.HandleChunk(&Chunk{})

	require.Len(t, *sent, 1)
	require.NotNil(t, (*sent)[0].Status)
	assert.Equal(t, nanorpc.StatusResourceExhausted, *(*sent)[0].Status)
}

func TestServerWriteSessionWritesDataIntoHandler(t *testing.T) {
	handler := newFakeWriteHandler()
	session, _ := newTestServerWriteSession(handler, 16, 8)
	session.HandleChunk(&Chunk{})

	session.HandleChunk(&Chunk{Offset: 0, Data: []byte("hi")})
	assert.Equal(t, "hi", string(handler.writer.Data))
}

func TestServerWriteSessionRenewsWindowWhenExhausted(t *testing.T) {
	handler := newFakeWriteHandler()
	session, sent := newTestServerWriteSession(handler, 4, 8)
	session.HandleChunk(&Chunk{})
	require.Len(t, *sent, 1)

	session.HandleChunk(&Chunk{Offset: 0, Data: []byte("abcd")})
	require.Len(t, *sent, 2)
	renewed := (*sent)[1]
	require.NotNil(t, renewed.PendingBytes)
	assert.Equal(t, uint32(4), *renewed.PendingBytes)
	assert.Equal(t, uint32(4), renewed.Offset)
}

func TestServerWriteSessionOutOfOrderOffsetResendsParameters(t *testing.T) {
	handler := newFakeWriteHandler()
	session, sent := newTestServerWriteSession(handler, 16, 8)
	session.HandleChunk(&Chunk{})
	require.Len(t, *sent, 1)

	session.HandleChunk(&Chunk{Offset: 99, Data: []byte("x")})
	require.Len(t, *sent, 2)
	resend := (*sent)[1]
	assert.Equal(t, uint32(0), resend.Offset)
	assert.Empty(t, handler.writer.Data, "data arriving at the wrong offset must not be written")
}

func TestServerWriteSessionHandlerWriteFailureFinalizesWithError(t *testing.T) {
	handler := newFakeWriteHandler()
	session, sent := newTestServerWriteSession(handler, 16, 8)
	session.HandleChunk(&Chunk{})

	handler.writeStatus = nanorpc.StatusDataLoss
	session.HandleChunk(&Chunk{Offset: 0, Data: []byte("x")})

	require.Len(t, *sent, 2)
	require.NotNil(t, (*sent)[1].Status)
	assert.Equal(t, nanorpc.StatusDataLoss, *(*sent)[1].Status)
	assert.Equal(t, 1, handler.finalizeCalls)
}

func TestServerWriteSessionClientTerminalOKFinalizesAndReplies(t *testing.T) {
	handler := newFakeWriteHandler()
	session, sent := newTestServerWriteSession(handler, 16, 8)
	session.HandleChunk(&Chunk{})
	session.HandleChunk(&Chunk{Offset: 0, Data: []byte("done"), RemainingBytes: u64p(0)})

	okStatus := nanorpc.StatusOK
	session.HandleChunk(&Chunk{Status: &okStatus})

	assert.Equal(t, 1, handler.finalizeCalls)
	assert.Equal(t, nanorpc.StatusOK, handler.finalizeStatus)
	require.Len(t, *sent, 3)
	reply := (*sent)[2]
	require.NotNil(t, reply.Status)
	assert.Equal(t, nanorpc.StatusOK, *reply.Status)
}

func TestServerWriteSessionHandlerFinalizeFailureReportsDataLoss(t *testing.T) {
	handler := newFakeWriteHandler()
	handler.finalizeResult = nanorpc.StatusDataLoss
	session, sent := newTestServerWriteSession(handler, 16, 8)
	session.HandleChunk(&Chunk{})

	okStatus := nanorpc.StatusOK
	session.HandleChunk(&Chunk{Status: &okStatus})

	require.Len(t, *sent, 2)
	reply := (*sent)[1]
	require.NotNil(t, reply.Status)
	assert.Equal(t, nanorpc.StatusDataLoss, *reply.Status)
}

func TestServerWriteSessionClientErrorTerminalPropagatesStatus(t *testing.T) {
	handler := newFakeWriteHandler()
	session, sent := newTestServerWriteSession(handler, 16, 8)
	session.HandleChunk(&Chunk{})

	cancelled := nanorpc.StatusCancelled
	session.HandleChunk(&Chunk{Status: &cancelled})

	assert.Equal(t, nanorpc.StatusCancelled, handler.finalizeStatus)
	require.Len(t, *sent, 2)
	require.NotNil(t, (*sent)[1].Status)
	assert.Equal(t, nanorpc.StatusCancelled, *(*sent)[1].Status)
}

func TestServerWriteSessionCompletedRepliesToFurtherChunks(t *testing.T) {
	handler := newFakeWriteHandler()
	session, sent := newTestServerWriteSession(handler, 16, 8)
	session.HandleChunk(&Chunk{})
	okStatus := nanorpc.StatusOK
	session.HandleChunk(&Chunk{Status: &okStatus})
	require.Len(t, *sent, 2)

	session.HandleChunk(&Chunk{Offset: 0, Data: []byte("late")})
	require.Len(t, *sent, 3)
	require.NotNil(t, (*sent)[2].Status)
	assert.Equal(t, nanorpc.StatusFailedPrecondition, *(*sent)[2].Status)
}
