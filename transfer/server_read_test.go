package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanorpc/go-nanorpc"
)

type fakeReadHandler struct {
	reader         *BytesReader
	prepareStatus  nanorpc.Status
	prepareCalls   int
	finalizeStatus nanorpc.Status
	finalizeCalls  int
}

func newFakeReadHandler(data []byte) *fakeReadHandler {
	return &fakeReadHandler{reader: NewBytesReader(data), prepareStatus: nanorpc.StatusOK}
}

func (this *fakeReadHandler) PrepareRead() nanorpc.Status {
	this.prepareCalls++
	return this.prepareStatus
}

func (this *fakeReadHandler) FinalizeRead(status nanorpc.Status) {
	this.finalizeCalls++
	this.finalizeStatus = status
}

func (this *fakeReadHandler) Reader() Reader { return this.reader }

func newTestServerReadSession(handler *fakeReadHandler, maxChunkSizeBytes uint32) (*ServerReadSession, *[]*Chunk) {
	var sent []*Chunk
	session := NewServerReadSession(1, handler, maxChunkSizeBytes, func(c *Chunk) error {
		sent = append(sent, c)
		return nil
	}, nil)
	return session, &sent
}

func TestServerReadSessionInitialParametersEmitsData(t *testing.T) {
	handler := newFakeReadHandler([]byte("0123456789"))
	session, sent := newTestServerReadSession(handler, 100)

	session.HandleChunk(&Chunk{Offset: 0, PendingBytes: u32p(5)})

	assert.Equal(t, 1, handler.prepareCalls)
	require.Len(t, *sent, 1)
	assert.Equal(t, "01234", string((*sent)[0].Data))
}

func TestServerReadSessionCapsChunkSizeByTighterBound(t *testing.T) {
	handler := newFakeReadHandler([]byte("0123456789"))
	session, sent := newTestServerReadSession(handler, 3)

	session.HandleChunk(&Chunk{Offset: 0, PendingBytes: u32p(10)})

	require.Len(t, *sent, 4)
	assert.Equal(t, "012", string((*sent)[0].Data))
	assert.Equal(t, "345", string((*sent)[1].Data))
	assert.Equal(t, "678", string((*sent)[2].Data))
	assert.Equal(t, "9", string((*sent)[3].Data))
}

func TestServerReadSessionMarksFinalChunkWhenSourceExhausted(t *testing.T) {
	handler := newFakeReadHandler([]byte("short"))
	session, sent := newTestServerReadSession(handler, 100)

	session.HandleChunk(&Chunk{Offset: 0, PendingBytes: u32p(100)})

	require.Len(t, *sent, 1)
	final := (*sent)[0]
	require.NotNil(t, final.RemainingBytes)
	assert.Equal(t, uint64(0), *final.RemainingBytes)
}

func TestServerReadSessionTerminalFromClientFinalizes(t *testing.T) {
	handler := newFakeReadHandler([]byte("data"))
	session, _ := newTestServerReadSession(handler, 100)

	session.HandleChunk(&Chunk{Offset: 0, PendingBytes: u32p(100)})
	status := nanorpc.StatusOK
	session.HandleChunk(&Chunk{Status: &status})

	assert.Equal(t, 1, handler.finalizeCalls)
	assert.Equal(t, nanorpc.StatusOK, handler.finalizeStatus)
	assert.Equal(t, serverReadCompleted, session.state)
}

func TestServerReadSessionRepeatedTerminalIsIdempotent(t *testing.T) {
	handler := newFakeReadHandler([]byte("data"))
	session, sent := newTestServerReadSession(handler, 100)

	session.HandleChunk(&Chunk{Offset: 0, PendingBytes: u32p(100)})
	status := nanorpc.StatusOK
	session.HandleChunk(&Chunk{Status: &status})
	require.Equal(t, 1, handler.finalizeCalls)

	sentBeforeRepeat := len(*sent)
	session.HandleChunk(&Chunk{Status: &status})

	assert.Equal(t, 1, handler.finalizeCalls, "a repeated terminal chunk must not finalize again")
	assert.Equal(t, serverReadCompleted, session.state)
	assert.Len(t, *sent, sentBeforeRepeat, "a repeated terminal chunk must not trigger a reply")
}

func TestServerReadSessionZeroPendingBytesOnInitialFails(t *testing.T) {
	handler := newFakeReadHandler([]byte("data"))
	session, sent := newTestServerReadSession(handler, 100)

	session.HandleChunk(&Chunk{Offset: 0, PendingBytes: u32p(0)})

	require.Len(t, *sent, 1)
	require.NotNil(t, (*sent)[0].Status)
	assert.Equal(t, nanorpc.StatusInternal, *(*sent)[0].Status)
	assert.Equal(t, 1, handler.finalizeCalls)
}

func TestServerReadSessionPrepareFailureSendsDataLoss(t *testing.T) {
	handler := newFakeReadHandler([]byte("data"))
	handler.prepareStatus = nanorpc.StatusUnavailable
	session, sent := newTestServerReadSession(handler, 100)

	session.HandleChunk(&Chunk{Offset: 0, PendingBytes: u32p(100)})

	require.Len(t, *sent, 1)
	require.NotNil(t, (*sent)[0].Status)
	assert.Equal(t, nanorpc.StatusDataLoss, *(*sent)[0].Status)
}

func TestServerReadSessionSeeksOnOffsetMismatch(t *testing.T) {
	handler := newFakeReadHandler([]byte("abcdefgh"))
	session, sent := newTestServerReadSession(handler, 100)

	session.HandleChunk(&Chunk{Offset: 0, PendingBytes: u32p(3)})
	require.Len(t, *sent, 1)
	assert.Equal(t, "abc", string((*sent)[0].Data))

	session.HandleChunk(&Chunk{Offset: 5, PendingBytes: u32p(3)})
	require.Len(t, *sent, 2)
	assert.Equal(t, "fgh", string((*sent)[1].Data))
}

func TestServerReadSessionInitialParametersWhileActiveAbortsPrevious(t *testing.T) {
	handler := newFakeReadHandler([]byte("0123456789"))
	session, _ := newTestServerReadSession(handler, 3)

	session.HandleChunk(&Chunk{Offset: 0, PendingBytes: u32p(3)})
	require.Equal(t, serverReadData, session.state)

	session.HandleChunk(&Chunk{Offset: 0, PendingBytes: u32p(3)})
	assert.Equal(t, nanorpc.StatusAborted, handler.finalizeStatus)
}
