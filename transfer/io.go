package transfer

import (
	"io"

	"github.com/nanorpc/go-nanorpc"
)

// Reader is the source side of a transfer session. Seek returns
// UNIMPLEMENTED on a reader that cannot seek.
type Reader interface {
	Read(out []byte) (n int, status nanorpc.Status)
	Seek(offset int64) nanorpc.Status
}

// Writer is the destination side of a transfer session.
type Writer interface {
	Write(data []byte) nanorpc.Status
}

// ReadHandler is registered on a Server keyed by transfer_id to serve a
// READ transfer (the server is the sender).
type ReadHandler interface {
	PrepareRead() nanorpc.Status
	FinalizeRead(status nanorpc.Status)
	Reader() Reader
}

// WriteHandler is registered on a Server keyed by transfer_id to serve a
// WRITE transfer (the server is the receiver).
type WriteHandler interface {
	PrepareWrite() nanorpc.Status
	FinalizeWrite(status nanorpc.Status) nanorpc.Status
	Writer() Writer
}

// BytesReader is a seekable Reader over an in-memory byte slice, used by
// tests and the demo CLI to stand in for a file.
type BytesReader struct {
	data   []byte
	offset int64
}

// NewBytesReader wraps data for reading.
func NewBytesReader(data []byte) *BytesReader {
	return &BytesReader{data: data}
}

func (this *BytesReader) Read(out []byte) (int, nanorpc.Status) {
	n := copy(out, this.data[this.offset:])
	this.offset += int64(n)
	return n, nanorpc.StatusOK
}

func (this *BytesReader) Seek(offset int64) nanorpc.Status {
	if offset < 0 || offset > int64(len(this.data)) {
		return nanorpc.StatusOutOfRange
	}
	this.offset = offset
	return nanorpc.StatusOK
}

// Remaining reports how many unread bytes are left.
func (this *BytesReader) Remaining() int64 {
	return int64(len(this.data)) - this.offset
}

// BytesWriter is a growable in-memory Writer: data is appended rather than
// streamed elsewhere, so tests can inspect the fully assembled result
// afterward.
type BytesWriter struct {
	Data []byte
}

func (this *BytesWriter) Write(data []byte) nanorpc.Status {
	this.Data = append(this.Data, data...)
	return nanorpc.StatusOK
}

// FileReader adapts an io.ReadSeeker (typically an *os.File) to Reader.
type FileReader struct {
	src io.ReadSeeker
}

// NewFileReader wraps src for reading.
func NewFileReader(src io.ReadSeeker) *FileReader {
	return &FileReader{src: src}
}

func (this *FileReader) Read(out []byte) (int, nanorpc.Status) {
	n, err := this.src.Read(out)
	if err != nil && err != io.EOF {
		return n, nanorpc.StatusDataLoss
	}
	return n, nanorpc.StatusOK
}

func (this *FileReader) Seek(offset int64) nanorpc.Status {
	if _, err := this.src.Seek(offset, io.SeekStart); err != nil {
		return nanorpc.StatusDataLoss
	}
	return nanorpc.StatusOK
}

// FileWriter adapts an io.Writer (typically an *os.File) to Writer.
type FileWriter struct {
	dst io.Writer
}

// NewFileWriter wraps dst for writing.
func NewFileWriter(dst io.Writer) *FileWriter {
	return &FileWriter{dst: dst}
}

func (this *FileWriter) Write(data []byte) nanorpc.Status {
	if _, err := this.dst.Write(data); err != nil {
		return nanorpc.StatusDataLoss
	}
	return nanorpc.StatusOK
}
