package stream

import (
	"bufio"
	"io"
	"net"
	"os"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/valyala/bytebufferpool"

	"github.com/yourusername/littleweb/pkg/littleweb/lwerr"
	"github.com/yourusername/littleweb/pkg/littleweb/socket"
)

// Input is a blocking byte-stream abstraction over a connection. It
// supports exact-count reads, line reads terminated by CRLF, and a
// transparent chunked-decode mode (spec.md §4.1).
type Input struct {
	br                    *bufio.Reader
	conn                  net.Conn
	chunked               bool
	chunkRemaining        uint64
	chunkEOF              bool
	reportedContentLength int64 // -1 when unknown

	limited        bool
	limitRemaining int64
}

// NewInput wraps conn in a buffered Input stream. reportedContentLength
// is the advisory length carried from Content-Length, or -1 if unknown.
func NewInput(conn net.Conn, reportedContentLength int64) *Input {
	return &Input{
		br:                    bufio.NewReaderSize(conn, 4096),
		conn:                  conn,
		reportedContentLength: reportedContentLength,
	}
}

// ReportedContentLength returns the advisory length passed at construction.
func (in *Input) ReportedContentLength() int64 { return in.reportedContentLength }

// EnableChunked switches the stream into chunked-decode mode: Read
// transparently strips chunk framing and returns io.EOF once the
// terminating zero-size chunk has been consumed.
func (in *Input) EnableChunked() {
	in.chunked = true
	in.chunkRemaining = 0
	in.chunkEOF = false
	in.limited = false
}

// EnableContentLengthLimit switches the stream into bounded mode: Read
// returns io.EOF once n bytes have been returned, so a Content-Length
// framed body never blocks waiting for the next request's bytes on a
// keep-alive connection (spec.md §4.2 "Body", rule 2).
func (in *Input) EnableContentLengthLimit(n int64) {
	in.chunked = false
	in.limited = true
	in.limitRemaining = n
}

// IsConnected reports whether the underlying connection is still usable.
func (in *Input) IsConnected() bool {
	if in.conn == nil {
		return false
	}
	one := make([]byte, 0)
	_, err := in.conn.Read(one)
	return err == nil
}

// ReadByte reads a single byte.
func (in *Input) ReadByte() (byte, error) {
	b, err := in.br.ReadByte()
	if err != nil {
		return 0, lwerr.StreamError("read byte", err)
	}
	return b, nil
}

// ReadExact reads exactly n bytes or fails with lwerr.ErrEndOfStream.
func (in *Input) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(in.br, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, lwerr.StreamError("read exact", lwerr.ErrEndOfStream)
		}
		return nil, lwerr.StreamError("read exact", err)
	}
	return buf, nil
}

// ReadLine accumulates bytes until a CRLF suffix and returns the line
// without the terminator. Fails with lwerr.ErrMalformedLine on invalid
// UTF-8, matching spec.md §4.1.
func (in *Input) ReadLine() (string, error) {
	line, err := in.br.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return "", lwerr.StreamError("read line", lwerr.ErrEndOfStream)
		}
		return "", lwerr.StreamError("read line", err)
	}
	line = trimCRLF(line)
	if !utf8.ValidString(line) {
		return "", lwerr.StreamError("read line", lwerr.ErrMalformedLine)
	}
	return line, nil
}

func trimCRLF(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		s = s[:n-1]
	}
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}

// Read implements io.Reader. In chunked mode this decodes chunk
// framing transparently and returns io.EOF (mapped from
// lwerr.ErrEndOfStream) after the terminating zero-size chunk.
func (in *Input) Read(p []byte) (int, error) {
	if in.chunked {
		return in.readChunked(p)
	}
	if in.limited {
		return in.readLimited(p)
	}
	n, err := in.br.Read(p)
	if err != nil && err != io.EOF {
		return n, lwerr.StreamError("read", err)
	}
	return n, err
}

// FullyConsumed reports whether the framed body has no remaining
// bytes to read, used by the worker loop to decide whether draining is
// required before connection reuse (spec.md §4.4 step 11).
func (in *Input) FullyConsumed() bool {
	if in.chunked {
		return in.chunkEOF
	}
	if in.limited {
		return in.limitRemaining <= 0
	}
	return true
}

// Drain reads and discards any remaining framed body bytes so the
// connection can be reused for the next keep-alive request.
func (in *Input) Drain() error {
	if _, err := io.Copy(io.Discard, in); err != nil && err != io.EOF {
		return lwerr.StreamError("drain body", err)
	}
	return nil
}

func (in *Input) readLimited(p []byte) (int, error) {
	if in.limitRemaining <= 0 {
		return 0, io.EOF
	}
	toRead := int64(len(p))
	if toRead > in.limitRemaining {
		toRead = in.limitRemaining
	}
	n, err := in.br.Read(p[:toRead])
	in.limitRemaining -= int64(n)
	if err != nil && err != io.EOF {
		return n, lwerr.StreamError("read", err)
	}
	return n, err
}

func (in *Input) readChunked(p []byte) (int, error) {
	if in.chunkEOF {
		return 0, io.EOF
	}
	if in.chunkRemaining == 0 {
		size, err := in.readChunkSizeLine()
		if err != nil {
			return 0, err
		}
		if size == 0 {
			// Trailer section: read until the blank line, then done.
			for {
				line, err := in.ReadLine()
				if err != nil {
					return 0, err
				}
				if line == "" {
					break
				}
			}
			in.chunkEOF = true
			return 0, io.EOF
		}
		in.chunkRemaining = size
	}

	toRead := len(p)
	if uint64(toRead) > in.chunkRemaining {
		toRead = int(in.chunkRemaining)
	}
	n, err := in.br.Read(p[:toRead])
	in.chunkRemaining -= uint64(n)
	if err != nil && err != io.EOF {
		return n, lwerr.StreamError("read chunk data", err)
	}
	if in.chunkRemaining == 0 && n > 0 {
		if _, err := in.ReadExact(2); err != nil { // trailing CRLF of this chunk
			return n, err
		}
	}
	return n, nil
}

func (in *Input) readChunkSizeLine() (uint64, error) {
	line, err := in.ReadLine()
	if err != nil {
		return 0, err
	}
	// Strip chunk extensions (";ext=value") per RFC 7230 §4.1.1.
	for i := 0; i < len(line); i++ {
		if line[i] == ';' {
			line = line[:i]
			break
		}
	}
	if line == "" {
		return 0, lwerr.MalformedRequest("empty chunk size line")
	}
	size, err := strconv.ParseUint(line, 16, 64)
	if err != nil {
		return 0, lwerr.MalformedRequest("invalid chunk size")
	}
	return size, nil
}

// Output is a blocking byte-stream abstraction for writing responses:
// plain writes, CRLF-terminated lines, a chunked-encode mode, and
// rate-limited file-range streaming (spec.md §4.1).
type Output struct {
	bw      *bufio.Writer
	conn    net.Conn
	chunked bool
}

// NewOutput wraps conn in a buffered Output stream.
func NewOutput(conn net.Conn) *Output {
	return &Output{bw: bufio.NewWriterSize(conn, 4096), conn: conn}
}

// IsConnected reports whether the underlying connection is still usable.
func (out *Output) IsConnected() bool { return out.conn != nil }

// WriteBytes writes raw bytes, chunk-framing them when chunked mode is on.
func (out *Output) WriteBytes(b []byte) error {
	if out.chunked {
		return out.writeChunk(b)
	}
	if _, err := out.bw.Write(b); err != nil {
		return lwerr.StreamError("write bytes", err)
	}
	return nil
}

// WriteUTF8Line writes s followed by CRLF.
func (out *Output) WriteUTF8Line(s string) error {
	if err := out.WriteBytes([]byte(s)); err != nil {
		return err
	}
	return out.WriteBytes(crlf)
}

var crlf = []byte("\r\n")

// EnableChunked switches the stream into chunked-encode mode. Close
// guarantees exactly one terminating zero-chunk is emitted.
func (out *Output) EnableChunked() { out.chunked = true }

func (out *Output) writeChunk(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.SetString(strconv.FormatUint(uint64(len(b)), 16))
	buf.Write(crlf)
	buf.Write(b)
	buf.Write(crlf)
	if _, err := out.bw.Write(buf.B); err != nil {
		return lwerr.StreamError("write chunk", err)
	}
	return nil
}

// Close flushes buffered data and, in chunked mode, writes the single
// terminating zero-chunk and leaves chunked mode (idempotent: safe to
// call once per response).
func (out *Output) Close() error {
	if out.chunked {
		out.chunked = false
		if _, err := out.bw.WriteString("0\r\n\r\n"); err != nil {
			return lwerr.StreamError("write chunk terminator", err)
		}
	}
	if err := out.bw.Flush(); err != nil {
		return lwerr.StreamError("flush", err)
	}
	return nil
}

// Flush flushes buffered data without closing the chunked framing.
func (out *Output) Flush() error {
	if err := out.bw.Flush(); err != nil {
		return lwerr.StreamError("flush", err)
	}
	return nil
}

// ByteRange selects an inclusive [Lo, Hi] slice of a file for range
// responses (spec.md §4.5). Hi == -1 means "to end of file".
type ByteRange struct {
	Lo, Hi int64
}

// RateLimiter bounds the throughput of WriteContentsOfFile by sleeping
// between fixed-size buffered chunks (spec.md §4.1). A nil *RateLimiter
// means unlimited speed and, outside chunked mode, lets Output prefer a
// zero-copy sendfile path.
type RateLimiter struct {
	BufferSize int           // chunk size to buffer and sleep between
	PerChunk   time.Duration // sleep duration after each chunk
}

// WriteContentsOfFile seeks to rng.Lo, writes through EOF or rng.Hi
// (inclusive), and obeys limiter's pacing when non-nil. When limiter is
// nil, chunked mode is off and the connection is a *net.TCPConn, it
// prefers the platform sendfile(2) fast path (pkg/littleweb/socket); in
// chunked mode every slice goes through WriteBytes and is chunk-framed.
func (out *Output) WriteContentsOfFile(f *os.File, rng ByteRange, limiter *RateLimiter) (int64, error) {
	if _, err := f.Seek(rng.Lo, io.SeekStart); err != nil {
		return 0, lwerr.StreamError("seek file", err)
	}
	count := int64(-1)
	if rng.Hi >= rng.Lo {
		count = rng.Hi - rng.Lo + 1
	} else {
		stat, err := f.Stat()
		if err != nil {
			return 0, lwerr.StreamError("stat file", err)
		}
		count = stat.Size() - rng.Lo
	}

	if limiter == nil && !out.chunked {
		if socket.CanUseSendFile(out.conn) {
			if err := out.bw.Flush(); err != nil {
				return 0, lwerr.StreamError("flush before sendfile", err)
			}
			n, err := socket.SendFile(out.conn, f, rng.Lo, count)
			if err != nil {
				return n, lwerr.StreamError("sendfile", err)
			}
			return n, nil
		}
		n, err := io.CopyN(out.bw, f, count)
		if err != nil && err != io.EOF {
			return n, lwerr.StreamError("copy file", err)
		}
		return n, nil
	}

	bufSize := 32 * 1024
	if limiter != nil && limiter.BufferSize > 0 {
		bufSize = limiter.BufferSize
	}
	buf := make([]byte, bufSize)
	var written int64
	for written < count {
		toRead := int64(bufSize)
		if remaining := count - written; remaining < toRead {
			toRead = remaining
		}
		n, err := io.ReadFull(f, buf[:toRead])
		if n > 0 {
			if werr := out.WriteBytes(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
		}
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return written, lwerr.StreamError("read file chunk", err)
		}
		if limiter != nil && limiter.PerChunk > 0 && written < count {
			time.Sleep(limiter.PerChunk)
		}
	}
	return written, nil
}
