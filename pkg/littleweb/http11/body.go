package http11

import (
	"bufio"
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/yourusername/littleweb/pkg/littleweb/lwerr"
	"github.com/yourusername/littleweb/pkg/littleweb/stream"
)

// decodeURLEncodedBody reads the full body and appends its decoded
// pairs to req.QueryItems (spec.md §4.2 "urlencoded form").
func decodeURLEncodedBody(req *Request, in *stream.Input, mode BodyMode) error {
	if mode == BodyNone {
		return nil
	}
	raw, err := ioutil.ReadAll(in)
	if err != nil {
		return lwerr.BodyDecodeError("read urlencoded body", err)
	}
	req.MarkBodyConsumed()
	req.QueryItems = append(req.QueryItems, ParseQueryItems(string(raw))...)
	req.Body = nil
	return nil
}

// decodeMultipartBody parses a multipart/form-data body per spec.md
// §4.2: a leading "--boundary" line, a sequence of parts each
// terminated by "\r\n--boundary", and a two-byte trailer after every
// boundary occurrence distinguishing "more parts" from "end of body".
func decodeMultipartBody(req *Request, in *stream.Input, boundary, uploadRoot string) error {
	req.MarkBodyConsumed()
	defer func() { req.Body = nil }()

	br := bufio.NewReaderSize(in, 64*1024)
	dashBoundary := "--" + boundary
	needle := []byte("\r\n" + dashBoundary)

	first, err := readLine(br)
	if err != nil {
		return lwerr.BodyDecodeError("read multipart preamble", err)
	}
	if first != dashBoundary {
		return lwerr.MalformedRequest(lwerr.ErrBoundaryNotFound.Error())
	}

	hostDir := "default"
	if req.Header != nil && req.Header.Host() != "" {
		hostDir = sanitizeHostDir(req.Header.Host())
	}
	partDir := filepath.Join(uploadRoot, hostDir)

	for {
		partHeader, err := readMultipartPartHeader(br)
		if err != nil {
			return err
		}
		disposition := partHeader.Get("Content-Disposition")
		if !strings.Contains(strings.ToLower(disposition), "form-data") {
			return lwerr.MalformedRequest("multipart part missing form-data disposition")
		}
		name := dispositionParam(disposition, "name")
		filename, hasFilename := dispositionParamOK(disposition, "filename")

		var more bool
		if hasFilename {
			more, err = readFilePart(br, needle, partDir, req, name, filename, partHeader.Get("Content-Type"))
		} else {
			more, err = readTextPart(br, needle, req, name)
		}
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// readLine reads one CRLF- or LF-terminated line, stripped of its
// terminator.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return "", lwerr.StreamError("read line", lwerr.ErrEndOfStream)
		}
		return "", lwerr.StreamError("read line", err)
	}
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

// readMultipartPartHeader reads a part's header block (Content-Disposition,
// optional Content-Type, ...) up to its blank line.
func readMultipartPartHeader(br *bufio.Reader) (*Header, error) {
	h := &Header{}
	for {
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return h, nil
		}
		name, value := splitHeaderLine(line)
		if err := h.Add(name, value); err != nil {
			return nil, lwerr.MalformedRequest("malformed multipart part header")
		}
	}
}

// dispositionParam extracts a quoted parameter (e.g. name="field") from
// a Content-Disposition header value.
func dispositionParam(disposition, key string) string {
	v, _ := dispositionParamOK(disposition, key)
	return v
}

func dispositionParamOK(disposition, key string) (string, bool) {
	marker := key + "=\""
	idx := strings.Index(disposition, marker)
	if idx < 0 {
		return "", false
	}
	rest := disposition[idx+len(marker):]
	end := strings.IndexByte(rest, '"')
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// readBoundaryTrailer reads the two-byte sequence following a matched
// boundary needle and reports whether more parts follow (spec.md
// §4.2's CRLF vs "--"+CRLF trailer rule).
func readBoundaryTrailer(br *bufio.Reader) (more bool, err error) {
	b, err := br.Peek(2)
	if err != nil {
		return false, lwerr.BodyDecodeError("read boundary trailer", err)
	}
	switch {
	case b[0] == '\r' && b[1] == '\n':
		br.Discard(2)
		return true, nil
	case b[0] == '-' && b[1] == '-':
		br.Discard(2)
		tail, err := br.Peek(2)
		if err != nil || tail[0] != '\r' || tail[1] != '\n' {
			return false, lwerr.MalformedRequest(lwerr.ErrUnexpectedBoundaryTrailer.Error())
		}
		br.Discard(2)
		return false, nil
	default:
		return false, lwerr.MalformedRequest(lwerr.ErrUnexpectedBoundaryTrailer.Error())
	}
}

// streamPartContent copies bytes from br into sink until needle is
// found as a suffix of what has been read, using a fixed-size
// look-ahead window equal to len(needle) so the boundary match can
// span sink-flush boundaries without ever writing needle bytes to
// sink (spec.md §4.2).
func streamPartContent(br *bufio.Reader, needle []byte, sink func(b byte) error) (more bool, err error) {
	window := make([]byte, 0, len(needle))
	for {
		b, rerr := br.ReadByte()
		if rerr != nil {
			return false, lwerr.BodyDecodeError("read multipart part content", rerr)
		}
		window = append(window, b)
		if len(window) > len(needle) {
			if err := sink(window[0]); err != nil {
				return false, err
			}
			window = window[1:]
		}
		if len(window) == len(needle) && bytes.Equal(window, needle) {
			return readBoundaryTrailer(br)
		}
	}
}

func readTextPart(br *bufio.Reader, needle []byte, req *Request, name string) (bool, error) {
	var buf bytes.Buffer
	more, err := streamPartContent(br, needle, func(b byte) error {
		buf.WriteByte(b)
		return nil
	})
	if err != nil {
		return false, err
	}
	value := buf.String()
	if !utf8.ValidString(value) {
		return false, lwerr.BodyDecodeError("multipart text part "+name+" is not valid UTF-8", nil)
	}
	req.QueryItems = append(req.QueryItems, QueryItem{Name: name, Value: value})
	return more, nil
}

func readFilePart(br *bufio.Reader, needle []byte, partDir string, req *Request, name, filename, contentType string) (bool, error) {
	if err := os.MkdirAll(partDir, 0o755); err != nil {
		return false, lwerr.BodyDecodeError("create upload directory", err)
	}
	tempPath := filepath.Join(partDir, uuid.NewString())
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return false, lwerr.BodyDecodeError("create temp upload file", err)
	}

	w := bufio.NewWriter(f)
	more, err := streamPartContent(br, needle, func(b byte) error {
		return w.WriteByte(b)
	})
	if err != nil {
		w.Flush()
		f.Close()
		os.Remove(tempPath)
		return false, err
	}
	if ferr := w.Flush(); ferr != nil {
		f.Close()
		os.Remove(tempPath)
		return false, lwerr.BodyDecodeError("flush temp upload file", ferr)
	}
	if cerr := f.Close(); cerr != nil {
		os.Remove(tempPath)
		return false, lwerr.BodyDecodeError("close temp upload file", cerr)
	}

	req.UploadedFiles = append(req.UploadedFiles, UploadedFile{
		FieldName:    name,
		DeclaredName: filename,
		TempPath:     tempPath,
		ContentType:  contentType,
	})
	return more, nil
}

// sanitizeHostDir turns a Host header value into a filesystem-safe
// directory name for per-host upload staging (spec.md §4.4 step 6).
func sanitizeHostDir(host string) string {
	var b strings.Builder
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}
