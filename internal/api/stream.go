package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"asasense/internal/logger"
)

const streamBufferSize = 32 * 1024

// StreamPost issues POST base+path and hands the response body to onChunk as
// it arrives. onChunk runs synchronously, once per read, in arrival order,
// and is never called after the body reports EOF or an error. A multi-byte
// character split across reads is delivered whole with the later chunk.
// Cancel ctx to abort the exchange.
func (c *Client) StreamPost(ctx context.Context, path string, body interface{}, onChunk func(string)) error {
	resp, err := c.send(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if resp.Body == nil {
		return ErrStreamUnavailable
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	logger.ServiceOperation("api", "stream_post", path)

	var (
		buf     = make([]byte, streamBufferSize)
		pending []byte
		chunks  int
	)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			data := append(pending, buf[:n]...)
			cut := completeUTF8Prefix(data)
			if cut > 0 {
				chunks++
				onChunk(strings.ToValidUTF8(string(data[:cut]), "\uFFFD"))
			}
			pending = append([]byte(nil), data[cut:]...)
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return transportError(http.MethodPost, path, readErr)
		}
	}

	if len(pending) > 0 {
		chunks++
		onChunk(strings.ToValidUTF8(string(pending), "\uFFFD"))
	}

	logger.Debug("Stream completed", "path", path, "chunks", chunks)
	return nil
}

// completeUTF8Prefix returns the length of the longest prefix of data that
// does not end inside an incomplete multi-byte sequence.
func completeUTF8Prefix(data []byte) int {
	end := len(data)
	for i := end - 1; i >= 0 && i >= end-utf8.UTFMax; i-- {
		if !utf8.RuneStart(data[i]) {
			continue
		}
		if !utf8.FullRune(data[i:end]) {
			return i
		}
		break
	}
	return end
}
