package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedBody returns one scripted chunk per Read, then finalErr.
type scriptedBody struct {
	chunks   [][]byte
	finalErr error
	closed   bool
}

func (b *scriptedBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		if b.finalErr != nil {
			return 0, b.finalErr
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	b.chunks = b.chunks[1:]
	return n, nil
}

func (b *scriptedBody) Close() error {
	b.closed = true
	return nil
}

func streamClient(body io.ReadCloser) *Client {
	return New("http://backend", WithDoer(doerFunc(func(_ *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: body}, nil
	})))
}

func TestStreamPost_ChunksInOrder(t *testing.T) {
	body := &scriptedBody{chunks: [][]byte{[]byte("Price "), []byte("up "), []byte("2%")}}

	var got []string
	err := streamClient(body).StreamPost(context.Background(), RunsPath, map[string]string{}, func(chunk string) {
		got = append(got, chunk)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Price ", "up ", "2%"}, got)
	assert.True(t, body.closed)
}

func TestStreamPost_SplitRune(t *testing.T) {
	euro := []byte("€") // three bytes
	body := &scriptedBody{chunks: [][]byte{
		append([]byte("a"), euro[:1]...),
		euro[1:2],
		append(euro[2:], 'b'),
	}}

	var got []string
	err := streamClient(body).StreamPost(context.Background(), RunsPath, nil, func(chunk string) {
		got = append(got, chunk)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "€b"}, got)
}

func TestStreamPost_TrailingIncompleteRune(t *testing.T) {
	body := &scriptedBody{chunks: [][]byte{[]byte("ok"), {0xE2, 0x82}}}

	var got []string
	err := streamClient(body).StreamPost(context.Background(), RunsPath, nil, func(chunk string) {
		got = append(got, chunk)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"ok", "�"}, got)
}

func TestStreamPost_InvalidBytesReplaced(t *testing.T) {
	body := &scriptedBody{chunks: [][]byte{
		{'u', 'p', 0xFF, ' '},
		{0xC3, 0x28, '2', '%'},
	}}

	var got []string
	err := streamClient(body).StreamPost(context.Background(), RunsPath, nil, func(chunk string) {
		assert.True(t, utf8.ValidString(chunk), "chunk %q", chunk)
		got = append(got, chunk)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"up\uFFFD ", "\uFFFD(2%"}, got)
}

func TestStreamPost_NoCallbackAfterError(t *testing.T) {
	readErr := errors.New("connection reset")
	body := &scriptedBody{chunks: [][]byte{[]byte("partial")}, finalErr: readErr}

	calls := 0
	err := streamClient(body).StreamPost(context.Background(), RunsPath, nil, func(string) {
		calls++
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.True(t, errors.Is(err, readErr))
	assert.Equal(t, 1, calls)
}

func TestStreamPost_Unavailable(t *testing.T) {
	c := New("http://backend", WithDoer(doerFunc(func(_ *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK}, nil
	})))

	err := c.StreamPost(context.Background(), RunsPath, nil, func(string) {
		t.Fatal("onChunk must not be called")
	})
	assert.ErrorIs(t, err, ErrStreamUnavailable)
}

func TestStreamPost_NonSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := New(server.URL).StreamPost(context.Background(), RunsPath, nil, func(string) {
		t.Fatal("onChunk must not be called")
	})
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestStreamPost_HTTPServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		flusher, ok := w.(http.Flusher)
		if !assert.True(t, ok) {
			return
		}
		for _, part := range []string{"one ", "two ", "three"} {
			_, _ = w.Write([]byte(part))
			flusher.Flush()
		}
	}))
	defer server.Close()

	var sb strings.Builder
	err := New(server.URL).StreamPost(context.Background(), RunsPath, map[string]string{"mode": "stream"}, func(chunk string) {
		sb.WriteString(chunk)
	})

	require.NoError(t, err)
	assert.Equal(t, "one two three", sb.String())
}

func TestStreamPost_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	defer server.Close()

	err := New(server.URL).StreamPost(ctx, RunsPath, nil, func(string) {})
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompleteUTF8Prefix(t *testing.T) {
	euro := []byte("€")
	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"empty", nil, 0},
		{"ascii", []byte("abc"), 3},
		{"complete multibyte", append([]byte("a"), euro...), 4},
		{"one byte of three", append([]byte("a"), euro[:1]...), 1},
		{"two bytes of three", append([]byte("a"), euro[:2]...), 1},
		{"invalid byte", []byte{'a', 0xFF}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, completeUTF8Prefix(tt.data))
		})
	}
}
