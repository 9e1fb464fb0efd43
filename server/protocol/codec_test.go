package protocol

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

func TestFixedReader(t *testing.T) {
	t.Run("exact", func(t *testing.T) {
		r := NewFixedReader(strings.NewReader("hello world"), 5)
		got, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(got))
		assert.Zero(t, r.Remaining())
	})

	t.Run("truncated", func(t *testing.T) {
		r := NewFixedReader(strings.NewReader("hel"), 5)
		got, err := io.ReadAll(r)
		assert.ErrorIs(t, err, ErrTruncated)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		assert.Equal(t, "hel", string(got))
	})

	t.Run("one byte reads", func(t *testing.T) {
		r := NewFixedReader(iotest.OneByteReader(strings.NewReader("abcdef")), 4)
		got, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "abcd", string(got))
	})

	t.Run("zero length", func(t *testing.T) {
		n, err := NewFixedReader(strings.NewReader("x"), 0).Read(make([]byte, 4))
		assert.Zero(t, n)
		assert.ErrorIs(t, err, io.EOF)
	})
}

func TestChunkedReader(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr error
		rest    string // left in the buffer for the next request
	}{
		{name: "simple", raw: "5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n", want: "hello world"},
		{name: "extensions and upper hex", raw: "A;name=val\r\n0123456789\r\n0;x\r\n\r\n", want: "0123456789"},
		{name: "trailers dropped", raw: "3\r\nabc\r\n0\r\nX-Sum: 1\r\nX-Other: 2\r\n\r\nGET", want: "abc", rest: "GET"},
		{name: "bare lf", raw: "3\nabc\n0\n\n", want: "abc"},
		{name: "empty body", raw: "0\r\n\r\n", want: ""},
		{name: "leading zeros", raw: "0000000000000005\r\nhello\r\n00000000000000000\r\n\r\n", want: "hello"},
		{name: "size too large", raw: "1000000000000000\r\nhello\r\n0\r\n\r\n", wantErr: ErrMalformedChunk},
		{name: "truncated in size line", raw: "5", want: "", wantErr: ErrTruncated},
		{name: "truncated in data", raw: "5\r\nhel", want: "hel", wantErr: ErrTruncated},
		{name: "truncated before crlf", raw: "5\r\nhello", want: "hello", wantErr: ErrTruncated},
		{name: "truncated before last chunk", raw: "5\r\nhello\r\n", want: "hello", wantErr: ErrTruncated},
		{name: "truncated in trailers", raw: "0\r\nX-A: 1\r\n", want: "", wantErr: ErrTruncated},
		{name: "bad size", raw: "zz\r\nhello\r\n0\r\n\r\n", wantErr: ErrMalformedChunk},
		{name: "negative size", raw: "-1\r\nhello\r\n0\r\n\r\n", wantErr: ErrMalformedChunk},
		{name: "missing crlf after data", raw: "3\r\nabcX\r\n0\r\n\r\n", want: "abc", wantErr: ErrMalformedChunk},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br := reader(tt.raw)
			cr := NewChunkedReader(br, 0)
			got, err := io.ReadAll(cr)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				_, again := cr.Read(make([]byte, 1))
				assert.ErrorIs(t, again, tt.wantErr, "errors are sticky")
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, string(got))

			if tt.rest != "" {
				rest, _ := io.ReadAll(br)
				assert.Equal(t, tt.rest, string(rest))
			}
		})
	}
}

func TestFixedWriter(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	w := NewFixedWriter(bw, 5)

	n, err := w.Write([]byte("hel"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = w.Write([]byte("lo!"))
	assert.ErrorIs(t, err, ErrTooManyBytes)
	assert.Zero(t, n, "overflowing write writes nothing")

	_, err = w.Write([]byte("lo"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, "hello", buf.String())

	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestFixedWriterInsufficient(t *testing.T) {
	var buf bytes.Buffer
	w := NewFixedWriter(bufio.NewWriter(&buf), 10)
	_, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	assert.ErrorIs(t, w.Close(), ErrInsufficientBytes)
	assert.EqualValues(t, 7, w.Remaining())
}

// what is on the wire must decode to exactly what was written,
// whatever way writes straddle the chunk boundary
func TestChunkedWriterBoundaries(t *testing.T) {
	const size = DefaultChunkSize
	cases := []struct {
		name   string
		writes []int
	}{
		{"two chunks and five", []int{size, size, 5}},
		{"single write 2*size+5", []int{2*size + 5}},
		{"exact chunk", []int{size}},
		{"chunk minus one", []int{size - 1}},
		{"chunk plus one", []int{size + 1}},
		{"straddling", []int{size - 3, 7, size - 4, 5}},
		{"tiny writes", []int{1, 1, 1, 1}},
		{"nothing", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			total := 0
			for _, n := range tc.writes {
				total += n
			}
			data := pattern(total)

			var wire bytes.Buffer
			bw := bufio.NewWriter(&wire)
			cw := NewChunkedWriter(bw, size)
			off := 0
			for _, n := range tc.writes {
				k, err := cw.Write(data[off : off+n])
				require.NoError(t, err)
				require.Equal(t, n, k)
				off += n
			}
			require.NoError(t, cw.Close())
			assert.True(t, bytes.HasSuffix(wire.Bytes(), []byte("0\r\n\r\n")))

			got, err := io.ReadAll(NewChunkedReader(bufio.NewReader(&wire), 0))
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestChunkedWriterChunkSizes(t *testing.T) {
	var wire bytes.Buffer
	cw := NewChunkedWriter(bufio.NewWriter(&wire), 4)
	_, err := cw.Write([]byte("abcdefghij"))
	require.NoError(t, err)
	require.NoError(t, cw.Flush())
	assert.Equal(t, "4\r\nabcd\r\n4\r\nefgh\r\n2\r\nij\r\n", wire.String())

	require.NoError(t, cw.Close())
	assert.Equal(t, "4\r\nabcd\r\n4\r\nefgh\r\n2\r\nij\r\n0\r\n\r\n", wire.String())
	_, err = cw.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestChunkedWriterAbort(t *testing.T) {
	var wire bytes.Buffer
	bw := bufio.NewWriter(&wire)
	cw := NewChunkedWriter(bw, 8)
	_, err := cw.Write([]byte("abc"))
	require.NoError(t, err)
	cw.Abort()
	require.NoError(t, bw.Flush())
	assert.Empty(t, wire.String())
}

func TestDiscardWriter(t *testing.T) {
	var d DiscardWriter
	n, err := d.Write([]byte("ignored"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.EqualValues(t, 7, d.Dropped)
	require.NoError(t, d.Close())
}

func BenchmarkChunkedWriter(b *testing.B) {
	data := pattern(3*DefaultChunkSize + 17)
	bw := bufio.NewWriter(io.Discard)

	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	for b.Loop() {
		cw := NewChunkedWriter(bw, DefaultChunkSize)
		cw.Write(data)
		cw.Close()
	}
}
