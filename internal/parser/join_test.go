package parser

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const joinSample = "P00001\tIPR000001\tKringle\tPF00051\t10\t80\n" +
	"P00001\tIPR000002\tCystatin\tPS00287\t90\t150\n" +
	"P00002\tIPR000001\tKringle\tSM00130\t5\t60\n"

// drain reads every chunk, copying rows because the buffer is reused.
func drain(t *testing.T, j *JoinReader, size int) [][]JoinRow {
	t.Helper()
	var (
		chunks [][]JoinRow
		buf    []JoinRow
		err    error
	)
	for {
		buf, err = j.ReadChunk(buf, size)
		if errors.Is(err, io.EOF) {
			return chunks
		}
		require.NoError(t, err)
		chunks = append(chunks, append([]JoinRow(nil), buf...))
	}
}

func TestJoin_ColumnsAndChunks(t *testing.T) {
	t.Parallel()
	j := NewJoinReader(strings.NewReader(joinSample))
	chunks := drain(t, j, 2)

	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 2)
	assert.Len(t, chunks[1], 1, "final partial chunk is returned before EOF")
	assert.Equal(t, JoinRow{
		Subject: "P00001",
		Entry:   "IPR000002",
		Tag:     "PS00287",
		Start:   90,
		End:     150,
		Line:    2,
	}, chunks[0][1])
	assert.Equal(t, int64(3), j.Rows())
}

func TestJoin_EmptyInputIsEOF(t *testing.T) {
	t.Parallel()
	j := NewJoinReader(strings.NewReader(""))
	rows, err := j.ReadChunk(nil, 10)
	assert.Nil(t, rows)
	require.ErrorIs(t, err, io.EOF)
}

func TestJoin_EOFIsSticky(t *testing.T) {
	t.Parallel()
	j := NewJoinReader(strings.NewReader(joinSample))
	rows, err := j.ReadChunk(nil, 100)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	for range 2 {
		_, err = j.ReadChunk(rows, 100)
		require.ErrorIs(t, err, io.EOF)
	}
}

func TestJoin_MalformedRowsAreSkipped(t *testing.T) {
	t.Parallel()
	input := strings.Join([]string{
		"P00001\tIPR000001\tKringle\tPF00051\t10\t80",
		"P00001\tIPR000001\tKringle",
		"\tIPR000001\tKringle\tPF00051\t10\t80",
		"P00001\tIPR000001\tKringle\tPF00051\tten\t80",
		"P00001\tIPR000001\tKringle\tPF00051\t10\t",
		"P00002\tIPR000003\tKringle\tPF00051\t1\t2",
	}, "\n")

	var reasons []string
	j := NewJoinReader(strings.NewReader(input), OnMalformed(func(m Malformed) {
		reasons = append(reasons, m.Reason)
	}))
	chunks := drain(t, j, 1000)

	require.Len(t, chunks, 1)
	require.Len(t, chunks[0], 2)
	assert.Equal(t, "P00002", chunks[0][1].Subject)
	assert.Equal(t, 6, chunks[0][1].Line)
	assert.Equal(t, []string{
		"expected at least 6 tab-separated columns",
		"empty subject or entry",
		"invalid span start",
		"invalid span end",
	}, reasons)
	assert.Equal(t, 4, j.Skipped())
}

func TestJoin_ReadFailureIsNotEOF(t *testing.T) {
	t.Parallel()
	boom := errors.New("unexpected EOF in gzip stream")
	r := io.MultiReader(strings.NewReader(joinSample), iotest.ErrReader(boom))
	j := NewJoinReader(r)

	var err error
	var buf []JoinRow
	for err == nil {
		buf, err = j.ReadChunk(buf, 2)
	}
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestJoin_ZeroSizeReadsOneRow(t *testing.T) {
	t.Parallel()
	j := NewJoinReader(strings.NewReader(joinSample))
	rows, err := j.ReadChunk(nil, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
