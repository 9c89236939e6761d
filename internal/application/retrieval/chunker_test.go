package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "portfolio-rag-api/pkg/errors"
)

func TestSplitText_EmptyInput(t *testing.T) {
	parts, err := SplitText("  \n\t ", 10, 2)
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestSplitText_RejectsOverlap(t *testing.T) {
	_, err := SplitText("hello world", 5, 5)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfiguration))

	_, err = NewChunker(5, 7)
	assert.Error(t, err)
}

func TestSplitText_CollapsesWhitespace(t *testing.T) {
	parts, err := SplitText("a  b\n\nc\td", 100, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a b c d"}, parts)
}

func TestSplitText_CountAndOverlap(t *testing.T) {
	cases := []struct{ length, size, overlap int }{
		{100, 10, 3},
		{101, 10, 3},
		{11, 10, 3},
		{10, 10, 3},
		{900, 900, 150},
		{2500, 900, 150},
	}
	for _, tc := range cases {
		text := strings.Repeat("x", tc.length)
		parts, err := SplitText(text, tc.size, tc.overlap)
		require.NoError(t, err)

		step := tc.size - tc.overlap
		expected := (tc.length - tc.overlap + step - 1) / step
		assert.Len(t, parts, expected, "L=%d C=%d O=%d", tc.length, tc.size, tc.overlap)
	}
}

func TestSplitText_RunesNotBytes(t *testing.T) {
	text := "数据检索增强生成系统"
	parts, err := SplitText(text, 4, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"数据检索", "索增强生", "生成系统"}, parts)

	for i := 1; i < len(parts); i++ {
		prev := []rune(parts[i-1])
		cur := []rune(parts[i])
		assert.Equal(t, string(prev[len(prev)-1:]), string(cur[:1]))
	}
}

func TestChunker_BuildChunks(t *testing.T) {
	c, err := NewChunker(5, 1)
	require.NoError(t, err)

	chunks, err := c.BuildChunks(Document{DocID: "notes__a.md", Source: "notes/a.md", Text: "abcdefghi"})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "notes__a.md::chunk::0", chunks[0].ChunkID)
	assert.Equal(t, "abcde", chunks[0].Text)
	assert.Equal(t, "notes__a.md::chunk::1", chunks[1].ChunkID)
	assert.Equal(t, "efghi", chunks[1].Text)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
	assert.Equal(t, "notes/a.md", chunks[1].Source)
}

func TestSourceToDocID(t *testing.T) {
	assert.Equal(t, "resume.pdf", SourceToDocID("resume.pdf"))
	assert.Equal(t, "docs__my_file.md", SourceToDocID(`docs\my file.md`))
	assert.Equal(t, "https_____example.com__a_b", SourceToDocID("https://example.com/a?b"))
}
