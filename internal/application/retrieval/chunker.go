package retrieval

import (
	"fmt"
	"regexp"
	"strings"
)

var docIDUnsafe = regexp.MustCompile(`[^a-zA-Z0-9._/-]+`)

// NormalizeWhitespace 将连续空白折叠为单个空格并去掉首尾空白
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// SplitText 按字符（rune）切分，相邻片段重叠 overlap 个字符
func SplitText(text string, chunkSize, overlap int) ([]string, error) {
	cleaned := []rune(NormalizeWhitespace(text))
	if len(cleaned) == 0 {
		return nil, nil
	}
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil, ErrInvalidChunking(chunkSize, overlap)
	}

	out := make([]string, 0, len(cleaned)/(chunkSize-overlap)+1)
	start := 0
	for start < len(cleaned) {
		end := min(len(cleaned), start+chunkSize)
		out = append(out, string(cleaned[start:end]))
		if end == len(cleaned) {
			break
		}
		start = end - overlap
	}
	return out, nil
}

// ChunkID 片段 ID，重复导入同一文档会覆盖而不是追加
func ChunkID(docID string, idx int) string {
	return fmt.Sprintf("%s::chunk::%d", docID, idx)
}

// Chunker 使用固定参数切分文档
type Chunker struct {
	size    int
	overlap int
}

// NewChunker 创建切分器，参数非法时返回配置错误
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, ErrInvalidChunking(size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// BuildChunks 切分一篇文档
func (c *Chunker) BuildChunks(doc Document) ([]Chunk, error) {
	parts, err := SplitText(doc.Text, c.size, c.overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]Chunk, 0, len(parts))
	for idx, part := range parts {
		chunks = append(chunks, Chunk{
			ChunkID:    ChunkID(doc.DocID, idx),
			Text:       part,
			DocID:      doc.DocID,
			Source:     doc.Source,
			ChunkIndex: idx,
		})
	}
	return chunks, nil
}

// SourceToDocID 由上传文件名或链接生成稳定的 doc_id
func SourceToDocID(source string) string {
	normalized := strings.ReplaceAll(source, `\`, "/")
	base := docIDUnsafe.ReplaceAllString(normalized, "_")
	return strings.ReplaceAll(base, "/", "__")
}
