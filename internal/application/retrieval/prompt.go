package retrieval

import (
	"fmt"
	"strings"

	"portfolio-rag-api/internal/domain/entity"
)

const promptPreamble = "You are a portfolio RAG assistant. Answer with concise factual statements grounded in the context.\n" +
	"If context is insufficient, explicitly say so.\n" +
	"Cite claims using [n] references matching context blocks.\n\n"

// BuildPrompt 将问题与编号上下文块组装为生成提示词，texts[i] 为 citations[i] 对应片段全文
func BuildPrompt(question string, citations []entity.Citation, texts []string) string {
	blocks := make([]string, 0, len(citations))
	for i, c := range citations {
		blocks = append(blocks, fmt.Sprintf("[%d] source=%s doc_id=%s chunk=%d\n%s",
			c.Rank, c.Source, c.DocID, c.ChunkIndex, texts[i]))
	}

	var sb strings.Builder
	sb.WriteString(promptPreamble)
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(strings.Join(blocks, "\n"))
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}
