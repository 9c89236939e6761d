package retrieval

import (
	"errors"

	apperrors "portfolio-rag-api/pkg/errors"
)

var errEmptyEmbedding = errors.New("empty embedding result")

// ErrInvalidChunking 分块参数非法
func ErrInvalidChunking(chunkSize, overlap int) *apperrors.AppError {
	return apperrors.Newf(apperrors.CodeConfiguration,
		"chunk_overlap must be smaller than chunk_size (chunk_size=%d, chunk_overlap=%d)", chunkSize, overlap)
}

// embedFailed 嵌入调用失败
func embedFailed(err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "embedding request failed")
}

// generateFailed 生成调用失败
func generateFailed(err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Wrap(err, apperrors.CodeLLMCallFailed, "generation request failed")
}

// vectorFailed 向量索引调用失败
func vectorFailed(err error, op string) error {
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Wrap(err, apperrors.CodeVectorDBError, "vector index "+op+" failed")
}
