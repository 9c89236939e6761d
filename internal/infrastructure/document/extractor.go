// Package document 负责文档文本抽取与链接抓取
package document

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	apperrors "portfolio-rag-api/pkg/errors"
)

// SupportedExtensions 可导入的文件扩展名
var SupportedExtensions = map[string]bool{
	".pdf": true,
	".md":  true,
	".txt": true,
}

// IsSupported 文件名扩展名是否可导入
func IsSupported(filename string) bool {
	return SupportedExtensions[strings.ToLower(path.Ext(filename))]
}

// ExtractText 按扩展名抽取纯文本：pdf 逐页拼接，md/txt 按 UTF-8 读取（非法字节丢弃）
func ExtractText(filename string, raw []byte) (string, error) {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".pdf":
		return extractPDF(raw)
	case ".md", ".txt":
		return strings.TrimSpace(strings.ToValidUTF8(string(raw), "")), nil
	default:
		return "", apperrors.Newf(apperrors.CodeUnsupportedFormat, "Unsupported file extension: %s", ext)
	}
}

func extractPDF(raw []byte) (text string, err error) {
	// 损坏的 PDF 可能让解析器 panic
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Newf(apperrors.CodeUnsupportedFormat, "failed to parse pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeUnsupportedFormat, "failed to parse pdf")
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.CodeUnsupportedFormat, fmt.Sprintf("failed to read pdf page %d", i))
		}
		pages = append(pages, content)
	}
	return strings.TrimSpace(strings.Join(pages, "\n")), nil
}

// File 目录中的一个可导入文档
type File struct {
	DocID  string
	Source string
	Text   string
}

// WalkDirectory 递归遍历 root，按路径排序返回可导入且非空的文档；
// doc_id 为相对路径把 "/" 替换成 "__"，root 不存在时返回空
func WalkDirectory(root string) ([]File, error) {
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && IsSupported(d.Name()) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(paths)

	var files []File
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		text, err := ExtractText(p, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		if text == "" {
			continue
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil, err
		}
		rel = filepath.ToSlash(rel)
		files = append(files, File{
			DocID:  strings.ReplaceAll(rel, "/", "__"),
			Source: rel,
			Text:   text,
		})
	}
	return files, nil
}
