package evaluation

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"portfolio-rag-api/internal/application/retrieval"
)

// 每条用例最多保留的期望文档数
const maxExpectedDocs = 5

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// BEIRDoc 语料中的一篇文档
type BEIRDoc struct {
	ID    string
	Title string
	Text  string
}

// BEIRQrels 查询到相关文档的映射，保持文件中的查询顺序
type BEIRQrels struct {
	order    []string
	relevant map[string][]string
}

// Add 记录一条相关文档，score <= 0 忽略
func (q *BEIRQrels) Add(queryID, docID string, score int) {
	if score <= 0 {
		return
	}
	if q.relevant == nil {
		q.relevant = make(map[string][]string)
	}
	if _, ok := q.relevant[queryID]; !ok {
		q.order = append(q.order, queryID)
	}
	q.relevant[queryID] = append(q.relevant[queryID], docID)
}

func (q *BEIRQrels) Len() int { return len(q.order) }

// BEIRImportSummary 导入结果
type BEIRImportSummary struct {
	Dataset          string `json:"dataset"`
	Split            string `json:"split"`
	DocsWritten      int    `json:"docs_written"`
	EvalCasesWritten int    `json:"eval_cases_written"`
	DocsDir          string `json:"docs_dir"`
	BenchmarkPath    string `json:"benchmark_path"`
}

// BEIRImport 导入参数；MaxDocs/MaxQueries 为 0 表示不限
type BEIRImport struct {
	Dataset       string
	Split         string
	DatasetDir    string
	DocsDir       string
	BenchmarkPath string
	MaxDocs       int
	MaxQueries    int
}

// Run 读取 corpus/queries/qrels，写出文档与评测集
func (b BEIRImport) Run() (*BEIRImportSummary, error) {
	corpusPath := filepath.Join(b.DatasetDir, "corpus.jsonl")
	queriesPath := filepath.Join(b.DatasetDir, "queries.jsonl")
	qrelsPath := filepath.Join(b.DatasetDir, "qrels", b.Split+".tsv")
	for _, f := range []struct{ label, path string }{
		{"corpus", corpusPath},
		{"queries", queriesPath},
		{"qrels split", qrelsPath},
	} {
		if _, err := os.Stat(f.path); err != nil {
			return nil, fmt.Errorf("missing %s file: %s", f.label, f.path)
		}
	}

	corpus, err := LoadBEIRCorpus(corpusPath, b.MaxDocs)
	if err != nil {
		return nil, err
	}
	queries, err := LoadBEIRQueries(queriesPath)
	if err != nil {
		return nil, err
	}
	qrels, err := LoadBEIRQrels(qrelsPath)
	if err != nil {
		return nil, err
	}

	idMap, err := WriteBEIRDocs(corpus, b.DocsDir, b.Dataset)
	if err != nil {
		return nil, err
	}
	cases := BuildBEIRCases(queries, qrels, idMap, b.MaxQueries)
	if err := WriteCases(cases, b.BenchmarkPath); err != nil {
		return nil, err
	}
	return &BEIRImportSummary{
		Dataset:          b.Dataset,
		Split:            b.Split,
		DocsWritten:      len(idMap),
		EvalCasesWritten: len(cases),
		DocsDir:          b.DocsDir,
		BenchmarkPath:    b.BenchmarkPath,
	}, nil
}

// SanitizeFilename 非法字符折叠为 _，首尾 _ 去掉，空则为 doc
func SanitizeFilename(v string) string {
	s := strings.Trim(unsafeFileChars.ReplaceAllString(v, "_"), "_")
	if s == "" {
		return "doc"
	}
	return s
}

// LoadBEIRCorpus 按文件顺序读取语料，maxDocs > 0 时截断
func LoadBEIRCorpus(p string, maxDocs int) ([]BEIRDoc, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []BEIRDoc
	dec := json.NewDecoder(f)
	for maxDocs <= 0 || len(docs) < maxDocs {
		var row struct {
			ID    json.RawMessage `json:"_id"`
			Title string          `json:"title"`
			Text  string          `json:"text"`
		}
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid corpus row %d: %w", len(docs)+1, err)
		}
		docs = append(docs, BEIRDoc{
			ID:    rawID(row.ID),
			Title: strings.TrimSpace(row.Title),
			Text:  strings.TrimSpace(row.Text),
		})
	}
	return docs, nil
}

// LoadBEIRQueries 读取 query id 到问题文本
func LoadBEIRQueries(p string) (map[string]string, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]string)
	dec := json.NewDecoder(f)
	for {
		var row struct {
			ID   json.RawMessage `json:"_id"`
			Text string          `json:"text"`
		}
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("invalid query row: %w", err)
		}
		out[rawID(row.ID)] = strings.TrimSpace(row.Text)
	}
}

// LoadBEIRQrels 读取带表头的 TSV（query-id, corpus-id, score）
func LoadBEIRQrels(p string) (*BEIRQrels, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read qrels header: %w", err)
	}
	col := map[string]int{}
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	qi, ok1 := col["query-id"]
	ci, ok2 := col["corpus-id"]
	si, ok3 := col["score"]
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("qrels header must contain query-id, corpus-id, score: %v", header)
	}

	qrels := &BEIRQrels{}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return qrels, nil
		}
		if err != nil {
			return nil, fmt.Errorf("invalid qrels row: %w", err)
		}
		if len(rec) <= max(qi, ci, si) {
			continue
		}
		score, err := strconv.Atoi(strings.TrimSpace(rec[si]))
		if err != nil {
			return nil, fmt.Errorf("invalid qrels score %q: %w", rec[si], err)
		}
		qrels.Add(strings.TrimSpace(rec[qi]), strings.TrimSpace(rec[ci]), score)
	}
}

// WriteBEIRDocs 每篇语料写成 docsDir/beir/<dataset>/<id>.txt，返回语料 id 到 doc_id
func WriteBEIRDocs(corpus []BEIRDoc, docsDir, dataset string) (map[string]string, error) {
	target := filepath.Join(docsDir, "beir", dataset)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", target, err)
	}
	idMap := make(map[string]string, len(corpus))
	for _, d := range corpus {
		name := SanitizeFilename(d.ID) + ".txt"
		text := d.Text
		if d.Title != "" {
			text = d.Title + "\n\n" + d.Text
		}
		if err := os.WriteFile(filepath.Join(target, name), []byte(strings.TrimSpace(text)), 0o644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
		idMap[d.ID] = retrieval.SourceToDocID(path.Join("beir", dataset, name))
	}
	return idMap, nil
}

// BuildBEIRCases 按 qrels 顺序生成用例；无问题文本或无已写出文档的查询跳过
func BuildBEIRCases(queries map[string]string, qrels *BEIRQrels, idMap map[string]string, maxQueries int) []Case {
	var cases []Case
	for _, qid := range qrels.order {
		if maxQueries > 0 && len(cases) >= maxQueries {
			break
		}
		question := strings.TrimSpace(queries[qid])
		if question == "" {
			continue
		}
		var expected []string
		for _, id := range qrels.relevant[qid] {
			if docID, ok := idMap[id]; ok {
				expected = append(expected, docID)
			}
		}
		if len(expected) == 0 {
			continue
		}
		if len(expected) > maxExpectedDocs {
			expected = expected[:maxExpectedDocs]
		}
		cases = append(cases, Case{
			ID:                 "beir_" + qid,
			Question:           question,
			ExpectedDocIDs:     expected,
			ExpectedSubstrings: []string{},
		})
	}
	return cases
}

// WriteCases 写出 JSONL 评测集
func WriteCases(cases []Case, p string) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create benchmark dir: %w", err)
	}
	var sb strings.Builder
	for _, c := range cases {
		raw, err := json.Marshal(c)
		if err != nil {
			return err
		}
		sb.Write(raw)
		sb.WriteByte('\n')
	}
	return os.WriteFile(p, []byte(sb.String()), 0o644)
}

// rawID 兼容字符串或数字形式的 _id
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
