package document

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "portfolio-rag-api/pkg/errors"
)

var tracer = otel.Tracer("document")

// 部分站点会拒绝非浏览器客户端
var fetchHeaders = map[string]string{
	"User-Agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/126.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,*/*;q=0.7",
	"Accept-Language": "en-US,en;q=0.9",
}

var textLikeContentTypes = map[string]bool{
	"text/plain":      true,
	"text/markdown":   true,
	"text/html":       true,
	"application/pdf": true,
	"":                true,
}

var (
	scriptBlock = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleBlock  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	htmlTag     = regexp.MustCompile(`<[^>]+>`)
)

const maxRedirects = 10

// Fetcher 链接抓取器
type Fetcher struct {
	policy   URLPolicy
	client   *http.Client
	maxBytes int64
}

// NewFetcher 创建抓取器，每次重定向都会重新校验目标地址
func NewFetcher(policy URLPolicy, timeout time.Duration, maxBytes int64) *Fetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	f := &Fetcher{policy: policy, maxBytes: maxBytes}
	f.client = &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.New("stopped after too many redirects")
			}
			return f.policy.Validate(req.Context(), req.URL.String())
		},
	}
	return f
}

// ValidateURL 校验链接是否允许导入
func (f *Fetcher) ValidateURL(ctx context.Context, raw string) error {
	return f.policy.Validate(ctx, raw)
}

// FetchLinkText 抓取链接并抽取文本，返回推断的文件名与文本
func (f *Fetcher) FetchLinkText(ctx context.Context, raw string) (string, string, error) {
	ctx, span := tracer.Start(ctx, "document.FetchLinkText",
		trace.WithAttributes(attribute.String("url", raw)))
	defer span.End()

	if err := f.policy.Validate(ctx, raw); err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return "", "", apperrors.Wrap(err, apperrors.CodeURLRejected, "Invalid URL.")
	}
	for k, v := range fetchHeaders {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		span.RecordError(err)
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return "", "", appErr
		}
		return "", "", apperrors.Wrap(err, apperrors.CodeFetchFailed, "failed to fetch link")
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return "", "", apperrors.Newf(apperrors.CodeFetchFailed,
			"Source denied automated fetch (HTTP %d). Try a raw text/markdown URL (for example raw.githubusercontent.com) or upload the file directly.",
			resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", "", apperrors.Newf(apperrors.CodeFetchFailed, "Fetch failed with HTTP %d.", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", "", apperrors.Wrap(err, apperrors.CodeFetchFailed, "failed to read response body")
	}
	if int64(len(body)) > f.maxBytes {
		return "", "", apperrors.Newf(apperrors.CodePayloadTooLarge, "Fetched content too large. Limit is %d bytes.", f.maxBytes)
	}

	contentType := mediaType(resp.Header.Get("Content-Type"))
	filename := InferFilename(req.URL, contentType)

	var text string
	switch {
	case strings.Contains(contentType, "html"):
		text = HTMLToText(strings.ToValidUTF8(string(body), ""))
	case textLikeContentTypes[contentType]:
		text, err = ExtractText(filename, body)
		if err != nil {
			if !LooksLikeText(body) {
				return "", "", unsupportedContentType(contentType)
			}
			text = strings.ToValidUTF8(string(body), "")
		}
	default:
		return "", "", unsupportedContentType(contentType)
	}

	if strings.TrimSpace(text) == "" {
		return "", "", apperrors.New(apperrors.CodeFetchFailed, "No extractable text from link.")
	}
	return filename, text, nil
}

func unsupportedContentType(contentType string) error {
	if contentType == "" {
		contentType = "unknown"
	}
	return apperrors.Newf(apperrors.CodeUnsupportedContentType, "Unsupported content type: %s", contentType)
}

// mediaType 取 Content-Type 的主类型并转小写
func mediaType(header string) string {
	if header == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(header); err == nil {
		return strings.ToLower(mt)
	}
	return strings.ToLower(strings.TrimSpace(strings.Split(header, ";")[0]))
}

// InferFilename 由 URL 末段推断文件名，扩展名不受支持时按内容类型补全
func InferFilename(u *url.URL, contentType string) string {
	leaf := path.Base(u.Path)
	if leaf == "." || leaf == "/" || leaf == "" {
		leaf = "document"
	}
	if IsSupported(leaf) {
		return leaf
	}
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "pdf"):
		return leaf + ".pdf"
	case strings.Contains(ct, "markdown"):
		return leaf + ".md"
	default:
		return leaf + ".txt"
	}
}

// HTMLToText 去掉 script/style 块与标签，并压缩空白
func HTMLToText(html string) string {
	s := scriptBlock.ReplaceAllString(html, " ")
	s = styleBlock.ReplaceAllString(s, " ")
	s = htmlTag.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// LooksLikeText 前 2048 字节无 NUL 且可打印字符占比超过 85%
func LooksLikeText(raw []byte) bool {
	sample := raw
	if len(sample) > 2048 {
		sample = sample[:2048]
	}
	if len(sample) == 0 {
		return false
	}
	printable := 0
	for _, b := range sample {
		if b == 0 {
			return false
		}
		if b == '\t' || b == '\n' || b == '\r' || (b >= 32 && b <= 126) {
			printable++
		}
	}
	return float64(printable)/float64(len(sample)) > 0.85
}
