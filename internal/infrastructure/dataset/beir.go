// Package dataset 下载并解压公开检索评测数据集
package dataset

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"portfolio-rag-api/pkg/logger"
)

// BEIRBaseURL BEIR 数据集下载地址
const BEIRBaseURL = "https://public.ukp.informatik.tu-darmstadt.de/thakur/BEIR/datasets"

// Downloader 下载 BEIR 压缩包，已存在时直接复用
type Downloader struct {
	baseURL    string
	httpClient *http.Client
}

// NewDownloader baseURL 为空时使用 BEIRBaseURL
func NewDownloader(baseURL string) *Downloader {
	if baseURL == "" {
		baseURL = BEIRBaseURL
	}
	return &Downloader{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Download 保存到 rawDir/<dataset>.zip
func (d *Downloader) Download(ctx context.Context, name, rawDir string) (string, error) {
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", rawDir, err)
	}
	zipPath := filepath.Join(rawDir, name+".zip")
	if _, err := os.Stat(zipPath); err == nil {
		return zipPath, nil
	}

	url := d.baseURL + "/" + name + ".zip"
	logger.Info(ctx, "downloading dataset", "dataset", name, "url", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("failed to download %s: status %d", url, resp.StatusCode)
	}

	// 先写临时文件，避免中断后留下半个压缩包被复用
	tmp := zipPath + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("failed to save %s: %w", zipPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return zipPath, os.Rename(tmp, zipPath)
}

// Extract 解压到 outDir，返回 outDir/<压缩包名>，不存在时返回 outDir
func Extract(zipPath, outDir string) (string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", zipPath, err)
	}
	defer zr.Close()

	root, err := filepath.Abs(outDir)
	if err != nil {
		return "", err
	}
	for _, zf := range zr.File {
		target := filepath.Join(root, zf.Name)
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return "", fmt.Errorf("illegal path in archive: %s", zf.Name)
		}
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", err
			}
			continue
		}
		if err := extractFile(zf, target); err != nil {
			return "", err
		}
	}

	dir := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(zipPath), ".zip"))
	if st, err := os.Stat(dir); err == nil && st.IsDir() {
		return dir, nil
	}
	return outDir, nil
}

func extractFile(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", zf.Name, err)
	}
	return out.Close()
}
