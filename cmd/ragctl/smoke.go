package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type smokeCall struct {
	method string
	path   string
	body   any
}

var smokeCalls = []smokeCall{
	{method: http.MethodGet, path: "/health"},
	{method: http.MethodPost, path: "/query", body: map[string]any{"question": "What stack does this project use?", "top_k": 5}},
	{method: http.MethodPost, path: "/query", body: map[string]any{"question": "What metrics are tracked?", "top_k": 5}},
	{method: http.MethodGet, path: "/metrics/summary"},
}

func newSmokeCmd() *cobra.Command {
	var (
		baseURL string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Call health, query and metrics endpoints of a running API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := &http.Client{Timeout: timeout}
			if failed := runSmoke(cmd.Context(), cmd.OutOrStdout(), client, baseURL); failed > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "http://127.0.0.1:8000", "API base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "per request timeout")
	return cmd
}

// runSmoke 逐个调用并打印结果，返回非 2xx 或请求失败的数量
func runSmoke(ctx context.Context, w io.Writer, client *http.Client, baseURL string) int {
	baseURL = strings.TrimRight(baseURL, "/")
	failed := 0
	seen := map[string]int{}
	for _, call := range smokeCalls {
		title := call.method + " " + call.path
		seen[title]++
		if call.method == http.MethodPost && call.path == "/query" {
			title = fmt.Sprintf("%s #%d", title, seen[title])
		}

		status, body, err := doSmokeCall(ctx, client, baseURL, call)
		fmt.Fprintf(w, "\n=== %s ===\n", title)
		if err != nil {
			failed++
			fmt.Fprintln(w, err.Error())
			continue
		}
		if status/100 != 2 {
			failed++
		}
		_ = printJSON(w, map[string]any{"status_code": status, "body": body})
	}
	return failed
}

func doSmokeCall(ctx context.Context, client *http.Client, baseURL string, call smokeCall) (int, any, error) {
	var reader io.Reader
	if call.body != nil {
		raw, err := json.Marshal(call.body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, call.method, baseURL+call.path, reader)
	if err != nil {
		return 0, nil, err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var v any
		if json.Unmarshal(raw, &v) == nil {
			return resp.StatusCode, v, nil
		}
	}
	return resp.StatusCode, string(raw), nil
}
