package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// doRequest issues an HTTP call against baseURL+path, attaching the API key
// when set, and returns the decoded JSON response body alongside the raw
// status code. A non-2xx status is not itself an error: callers print the
// body either way, matching a smoke-test client's "show me what happened"
// posture rather than a library's "return Go errors" posture.
func doRequest(method, path string, body []byte) (int, map[string]any, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, strings.TrimRight(baseURL, "/")+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}

	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return resp.StatusCode, nil, fmt.Errorf("decode response: %w (body: %s)", err, raw)
		}
	}
	return resp.StatusCode, decoded, nil
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(out))
}
