// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carequeue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPRemote talks to a carestore server over its JSON HTTP API.
type HTTPRemote struct {
	BaseURL string
	Token   func(context.Context) (string, error) // returns JWT
	HTTP    *http.Client
	// IsOnline, when set, short-circuits requests with ErrOffline while it reports false.
	IsOnline func() bool
}

// NewHTTPRemote creates a remote for baseURL.
func NewHTTPRemote(baseURL string, tok func(context.Context) (string, error)) *HTTPRemote {
	return &HTTPRemote{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   tok,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type listResponse struct {
	Documents []Document `json:"documents"`
	HasMore   bool       `json:"has_more"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Write PUTs doc at {base}/documents/{path}.
func (r *HTTPRemote) Write(ctx context.Context, path string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	endpoint := r.BaseURL + "/documents/" + escapePath(path)
	resp, err := r.do(ctx, http.MethodPut, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return decodeRemoteError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// List GETs one page from {base}/documents.
func (r *HTTPRemote) List(ctx context.Context, req ListRequest) ([]Document, error) {
	q := url.Values{}
	q.Set("collection", req.Collection)
	if req.OrderBy != "" {
		q.Set("order_by", req.OrderBy)
	}
	if req.Desc {
		q.Set("desc", "true")
	}
	if req.After != "" {
		q.Set("after", req.After)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	for _, k := range sortedKeys(req.Filters) {
		q.Set("f."+k, req.Filters[k])
	}

	resp, err := r.do(ctx, http.MethodGet, r.BaseURL+"/documents?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeRemoteError(resp)
	}
	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode list response: %w", err)
	}
	return out.Documents, nil
}

func (r *HTTPRemote) do(ctx context.Context, method, endpoint string, body []byte) (*http.Response, error) {
	if r.IsOnline != nil && !r.IsOnline() {
		return nil, ErrOffline
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.Token != nil {
		token, err := r.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get auth token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := r.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	return resp, nil
}

func decodeRemoteError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	re := &RemoteError{Status: resp.StatusCode, Code: codeForStatus(resp.StatusCode)}
	var er errorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		if isKnownCode(er.Error) {
			re.Code = er.Error
		}
		re.Message = er.Message
	} else {
		re.Message = strings.TrimSpace(string(body))
	}
	return re
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return CodeUnauthenticated
	case http.StatusForbidden:
		return CodePermissionDenied
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusMethodNotAllowed:
		return CodeInvalidArgument
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return CodeUnavailable
	case http.StatusGatewayTimeout:
		return CodeDeadlineExceeded
	default:
		return CodeInternal
	}
}

func isKnownCode(code string) bool {
	switch code {
	case CodePermissionDenied, CodeUnauthenticated, CodeUnavailable, CodeDeadlineExceeded,
		CodeInvalidArgument, CodeNotFound, CodeInternal:
		return true
	}
	return false
}

func escapePath(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
