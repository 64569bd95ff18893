// Package client 页面 REST 接口的 Go 客户端
//
// 与服务端 /api/pages 路由一一对应：
//   - LoadPage / SavePage：GET / PUT /api/pages/:pageId
//   - ListVersions / CreateVersion / LoadVersion：/api/pages/:pageId/versions
//
// 非 2xx 响应和网络错误统一返回 *errors.TransportError，客户端本身不做重试。
package client

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

	domainErrors "pagebuilder-go-server/domain/errors"
	"pagebuilder-go-server/internal/page"
)

const defaultTimeout = 30 * time.Second

// Client 页面接口客户端，可并发使用
type Client struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
}

// Option 客户端构造选项
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client（测试里用 httptest.Server.Client()）
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithAuthToken Clerk 会话 token，放进 Authorization 头
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = token
	}
}

// NewClient baseURL 形如 http://localhost:8080，不带末尾斜杠
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ========== 响应结构 ==========

// PageResult 加载结果，Version 来自 ETag，保存时可用于 If-Match
type PageResult struct {
	Page    *page.Page
	Version int64
}

// VersionInfo 历史版本摘要
type VersionInfo struct {
	ID        string         `json:"id"`
	PageID    string         `json:"pageId"`
	Label     string         `json:"label"`
	CreatedAt page.Timestamp `json:"createdAt"`
}

type saveResponse struct {
	Success bool  `json:"success"`
	Version int64 `json:"version"`
}

type versionListResponse struct {
	Success bool          `json:"success"`
	Data    []VersionInfo `json:"data"`
}

type versionResponse struct {
	Success bool        `json:"success"`
	Data    VersionInfo `json:"data"`
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
	Message string `json:"message"`
}

// ========== 页面 ==========

// LoadPage GET /api/pages/:pageId
func (c *Client) LoadPage(ctx context.Context, pageID string) (*PageResult, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, pagePath(pageID), nil, nil)
	if err != nil {
		return nil, err
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	p, err := page.FromJSON(body)
	if err != nil {
		return nil, err
	}
	return &PageResult{Page: p, Version: parseETag(resp.Header.Get("ETag"))}, nil
}

// SaveOption 保存选项
type SaveOption func(h http.Header)

// IfMatch 启用乐观锁：服务端版本不一致时返回 409
func IfMatch(version int64) SaveOption {
	return func(h http.Header) {
		if version > 0 {
			h.Set("If-Match", formatETag(version))
		}
	}
}

// SavePage PUT /api/pages/:pageId，body 为页面的 ToJSON 输出
// 返回服务端保存后的版本号
func (c *Client) SavePage(ctx context.Context, p *page.Page, opts ...SaveOption) (int64, error) {
	if p == nil || p.ID == "" {
		return 0, domainErrors.NewValidationError("id", "page id is required")
	}
	body, err := p.ToJSON()
	if err != nil {
		return 0, fmt.Errorf("failed to marshal page: %w", err)
	}

	header := http.Header{}
	for _, opt := range opts {
		opt(header)
	}

	resp, err := c.doRequest(ctx, http.MethodPut, pagePath(p.ID), bytes.NewReader(body), header)
	if err != nil {
		return 0, err
	}

	var out saveResponse
	if err := decodeResponse(resp, &out); err != nil {
		return 0, err
	}
	if v := parseETag(resp.Header.Get("ETag")); v > 0 {
		return v, nil
	}
	return out.Version, nil
}

// ========== 历史版本 ==========

// LoadVersion GET /api/pages/:pageId/versions/:versionId
// 历史快照只读，调用方不应对其做 Manager 修改
func (c *Client) LoadVersion(ctx context.Context, pageID, versionID string) (*page.Page, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, pagePath(pageID)+"/versions/"+url.PathEscape(versionID), nil, nil)
	if err != nil {
		return nil, err
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	return page.FromJSON(body)
}

func (c *Client) ListVersions(ctx context.Context, pageID string) ([]VersionInfo, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, pagePath(pageID)+"/versions", nil, nil)
	if err != nil {
		return nil, err
	}
	var out versionListResponse
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CreateVersion 以服务端当前页面创建快照
func (c *Client) CreateVersion(ctx context.Context, pageID, label string) (*VersionInfo, error) {
	payload, err := json.Marshal(map[string]string{"label": label})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	resp, err := c.doRequest(ctx, http.MethodPost, pagePath(pageID)+"/versions", bytes.NewReader(payload), nil)
	if err != nil {
		return nil, err
	}
	var out versionResponse
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// ========== 底层请求 ==========

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domainErrors.TransportError{Message: err.Error(), Err: err}
	}
	return resp, nil
}

// readBody 读取 2xx 响应体，否则转换为 TransportError
func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domainErrors.TransportError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    "failed to read response",
			Err:        err,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp, body)
	}
	return body, nil
}

func decodeResponse(resp *http.Response, target any) error {
	body, err := readBody(resp)
	if err != nil {
		return err
	}
	if target == nil || resp.StatusCode == http.StatusNoContent || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response, body []byte) *domainErrors.TransportError {
	msg := strings.TrimSpace(string(body))
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil {
		switch {
		case eb.Error != "" && eb.Details != "":
			msg = eb.Error + ": " + eb.Details
		case eb.Error != "":
			msg = eb.Error
		case eb.Message != "":
			msg = eb.Message
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	te := &domainErrors.TransportError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    msg,
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		te.Err = domainErrors.ErrPageNotFound
	case http.StatusConflict:
		te.Err = domainErrors.ErrOptimisticLock
	case http.StatusForbidden:
		te.Err = domainErrors.ErrUnauthorized
	}
	return te
}

func pagePath(pageID string) string {
	return "/api/pages/" + url.PathEscape(pageID)
}

func formatETag(version int64) string {
	return strconv.Quote(strconv.FormatInt(version, 10))
}

// parseETag 接受 "3"、W/"3"、3，无法解析时返回 0
func parseETag(tag string) int64 {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
	tag = strings.Trim(tag, `"`)
	v, err := strconv.ParseInt(tag, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
