package asyncactions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/LENAX/async-actions/pkg/api/dto"
)

// Client async-actions HTTP API客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New 创建客户端
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ========== Action API ==========

// ListActions 列出已注册的操作
func (c *Client) ListActions() (*dto.ListResponse[dto.ActionSummary], error) {
	var resp dto.APIResponse[dto.ListResponse[dto.ActionSummary]]
	if err := c.get("/api/v1/actions", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// RunAction 对一批目标运行操作
func (c *Client) RunAction(name string, req dto.RunActionRequest) (*dto.RunActionResponse, error) {
	var resp dto.APIResponse[dto.RunActionResponse]
	if err := c.post("/api/v1/actions/"+url.PathEscape(name)+"/run", req, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ========== Task API ==========

// GetTask 获取任务详情
func (c *Client) GetTask(taskID string) (*dto.TaskStateDetail, error) {
	var resp dto.APIResponse[dto.TaskStateDetail]
	if err := c.get("/api/v1/tasks/"+url.PathEscape(taskID), &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ListTargetTasks 列出目标对象的任务
func (c *Client) ListTargetTasks(typeTag, id string, limit, offset int) (*dto.ListResponse[dto.TaskStateSummary], error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	path := fmt.Sprintf("/api/v1/targets/%s/%s/tasks", url.PathEscape(typeTag), url.PathEscape(id))
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp dto.APIResponse[dto.ListResponse[dto.TaskStateSummary]]
	if err := c.get(path, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// GetResult 查询一次提交的结果
func (c *Client) GetResult(id string) (*dto.GroupResultDetail, error) {
	var resp dto.APIResponse[dto.GroupResultDetail]
	if err := c.get("/api/v1/results/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ========== Lock API ==========

// ListLocks 列出当前持有的锁
func (c *Client) ListLocks() (*dto.ListResponse[dto.LockSummary], error) {
	var resp dto.APIResponse[dto.ListResponse[dto.LockSummary]]
	if err := c.get("/api/v1/locks", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

// ReleaseLock 手动释放锁
func (c *Client) ReleaseLock(checksum string) error {
	var resp dto.APIResponse[any]
	if err := c.delete("/api/v1/locks/"+url.PathEscape(checksum), &resp); err != nil {
		return err
	}
	if resp.Code != 0 {
		return errors.New(resp.Message)
	}
	return nil
}

// ========== Health API ==========

// Health 健康检查
func (c *Client) Health() (*dto.HealthResponse, error) {
	var resp dto.APIResponse[dto.HealthResponse]
	if err := c.get("/health", &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.New(resp.Message)
	}
	return &resp.Data, nil
}

func (c *Client) get(path string, result interface{}) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp, result)
}

func (c *Client) post(path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", reqBody)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp, result)
}

func (c *Client) delete(path string, result interface{}) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp, result)
}

func (c *Client) parseResponse(resp *http.Response, result interface{}) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("解析响应失败(HTTP %d): %w, body: %s", resp.StatusCode, err, string(body))
	}

	return nil
}
