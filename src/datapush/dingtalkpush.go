package datapush

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// 常量定义
const (
	RETRY_TIMES    = 5
	RETRY_INTERVAL = 2 * time.Second
)

// 钉钉 API 响应结构体
type DingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Robot 钉钉群机器人
type Robot struct {
	URL      string
	Keyword  string // 机器人安全设置中的关键词，消息内容必须包含它
	Client   *http.Client
	Retries  int
	Interval time.Duration
}

// NewRobot 创建群机器人推送
func NewRobot(url, keyword string) *Robot {
	return &Robot{
		URL:      url,
		Keyword:  keyword,
		Client:   &http.Client{Timeout: 10 * time.Second},
		Retries:  RETRY_TIMES,
		Interval: RETRY_INTERVAL,
	}
}

// SendText 发送文本消息
func (r *Robot) SendText(ctx context.Context, content string) error {
	payload := map[string]interface{}{
		"msgtype": "text",
		"text": map[string]string{
			"content": r.withKeyword(content),
		},
	}
	return r.send(ctx, payload)
}

// SendMarkdown 发送markdown消息
func (r *Robot) SendMarkdown(ctx context.Context, title, text string) error {
	payload := map[string]interface{}{
		"msgtype": "markdown",
		"markdown": map[string]string{
			"title": r.withKeyword(title),
			"text":  r.withKeyword(text),
		},
	}
	return r.send(ctx, payload)
}

func (r *Robot) withKeyword(s string) string {
	if r.Keyword == "" || strings.Contains(s, r.Keyword) {
		return s
	}
	return fmt.Sprintf("[%s] %s", r.Keyword, s)
}

func (r *Robot) send(ctx context.Context, payload map[string]interface{}) error {
	if r.URL == "" {
		return fmt.Errorf("未配置机器人webhook地址")
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化请求体失败: %v", err)
	}
	return retry(ctx, func() error {
		return r.post(ctx, payloadBytes)
	}, r.Retries, r.Interval)
}

func (r *Robot) post(ctx context.Context, payloadBytes []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("创建请求失败: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应失败: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("响应状态码 %d: %s", resp.StatusCode, respBody)
	}

	var result DingTalkResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("解析响应失败: %v", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("发送消息失败: %s", result.ErrMsg)
	}
	return nil
}

// 重试函数
func retry(ctx context.Context, fn func() error, times int, interval time.Duration) error {
	if times <= 0 {
		times = 1
	}
	var err error
	for i := 0; i < times; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < times-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return fmt.Errorf("重试 %d 次后失败: %v", times, err)
}
