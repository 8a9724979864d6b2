package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"sitecheck/config"
)

// DefaultBaseURL is the Volcengine Ark OpenAI-compatible endpoint.
const DefaultBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

// LLMResult reports one rewrite attempt (or the reason none was made).
// The deterministic draft stays authoritative unless Used is true.
type LLMResult struct {
	Enabled    bool   `json:"enabled"`
	Configured bool   `json:"configured"`
	Attempted  bool   `json:"attempted"`
	Used       bool   `json:"used"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	BaseURL    string `json:"baseUrl"`
	Answer     string `json:"answer,omitempty"`
	Error      string `json:"error,omitempty"`
	TimeoutMs  int64  `json:"timeoutMs,omitempty"`
	ElapsedMs  int64  `json:"elapsedMs,omitempty"`
}

// RewriteClient asks the LLM to polish a deterministic draft without
// changing any fact in it. Single attempt, fail closed: any problem leaves
// the draft untouched.
type RewriteClient struct {
	resolver *config.AIResolver
	client   *http.Client
}

func NewRewriteClient(resolver *config.AIResolver) *RewriteClient {
	dialer := &net.Dialer{Timeout: resolver.ConnectTimeout()}
	return &RewriteClient{
		resolver: resolver,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				TLSHandshakeTimeout: resolver.ConnectTimeout(),
			},
		},
	}
}

var rewriteSystemPrompt = strings.Join([]string{
	"你是建筑质量巡检/验收数据助手。",
	"你只做‘改写润色’，不得改变事实。",
	"硬性规则：",
	"1) 绝对禁止编造/新增任何数字、条数、楼栋、楼层、状态(open/closed)、严重程度。",
	"2) 规则版草稿回答里的所有阿拉伯数字(0-9)必须原样保留；不得把非零改成 0。",
	"3) 若无法严格遵守，请原样输出规则版草稿回答，不要新增结论。",
	"4) 不要输出 markdown 代码块；不要输出多余解释。",
}, "\n")

type rewriteMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type rewriteRequest struct {
	Model       string           `json:"model"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	Messages    []rewriteMessage `json:"messages"`
}

type rewriteResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// TryRewrite sends the draft and a trimmed facts view to the model.
// enabledOverride lets a client switch the LLM off for one request.
func (c *RewriteClient) TryRewrite(ctx context.Context, enabledOverride *bool, query, draft string, factsView any) LLMResult {
	apiKey := c.resolver.APIKey()
	model := c.resolver.Model()
	baseURL := c.resolver.BaseURL()
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	enabled := c.resolver.Enabled()
	if enabledOverride != nil {
		enabled = *enabledOverride
	}
	configured := apiKey != "" && model != ""

	res := LLMResult{
		Enabled:    enabled,
		Configured: configured,
		Provider:   "doubao",
		Model:      model,
		BaseURL:    baseURL,
	}

	if !enabled {
		if enabledOverride != nil {
			res.Error = "disabled_by_client"
		}
		return res
	}
	if !configured {
		res.Error = "missing api_key/model"
		return res
	}

	timeout := c.resolver.RequestTimeout()
	res.TimeoutMs = timeout.Milliseconds()
	start := time.Now()

	factsJSON, err := json.MarshalIndent(factsView, "", "  ")
	if err != nil {
		factsJSON = []byte("{}")
	}

	user := "用户问题：" + query +
		"\n\n已计算 facts_view(JSON)：\n" + string(factsJSON) +
		"\n\n规则版草稿回答：\n" + draft +
		"\n\n任务：在不改变任何事实/数字的前提下，把‘规则版草稿回答’改写得更自然；" +
		"建议必须从草稿或 facts_view 推导，不允许新增事实。"

	body, err := json.Marshal(rewriteRequest{
		Model:       model,
		Temperature: 0.0,
		MaxTokens:   256,
		Messages: []rewriteMessage{
			{Role: "system", Content: rewriteSystemPrompt},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		res.Error = "json_encode_failed"
		res.ElapsedMs = elapsedMs(start)
		return res
	}

	url := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/chat/completions"
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		res.Error = "request_failed"
		res.ElapsedMs = elapsedMs(start)
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res.Attempted = true
	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			res.Error = "timeout"
		} else {
			res.Error = "request_failed"
		}
		res.ElapsedMs = elapsedMs(start)
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.Error = fmt.Sprintf("http_%d", resp.StatusCode)
		res.ElapsedMs = elapsedMs(start)
		return res
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(err) {
			res.Error = "timeout"
		} else {
			res.Error = "request_failed"
		}
		res.ElapsedMs = elapsedMs(start)
		return res
	}

	var parsed rewriteResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		res.Error = "parse_failed"
		res.ElapsedMs = elapsedMs(start)
		return res
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		res.Error = "empty_response"
		res.ElapsedMs = elapsedMs(start)
		return res
	}

	res.Used = true
	res.Answer = strings.TrimSpace(parsed.Choices[0].Message.Content)
	res.ElapsedMs = elapsedMs(start)
	return res
}

// Status reports enable/config state without touching the network.
func (c *RewriteClient) Status(enabledOverride *bool, reason string) LLMResult {
	baseURL := c.resolver.BaseURL()
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	enabled := c.resolver.Enabled()
	if enabledOverride != nil {
		enabled = *enabledOverride
	}

	res := LLMResult{
		Enabled:    enabled,
		Configured: c.resolver.APIKey() != "" && c.resolver.Model() != "",
		Provider:   "doubao",
		Model:      c.resolver.Model(),
		BaseURL:    baseURL,
		Error:      strings.TrimSpace(reason),
	}
	if !enabled && enabledOverride != nil {
		res.Error = "disabled_by_client"
	}
	return res
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func elapsedMs(start time.Time) int64 {
	ms := time.Since(start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
