package classifier

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"websentry/internal/logger"
	"websentry/pkg/model"
)

// predictionPath 分类器响应中判定标签的位置
const predictionPath = "results.stacked.prediction"

// Result 一次分类调用的结果。Available 为 false 表示后端不可达或
// 响应不可解析，此时 Verdict 无意义；Elapsed 始终为完整往返耗时
type Result struct {
	Verdict   model.Verdict
	Elapsed   time.Duration
	Available bool
}

// Client 远程分类服务客户端。无重试无退避，单次 POST，失败即
// Unavailable。并发调用之间只共享 http.Client
type Client struct {
	endpoint    string
	urlEndpoint string
	hc          *http.Client
	log         logger.Logger
}

// New 创建分类客户端，timeout 约束整个往返（含响应体读取）
func New(endpoint, urlEndpoint string, timeout time.Duration, l logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if l == nil {
		l = logger.NewNop()
	}
	return &Client{
		endpoint:    endpoint,
		urlEndpoint: urlEndpoint,
		hc:          &http.Client{Timeout: timeout},
		log:         l,
	}
}

// URLAnalysisEnabled 是否配置了导航 URL 分析端点
func (c *Client) URLAnalysisEnabled() bool {
	return c.urlEndpoint != ""
}

// Classify 将请求特征发给分类器并返回规范化判定
func (c *Client) Classify(ctx context.Context, fr model.FeatureRecord) Result {
	return c.post(ctx, c.endpoint, fr)
}

// ClassifyURL 将导航 URL 特征发给钓鱼分析端点。端点未配置时直接
// 返回 Unavailable
func (c *Client) ClassifyURL(ctx context.Context, uf model.URLFeatureRecord) Result {
	if c.urlEndpoint == "" {
		return Result{Verdict: model.VerdictUnknown}
	}
	return c.post(ctx, c.urlEndpoint, uf)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) Result {
	start := time.Now()

	body, err := json.Marshal(payload)
	if err != nil {
		c.log.Err(err, "序列化特征失败")
		return Result{Verdict: model.VerdictUnknown, Elapsed: time.Since(start)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		c.log.Err(err, "构建分类请求失败", "endpoint", endpoint)
		return Result{Verdict: model.VerdictUnknown, Elapsed: time.Since(start)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Debug("分类后端不可达", "endpoint", endpoint, "error", err)
		return Result{Verdict: model.VerdictUnknown, Elapsed: time.Since(start)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	elapsed := time.Since(start)
	if err != nil {
		c.log.Debug("读取分类响应失败", "error", err)
		return Result{Verdict: model.VerdictUnknown, Elapsed: elapsed}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Debug("分类后端返回非 2xx", "status", resp.StatusCode)
		return Result{Verdict: model.VerdictUnknown, Elapsed: elapsed}
	}
	if !gjson.ValidBytes(raw) {
		c.log.Debug("分类响应不是合法 JSON")
		return Result{Verdict: model.VerdictUnknown, Elapsed: elapsed}
	}

	prediction := gjson.GetBytes(raw, predictionPath).String()
	return Result{
		Verdict:   Normalize(prediction),
		Elapsed:   elapsed,
		Available: true,
	}
}

// Normalize 判定标签的唯一规范化入口：大小写不敏感，bad 与
// malicious 折叠为恶意层级，未识别形状一律 unknown
func Normalize(label string) model.Verdict {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "good", "safe", "benign":
		return model.VerdictSafe
	case "bad", "malicious":
		return model.VerdictMalicious
	case "phishing":
		return model.VerdictPhishing
	case "suspicious":
		return model.VerdictSuspicious
	default:
		return model.VerdictUnknown
	}
}
