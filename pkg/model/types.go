package model

import "time"

type SessionID string
type TargetID string

// Verdict 分类器输出的规范化标签
type Verdict string

const (
	VerdictSafe       Verdict = "safe"
	VerdictMalicious  Verdict = "malicious"
	VerdictPhishing   Verdict = "phishing"
	VerdictSuspicious Verdict = "suspicious"
	VerdictUnknown    Verdict = "unknown"
	// VerdictBlocked 不来自分类器，标记被域名黑名单拦截的请求
	VerdictBlocked Verdict = "blocked"
)

// RequestEvent 中立的被拦截请求模型，只在特征提取期间存活
type RequestEvent struct {
	URL       string
	Method    string
	Body      []byte
	Target    TargetID
	Timestamp time.Time
}

// FeatureRecord 单个请求的固定形状特征，构建后不可变，
// 原样发送给分类器并保留在 AlertEntry 中供审计
type FeatureRecord struct {
	Method        string `json:"method"`
	Path          string `json:"path"`
	Body          string `json:"body"`
	SingleQ       int    `json:"single_q"`
	DoubleQ       int    `json:"double_q"`
	Dashes        int    `json:"dashes"`
	Braces        int    `json:"braces"`
	Spaces        int    `json:"spaces"`
	Percentages   int    `json:"percentages"`
	Semicolons    int    `json:"semicolons"`
	AngleBrackets int    `json:"angle_brackets"`
	SpecialChars  int    `json:"special_chars"`
	PathLength    int    `json:"path_length"`
	BodyLength    int    `json:"body_length"`
	BadwordsCount int    `json:"badwords_count"`
}

// URLFeatureRecord 导航 URL 的静态特征，用于钓鱼分析
type URLFeatureRecord struct {
	URLLength     int `json:"url_length"`
	NDots         int `json:"n_dots"`
	NHyphens      int `json:"n_hyphens"`
	NUnderline    int `json:"n_underline"`
	NSlash        int `json:"n_slash"`
	NQuestionmark int `json:"n_questionmark"`
	NEqual        int `json:"n_equal"`
	NAt           int `json:"n_at"`
	NAnd          int `json:"n_and"`
	NExclamation  int `json:"n_exclamation"`
	NSpace        int `json:"n_space"`
	NTilde        int `json:"n_tilde"`
	NComma        int `json:"n_comma"`
	NPlus         int `json:"n_plus"`
	NAsterisk     int `json:"n_asterisk"`
	NHashtag      int `json:"n_hashtag"`
	NDollar       int `json:"n_dollar"`
	NPercent      int `json:"n_percent"`
	NRedirection  int `json:"n_redirection"`
}

// TrafficEntry 流量日志条目，最新在前，上限 50
type TrafficEntry struct {
	Time           string  `json:"time"`
	URL            string  `json:"url"`
	Method         string  `json:"method"`
	Classification Verdict `json:"classification"`
}

// AlertEntry 告警日志条目，仅恶意/钓鱼判定产生，上限 20
type AlertEntry struct {
	ID             int64         `json:"id"`
	Domain         string        `json:"domain"`
	Classification Verdict       `json:"classification"`
	Method         string        `json:"method"`
	Path           string        `json:"path"`
	Features       FeatureRecord `json:"features"`
}

// RecentAlert 告警的轻量摘要，供角标/概览展示，上限 20
type RecentAlert struct {
	Time           string  `json:"time"`
	URL            string  `json:"url"`
	Method         string  `json:"method"`
	Classification Verdict `json:"classification"`
}

// Stats 进程级聚合计数，avgTime 为精确增量均值（毫秒）
type Stats struct {
	Requests int64 `json:"requests"`
	Blocked  int64 `json:"blocked"`
	Alerts   int64 `json:"alerts"`
	AvgTime  int64 `json:"avgTime"`
}

// Snapshot 每次处理完一个事件后持久化并广播的完整状态副本
type Snapshot struct {
	Stats        Stats          `json:"stats"`
	TrafficLog   []TrafficEntry `json:"trafficLog"`
	AlertsLog    []AlertEntry   `json:"alertsLog"`
	RecentAlerts []RecentAlert  `json:"recentAlerts"`
}

// 广播事件类型
const (
	EventStatsUpdate   = "statsUpdate"
	EventOpenAlerts    = "open-alerts"
	EventBlockedUpdate = "blockedUpdate"
	EventMonitorUpdate = "monitorUpdate"
)

// Event 推送给监听方（仪表盘）的广播消息
type Event struct {
	Type      string    `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Target    TargetID  `json:"target,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	// Enabled 不省略零值：关闭与缺省对消费方必须可区分
	Enabled  bool      `json:"enabled"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// TargetInfo 可附加调试目标的描述
type TargetInfo struct {
	ID       TargetID `json:"id"`
	Type     string   `json:"type"`
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Attached bool     `json:"attached"`
}
