package features

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"websentry/pkg/model"
)

// badwords SQL 注入指示词字典，按出现与否计数（非频次）
var badwords = []string{
	"sleep", "uid", "select", "waitfor", "delay",
	"system", "union", "order by", "group by",
	"admin", "drop", "script", "insert", "update",
	"delete", "xp_", "or 1=1",
}

const specialChars = "@#$^&*"

// ExtractRequest 从被拦截请求构建特征记录。纯函数，任何畸形输入
// 都退化为空串/零值，绝不失败
func ExtractRequest(ev *model.RequestEvent) model.FeatureRecord {
	method := ""
	rawURL := ""
	var body []byte
	if ev != nil {
		method = ev.Method
		rawURL = ev.URL
		body = ev.Body
	}

	path := ""
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}

	text := decodeBody(body)

	return model.FeatureRecord{
		Method:        method,
		Path:          path,
		Body:          text,
		SingleQ:       strings.Count(text, "'"),
		DoubleQ:       strings.Count(text, `"`),
		Dashes:        strings.Count(text, "--"),
		Braces:        strings.Count(text, "{") + strings.Count(text, "}"),
		Spaces:        countSpaces(text),
		Percentages:   strings.Count(text, "%"),
		Semicolons:    strings.Count(text, ";"),
		AngleBrackets: strings.Count(text, "<") + strings.Count(text, ">"),
		SpecialChars:  countAny(text, specialChars),
		PathLength:    len(path),
		BodyLength:    len(text),
		BadwordsCount: countBadwords(text),
	}
}

// ExtractURL 从完整 URL 构建钓鱼分析特征。redirection 由重定向
// 追踪器提供，本次导航消费一次后即清零
func ExtractURL(rawURL string, redirection int) model.URLFeatureRecord {
	return model.URLFeatureRecord{
		URLLength:     len(rawURL),
		NDots:         strings.Count(rawURL, "."),
		NHyphens:      strings.Count(rawURL, "-"),
		NUnderline:    strings.Count(rawURL, "_"),
		NSlash:        strings.Count(rawURL, "/"),
		NQuestionmark: strings.Count(rawURL, "?"),
		NEqual:        strings.Count(rawURL, "="),
		NAt:           strings.Count(rawURL, "@"),
		NAnd:          strings.Count(rawURL, "&"),
		NExclamation:  strings.Count(rawURL, "!"),
		NSpace:        strings.Count(rawURL, " "),
		NTilde:        strings.Count(rawURL, "~"),
		NComma:        strings.Count(rawURL, ","),
		NPlus:         strings.Count(rawURL, "+"),
		NAsterisk:     strings.Count(rawURL, "*"),
		NHashtag:      strings.Count(rawURL, "#"),
		NDollar:       strings.Count(rawURL, "$"),
		NPercent:      strings.Count(rawURL, "%"),
		NRedirection:  redirection,
	}
}

// decodeBody 按 UTF-8 解码原始请求体，解码失败视为空
func decodeBody(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	if !utf8.Valid(raw) {
		return ""
	}
	return string(raw)
}

func countSpaces(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

func countAny(s, chars string) int {
	n := 0
	for _, r := range s {
		if strings.ContainsRune(chars, r) {
			n++
		}
	}
	return n
}

func countBadwords(s string) int {
	lower := strings.ToLower(s)
	n := 0
	for _, w := range badwords {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n
}
