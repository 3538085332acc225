package cdp

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/mafredri/cdp/protocol/fetch"

	"websentry/pkg/model"
)

// toRequestEvent 将 CDP 拦截事件转换为中立请求模型
func toRequestEvent(target model.TargetID, ev *fetch.RequestPausedReply) *model.RequestEvent {
	var body []byte
	if ev.Request.PostData != nil {
		body = []byte(*ev.Request.PostData)
	}
	return &model.RequestEvent{
		URL:       ev.Request.URL,
		Method:    ev.Request.Method,
		Body:      body,
		Target:    target,
		Timestamp: time.Now(),
	}
}

func encodeURLFeatures(uf model.URLFeatureRecord) string {
	b, err := json.Marshal(uf)
	if err != nil {
		return ""
	}
	return string(b)
}
