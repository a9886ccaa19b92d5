// Package callback 注册 eino 全局回调：LLM 调用指标、追踪与用量流水
package callback

import (
	"sync"

	einocallbacks "github.com/cloudwego/eino/callbacks"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"

	"z-song-ai-api/internal/domain/service"
)

var initOnce sync.Once

// Init 注册 Eino 全局 callbacks（进程级一次）。
func Init(usageRecorder service.LLMUsageRecorder) {
	initOnce.Do(func() {
		handler := cbtemplate.NewHandlerHelper().
			ChatModel(newChatModelCallbackHandler(usageRecorder)).
			Handler()
		einocallbacks.AppendGlobalHandlers(handler)
	})
}
