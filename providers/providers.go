// Package providers contains concrete llm.Provider implementations.
// 编排层只依赖 llm.Provider 接口，这里提供开箱即用的 HTTP 适配。
package providers

import "github.com/BaSui01/answerflow/llm"

// ChooseModel selects the model to use based on priority:
// request model first, then the configured model, then the provider default.
func ChooseModel(req *llm.ChatRequest, configModel string, defaultModel string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	if configModel != "" {
		return configModel
	}
	return defaultModel
}
