// Package llm 提供统一的 LLM 调用层：Provider 接口、主/快双模型 Gateway、
// 重试与限流包装，以及结构化输出（行列表、yes/no 判定、JSON 子问题列表）的
// 宽容解析。解析失败一律降级为保守默认值，不向上抛出。
package llm
