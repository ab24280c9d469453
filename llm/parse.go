package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/BaSui01/answerflow/types"
)

var (
	listNumbering = regexp.MustCompile(`^\s*(?:[-*•]|\d+[\.\)、])\s*`)
	jsonArrayPart = regexp.MustCompile(`(?s)\[.*\]`)
)

// ParseLines 将模型输出解析为去编号、去重的行列表，最多保留 max 条
// （max <= 0 表示不限制）。输出为空时返回空切片，从不报错。
func ParseLines(text string, max int) []string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	out := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(listNumbering.ReplaceAllString(strings.TrimSpace(line), ""))
		line = strings.Trim(line, `"`)
		if line == "" {
			continue
		}
		key := strings.ToLower(line)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, line)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

// ParseVerdict 解析二元判定输出。无法识别时返回错误，由调用点按自身
// 策略选择默认值（校验默认排除、评分默认不合格）。
func ParseVerdict(text string) (types.Verdict, error) {
	norm := strings.ToLower(strings.TrimSpace(text))
	norm = strings.Trim(norm, `."'!`)

	switch {
	case norm == "yes" || strings.HasPrefix(norm, "yes"):
		return types.VerdictYes, nil
	case norm == "no" || strings.HasPrefix(norm, "no"):
		return types.VerdictNo, nil
	}
	return "", types.NewError(types.ErrParseFailure, "unrecognized verdict: "+truncate(text, 80))
}

// DecomposedQuestion 结构化分解输出中的一条子问题。
type DecomposedQuestion struct {
	Question    string `json:"question"`
	SearchQuery string `json:"search_query,omitempty"`
}

// ParseSubQuestions 解析分解输出：优先按 JSON 数组解析，失败时退化为
// 行列表解析（每行一个子问题，检索词等于子问题本身）。完全无法解析时
// 返回错误，调用点降级为"原问题即唯一子问题"。
func ParseSubQuestions(text string, max int) ([]DecomposedQuestion, error) {
	if raw := jsonArrayPart.FindString(text); raw != "" {
		var parsed []DecomposedQuestion
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			out := make([]DecomposedQuestion, 0, len(parsed))
			for _, q := range parsed {
				q.Question = strings.TrimSpace(q.Question)
				if q.Question == "" {
					continue
				}
				if strings.TrimSpace(q.SearchQuery) == "" {
					q.SearchQuery = q.Question
				}
				out = append(out, q)
				if max > 0 && len(out) >= max {
					break
				}
			}
			if len(out) > 0 {
				return out, nil
			}
		}
	}

	lines := ParseLines(text, max)
	if len(lines) == 0 {
		return nil, types.NewError(types.ErrParseFailure, "no sub-questions in output")
	}
	out := make([]DecomposedQuestion, 0, len(lines))
	for _, line := range lines {
		out = append(out, DecomposedQuestion{Question: line, SearchQuery: line})
	}
	return out, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
