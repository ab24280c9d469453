// MockSearcher 的检索接口测试模拟实现。
//
// 支持固定结果、按查询词路由与错误注入场景。
package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/BaSui01/answerflow/search"
	"github.com/BaSui01/answerflow/types"
)

// MockSearcher 是 search.Searcher 的模拟实现
type MockSearcher struct {
	mu sync.RWMutex

	// 默认结果（无路由命中时返回）
	sections []types.RetrievedSection
	err      error

	// 路由规则：查询包含 Contains 子串时返回对应结果
	routes []searchRoute

	// 调用记录
	queries []string
}

type searchRoute struct {
	Contains string
	Sections []types.RetrievedSection
	Err      error
}

// NewMockSearcher 创建新的 MockSearcher
func NewMockSearcher() *MockSearcher {
	return &MockSearcher{}
}

// WithSections 设置默认检索结果
func (m *MockSearcher) WithSections(sections ...types.RetrievedSection) *MockSearcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sections = sections
	return m
}

// WithRoute 注册路由规则：查询包含 contains 子串时返回 sections。
func (m *MockSearcher) WithRoute(contains string, sections ...types.RetrievedSection) *MockSearcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, searchRoute{Contains: contains, Sections: sections})
	return m
}

// WithRouteError 注册路由规则：查询包含 contains 子串时返回错误。
func (m *MockSearcher) WithRouteError(contains string, err error) *MockSearcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, searchRoute{Contains: contains, Err: err})
	return m
}

// WithError 设置所有查询返回错误
func (m *MockSearcher) WithError(err error) *MockSearcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Search 实现 search.Searcher
func (m *MockSearcher) Search(ctx context.Context, query string, filters search.Filters) ([]types.RetrievedSection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries = append(m.queries, query)

	if m.err != nil {
		return nil, m.err
	}

	for _, r := range m.routes {
		if strings.Contains(query, r.Contains) {
			if r.Err != nil {
				return nil, r.Err
			}
			return append([]types.RetrievedSection{}, r.Sections...), nil
		}
	}

	return append([]types.RetrievedSection{}, m.sections...), nil
}

// Queries 获取所有被查询过的文本
func (m *MockSearcher) Queries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.queries...)
}

// QueryCount 获取查询次数
func (m *MockSearcher) QueryCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queries)
}

// Reset 重置调用记录
func (m *MockSearcher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = nil
}

// Section 构造测试用检索结果
func Section(docID, content string, score float64) types.RetrievedSection {
	return types.RetrievedSection{
		DocumentID: docID,
		Chunk:      0,
		Title:      docID,
		Content:    content,
		Score:      score,
		SourceType: "doc",
	}
}
