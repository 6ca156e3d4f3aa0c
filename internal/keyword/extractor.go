// Package keyword 从岗位描述中提取高频关键词
package keyword

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"resume-match-go/internal/types"
)

const (
	DefaultMinLength = 3
	DefaultTopN      = 50
)

// 默认停用词，包括常见英文虚词、招聘描述里的通用词和残留的 HTML 标签名
var defaultStopWords = []string{
	"and", "the", "is", "in", "it", "to", "a", "of", "for", "on", "with", "as", "at", "by", "an", "or", "if",
	"are", "has", "had", "was", "were", "will", "be", "this", "that", "my", "your", "our", "we", "us", "me",
	"he", "she", "they", "them", "just", "so", "than", "then", "not", "all", "any", "some", "such", "no",
	"nor", "can", "do", "get", "go", "up", "out", "about", "who", "what", "when", "where", "why", "how",
	"job", "role", "company", "experience", "skill", "skills", "work", "team", "position", "candidate",
	"description", "responsibilities", "requirements", "preferred", "qualification", "qualifications",
	"etc", "e.g", "i.e", "br", "p", "li", "div", "span", "ul", "ol", "strong", "em",
}

// DefaultStopWords 返回默认停用词的副本
func DefaultStopWords() []string {
	out := make([]string, len(defaultStopWords))
	copy(out, defaultStopWords)
	return out
}

type options struct {
	minLength int
	topN      int
	stopWords map[string]struct{}
}

// Option 关键词提取选项
type Option func(*options)

// WithMinLength 设置关键词最小长度（按字符计）
func WithMinLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.minLength = n
		}
	}
}

// WithTopN 设置返回的关键词数量上限
func WithTopN(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.topN = n
		}
	}
}

// WithStopWords 追加停用词，大小写不敏感
func WithStopWords(words ...string) Option {
	return func(o *options) {
		for _, w := range words {
			if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
				o.stopWords[w] = struct{}{}
			}
		}
	}
}

// Extract 统计文本中的关键词频次。
// 结果按频次降序，频次相同时按首次出现的位置排序，相同输入总是得到相同输出。
func Extract(text string, opts ...Option) types.KeywordList {
	o := resolve(opts)

	counts := make(map[string]int)
	var order []string
	for _, token := range Tokenize(text) {
		if utf8.RuneCountInString(token) < o.minLength {
			continue
		}
		if _, stop := o.stopWords[token]; stop {
			continue
		}
		if counts[token] == 0 {
			order = append(order, token)
		}
		counts[token]++
	}

	list := make(types.KeywordList, 0, len(order))
	for _, token := range order {
		list = append(list, types.Keyword{Token: token, Frequency: counts[token]})
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Frequency > list[j].Frequency
	})
	return list.Top(o.topN)
}

func resolve(opts []Option) *options {
	o := &options{
		minLength: DefaultMinLength,
		topN:      DefaultTopN,
		stopWords: make(map[string]struct{}, len(defaultStopWords)),
	}
	for _, w := range defaultStopWords {
		o.stopWords[w] = struct{}{}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Fingerprint 描述选项生效后的提取参数，结果等价的两组选项得到相同的值，
// 用于区分不同配置下缓存的关键词列表
func Fingerprint(opts ...Option) string {
	o := resolve(opts)
	words := make([]string, 0, len(o.stopWords))
	for w := range o.stopWords {
		words = append(words, w)
	}
	sort.Strings(words)
	return fmt.Sprintf("min=%d;top=%d;stop=%s", o.minLength, o.topN, strings.Join(words, ","))
}

// Tokenize 转小写后按非字母数字字符切分
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
