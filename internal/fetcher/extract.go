package fetcher

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// 与正文无关的元素，连同子节点一起丢弃
var droppedTags = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Nav: true, atom.Footer: true, atom.Header: true,
	atom.Aside: true, atom.Form: true, atom.Iframe: true, atom.Noscript: true,
}

var (
	divClassRe     = regexp.MustCompile(`(?i)job-description|jobdescription|description|content|jobDetails|jobdetails`)
	articleClassRe = regexp.MustCompile(`(?i)job-description|jobdescription|content`)
	idRe           = regexp.MustCompile(`(?i)jobDescription|jobdescription|content`)
)

// containerMatchers 按优先级排列的正文容器
var containerMatchers = []func(n *html.Node) bool{
	func(n *html.Node) bool { return n.DataAtom == atom.Div && divClassRe.MatchString(attr(n, "class")) },
	func(n *html.Node) bool { return n.DataAtom == atom.Article && articleClassRe.MatchString(attr(n, "class")) },
	func(n *html.Node) bool { return idRe.MatchString(attr(n, "id")) },
	func(n *html.Node) bool { return n.DataAtom == atom.Div && attr(n, "role") == "main" },
	func(n *html.Node) bool { return n.DataAtom == atom.Main },
	func(n *html.Node) bool { return n.DataAtom == atom.Body },
}

// ExtractText 解析 HTML，依次尝试正文容器，保留最长的文本，超过 minContentLength 时立即采用
func ExtractText(r io.Reader, minContentLength int) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoContent, err)
	}

	best := ""
	for _, match := range containerMatchers {
		node := findFirst(doc, match)
		if node == nil {
			continue
		}
		text := nodeText(node)
		if len(text) > len(best) {
			best = text
		}
		if len(best) > minContentLength {
			break
		}
	}

	if strings.TrimSpace(best) == "" {
		return "", ErrNoContent
	}
	return best, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// findFirst 按文档顺序查找第一个匹配的元素，跳过被丢弃的子树
func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode {
		if droppedTags[n.DataAtom] {
			return nil
		}
		if match(n) {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

// nodeText 收集文本节点，每段去掉首尾空白后按行拼接
func nodeText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if droppedTags[n.DataAtom] {
				return
			}
		case html.TextNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
			return
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(parts, "\n")
}
