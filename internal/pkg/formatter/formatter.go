package formatter

import (
	"regexp"
	"strconv"
	"strings"
)

// BlockType 内容块类型
type BlockType string

const (
	BlockMarkdown  BlockType = "markdown"
	BlockList      BlockType = "list"
	BlockStep      BlockType = "step"
	BlockEquation  BlockType = "equation"
	BlockExample   BlockType = "example"
	BlockNote      BlockType = "note"
	BlockAnswer    BlockType = "answer"
	BlockParagraph BlockType = "paragraph"
)

// Run 一段带样式的行内文本
type Run struct {
	Text   string `json:"text"`
	Bold   bool   `json:"bold,omitempty"`
	Italic bool   `json:"italic,omitempty"`
}

// Block 一个段落对应一个块
type Block struct {
	Type    BlockType `json:"type"`
	Text    string    `json:"text,omitempty"`
	Number  int       `json:"number,omitempty"`
	Ordered bool      `json:"ordered,omitempty"`
	Items   []string  `json:"items,omitempty"`
	Heading int       `json:"heading,omitempty"`
	Runs    []Run     `json:"runs,omitempty"`
}

var (
	paragraphSep = regexp.MustCompile(`\n[ \t]*\n`)

	boldStars   = regexp.MustCompile(`\*\*[^*\n]+\*\*`)
	boldUnders  = regexp.MustCompile(`__[^_\n]+__`)
	italicStar  = regexp.MustCompile(`(^|[^*])\*[^*\s][^*\n]*\*`)
	headingLine = regexp.MustCompile(`^(#{1,6})\s+`)

	unorderedItem = regexp.MustCompile(`^(?:[-•]|\*\s)\s*`)
	orderedItem   = regexp.MustCompile(`^\d+[.)]\s*`)

	stepPrefix = regexp.MustCompile(`(?i)^step\s*(\d+)\s*[:.)\-]\s*`)
)

var labelled = []struct {
	prefix string
	typ    BlockType
}{
	{"example:", BlockExample},
	{"note:", BlockNote},
	{"answer:", BlockAnswer},
}

// Format 把 AI 返回的文本按空行切分为段落，每个段落按固定优先级归类为一个块
func Format(text string) []Block {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var blocks []Block
	for _, p := range paragraphSep.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		blocks = append(blocks, classify(p))
	}
	return blocks
}

func classify(p string) Block {
	if hasEmphasis(p) {
		return markdownBlock(p)
	}

	firstLine := p
	if i := strings.IndexByte(p, '\n'); i >= 0 {
		firstLine = p[:i]
	}
	if unorderedItem.MatchString(firstLine) || orderedItem.MatchString(firstLine) {
		return listBlock(p)
	}

	if m := stepPrefix.FindStringSubmatch(p); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Block{Type: BlockStep, Number: n, Text: strings.TrimSpace(p[len(m[0]):])}
	}

	if strings.Contains(p, "=") {
		return Block{Type: BlockEquation, Text: p}
	}

	lower := strings.ToLower(p)
	for _, l := range labelled {
		if strings.HasPrefix(lower, l.prefix) {
			return Block{Type: l.typ, Text: strings.TrimSpace(p[len(l.prefix):])}
		}
	}

	return Block{Type: BlockParagraph, Text: p}
}

func hasEmphasis(p string) bool {
	if boldStars.MatchString(p) || boldUnders.MatchString(p) || italicStar.MatchString(p) {
		return true
	}
	for _, line := range strings.Split(p, "\n") {
		if headingLine.MatchString(line) {
			return true
		}
	}
	return false
}

func markdownBlock(p string) Block {
	b := Block{Type: BlockMarkdown}
	if m := headingLine.FindStringSubmatch(p); m != nil {
		b.Heading = len(m[1])
		p = p[len(m[0]):]
	}
	b.Runs = ParseInline(p)

	var sb strings.Builder
	for _, r := range b.Runs {
		sb.WriteString(r.Text)
	}
	b.Text = sb.String()
	return b
}

func listBlock(p string) Block {
	b := Block{Type: BlockList, Ordered: orderedItem.MatchString(p)}
	for _, line := range strings.Split(p, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		marker := unorderedItem.FindString(line)
		if marker == "" {
			marker = orderedItem.FindString(line)
		}
		if marker == "" && len(b.Items) > 0 {
			// 续行并入上一项
			b.Items[len(b.Items)-1] += " " + line
			continue
		}
		b.Items = append(b.Items, strings.TrimSpace(line[len(marker):]))
	}
	return b
}

// ParseInline 解析 **粗体**、__粗体__ 和 *斜体*，未闭合的标记按原文保留
func ParseInline(s string) []Run {
	var (
		runs         []Run
		buf          strings.Builder
		bold, italic bool
	)
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		runs = append(runs, Run{Text: buf.String(), Bold: bold, Italic: italic})
		buf.Reset()
	}

	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], "**") || strings.HasPrefix(s[i:], "__") {
			marker := s[i : i+2]
			if bold || strings.Contains(s[i+2:], marker) {
				flush()
				bold = !bold
				i += 2
				continue
			}
			buf.WriteString(marker)
			i += 2
			continue
		}
		if s[i] == '*' {
			opens := !italic && i+1 < len(s) && s[i+1] != ' ' && s[i+1] != '*' && strings.Contains(s[i+1:], "*")
			if italic || opens {
				flush()
				italic = !italic
				i++
				continue
			}
		}
		buf.WriteByte(s[i])
		i++
	}
	flush()
	return runs
}
