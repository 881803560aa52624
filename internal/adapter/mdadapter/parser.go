package mdadapter

import (
	"regexp"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

var (
	directiveRegexp = regexp.MustCompile(`^{{\s*sticker:\s*([^\s}]+)\s*}}`)
	stickersKey     = parser.NewContextKey()
)

type stickerDirectiveParser struct{}

func NewStickerDirectiveParser() parser.InlineParser {
	return &stickerDirectiveParser{}
}

func (s *stickerDirectiveParser) Trigger() []byte {
	return []byte{'{'}
}

func (s *stickerDirectiveParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, _ := block.PeekLine()

	matches := directiveRegexp.FindSubmatch(line)
	if matches == nil {
		return nil
	}

	block.Advance(len(matches[0]))

	name := string(matches[1])
	pc.Set(stickersKey, append(Stickers(pc), name))

	return &StickerDirective{
		Filename: name,
	}
}

// Stickers returns the file names referenced by directives, in document order.
func Stickers(pc parser.Context) []string {
	names, _ := pc.Get(stickersKey).([]string)

	return names
}
