// Package mdadapter adds sticker directives to pack descriptions.
package mdadapter

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

type stickersExtension struct{}

func NewStickersExtension() goldmark.Extender {
	return &stickersExtension{}
}

func (e *stickersExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithInlineParsers(
			util.Prioritized(NewStickerDirectiveParser(), 500),
		),
	)
	m.Renderer().AddOptions(
		renderer.WithNodeRenderers(
			util.Prioritized(NewStickerDirectiveRenderer(), 500),
		),
	)
}
