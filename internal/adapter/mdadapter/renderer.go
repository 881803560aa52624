package mdadapter

import (
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

type stickerDirectiveRenderer struct{}

func NewStickerDirectiveRenderer() renderer.NodeRenderer {
	return &stickerDirectiveRenderer{}
}

func (r *stickerDirectiveRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindStickerDirective, r.renderStickerDirective)
}

func (r *stickerDirectiveRenderer) renderStickerDirective(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	directive := n.(*StickerDirective)

	w.WriteString(`<span class="sticker">`)
	w.Write(util.EscapeHTML([]byte(directive.Filename)))
	w.WriteString(`</span>`)

	return ast.WalkContinue, nil
}
