package mdadapter

import (
	"github.com/yuin/goldmark/ast"
)

var KindStickerDirective = ast.NewNodeKind("StickerDirective")

// StickerDirective is an inline {{ sticker: name }} reference to a file of the pack.
type StickerDirective struct {
	ast.BaseInline
	Filename string
}

func (n *StickerDirective) Kind() ast.NodeKind {
	return KindStickerDirective
}

func (n *StickerDirective) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Filename": n.Filename,
	}, nil)
}
