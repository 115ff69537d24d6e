package css

import (
	"fmt"

	"github.com/roach88/capsule/internal/render"
	"github.com/roach88/capsule/internal/tree"
)

// describe names a removable unit for CSS_REMOVED messages.
func describe(t *tree.Tree, id tree.NodeID) string {
	switch t.Kind(id) {
	case tree.CSSDeclaration:
		return fmt.Sprintf("declaration %q", render.CSS(t, id))
	case tree.CSSSelector:
		return fmt.Sprintf("selector %q", render.CSS(t, id))
	case tree.CSSImport:
		return "@import"
	case tree.CSSFontFace:
		return "@font-face"
	case tree.CSSUnknownAtRule:
		return "@" + t.Value(id)
	case tree.CSSMedia:
		return "@media block"
	default:
		return t.Kind(id).String()
	}
}
