package engine

import (
	"fmt"
	"strings"

	"github.com/cuemby/tiersync/pkg/types"
)

// formatFields renders fields in key order for trace lines
func formatFields(f types.Fields) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range f.Keys() {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s:%v", k, f[k])
	}
	b.WriteByte('}')
	return b.String()
}
