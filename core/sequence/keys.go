package sequence

import "dropforge/core/catalog"

var cursorPrefix = []byte("sequence/cursor/")

func cursorKeyBytes(group catalog.GroupKey) []byte {
	rendered := group.String()
	buf := make([]byte, len(cursorPrefix)+len(rendered))
	copy(buf, cursorPrefix)
	copy(buf[len(cursorPrefix):], rendered)
	return buf
}
