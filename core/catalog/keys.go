package catalog

var (
	groupPrefix = []byte("catalog/group/")
	quotaPrefix = []byte("catalog/quota/")
)

func groupKeyBytes(group GroupKey) []byte {
	rendered := group.String()
	buf := make([]byte, len(groupPrefix)+len(rendered))
	copy(buf, groupPrefix)
	copy(buf[len(groupPrefix):], rendered)
	return buf
}

func quotaKeyBytes(group GroupKey) []byte {
	rendered := group.String()
	buf := make([]byte, len(quotaPrefix)+len(rendered))
	copy(buf, quotaPrefix)
	copy(buf[len(quotaPrefix):], rendered)
	return buf
}
