package catalog

import "errors"

var (
	ErrIndexOutOfRange = errors.New("catalog: index out of range")
	ErrQuotaExhausted  = errors.New("catalog: quota exhausted")
	ErrInvalidGroup    = errors.New("catalog: invalid group key")
	ErrNoTemplates     = errors.New("catalog: no templates provided")
)
