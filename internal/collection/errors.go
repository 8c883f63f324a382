package collection

import "errors"

var (
	ErrEncodingPayload = errors.New("error encoding payload")
	ErrDecodingPayload = errors.New("error decoding payload")
	ErrSavingItem      = errors.New("error saving item")
)
