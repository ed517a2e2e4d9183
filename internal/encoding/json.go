package encoding

import (
	jsoniter "github.com/json-iterator/go"
)

var JSONiter = jsoniter.Config{
	EscapeHTML:              false,
	MarshalFloatWith6Digits: false,
	DisallowUnknownFields:   false,
	OnlyTaggedField:         false,
	ValidateJsonRawMessage:  false,
	CaseSensitive:           true,
	UseNumber:               true,
	SortMapKeys:             false,
}.Froze()
