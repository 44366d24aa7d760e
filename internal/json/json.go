// Package json 是项目内统一的 JSON 编解码入口，基于 bytedance/sonic。
package json

import (
	"github.com/bytedance/sonic"
)

// api 与标准库 encoding/json 行为兼容：map 键排序、转义 HTML。
var api = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}
