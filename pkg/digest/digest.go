package digest

import (
	"encoding/hex"
	"encoding/json"

	"lukechampine.com/blake3"
)

// Fingerprint 对任意可 JSON 序列化的值计算 blake3 摘要 (hex, 32 字节)
// 用于相同请求的去重 key；map 的 key 由 encoding/json 排序，结果稳定
func Fingerprint(parts ...interface{}) (string, error) {
	h := blake3.New(32, nil)
	enc := json.NewEncoder(h)
	for _, p := range parts {
		if err := enc.Encode(p); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
