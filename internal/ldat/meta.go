package ldat

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// SerializeMeta 序列化元数据为规范查询串
// Escaped keys are sorted bytewise and "k=v" pairs joined by "&".
func SerializeMeta(meta map[string]interface{}) string {
	if len(meta) == 0 {
		return ""
	}
	pairs := make([][2]string, 0, len(meta))
	for k, v := range meta {
		pairs = append(pairs, [2]string{escape(k), escape(fmt.Sprint(v))})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })

	var sb strings.Builder
	for i, p := range pairs {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(p[0])
		sb.WriteByte('=')
		sb.WriteString(p[1])
	}
	return sb.String()
}

// componentUnescaper restores the characters encodeURIComponent leaves
// alone but url.QueryEscape encodes.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// escape matches encodeURIComponent, which media servers use on the other side.
func escape(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}

// DeserializeMeta 解析查询串为元数据
// Values that parse as integers come back as int64.
func DeserializeMeta(s string) map[string]interface{} {
	meta := make(map[string]interface{})
	if s == "" {
		return meta
	}
	for _, pair := range strings.Split(s, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			key = k
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			val = v
		}
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			meta[key] = n
			continue
		}
		meta[key] = val
	}
	return meta
}
