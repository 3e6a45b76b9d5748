package weave

import (
	"sort"
	"strconv"
	"strings"
)

// Header 渲染 "{ts}_{index}_{count}_{chunk}"
func Header(ts int64, index, count int, chunk string) string {
	return strconv.FormatInt(ts, 10) + "_" + strconv.Itoa(index) + "_" + strconv.Itoa(count) + "_" + chunk
}

// Chunk 单个分片
type Chunk struct {
	TS    int64
	Index int
	Count int
	Data  string
}

// ParseChunk 解析分片，无分片头时返回 false
func ParseChunk(payload string) (Chunk, bool) {
	parts := strings.SplitN(payload, "_", 4)
	if len(parts) != 4 {
		return Chunk{}, false
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Chunk{}, false
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil || index < 0 {
		return Chunk{}, false
	}
	count, err := strconv.Atoi(parts[2])
	if err != nil || count <= 0 || index >= count {
		return Chunk{}, false
	}
	return Chunk{TS: ts, Index: index, Count: count, Data: parts[3]}, true
}

// Message 重组后的分片消息
type Message struct {
	TS       int64
	Payload  string
	Complete bool
}

// Regroup 按时间戳重组分片
// Duplicates keep the first copy; payloads without a header are ignored.
// Incomplete messages hold the chunks received so far in index order.
func Regroup(payloads []string) []Message {
	groups := make(map[int64]map[int]Chunk)
	counts := make(map[int64]int)
	var order []int64

	for _, p := range payloads {
		c, ok := ParseChunk(p)
		if !ok {
			continue
		}
		g, seen := groups[c.TS]
		if !seen {
			g = make(map[int]Chunk)
			groups[c.TS] = g
			counts[c.TS] = c.Count
			order = append(order, c.TS)
		}
		if _, dup := g[c.Index]; !dup {
			g[c.Index] = c
		}
	}

	msgs := make([]Message, 0, len(order))
	for _, ts := range order {
		g := groups[ts]
		idx := make([]int, 0, len(g))
		for i := range g {
			idx = append(idx, i)
		}
		sort.Ints(idx)

		var sb strings.Builder
		for _, i := range idx {
			sb.WriteString(g[i].Data)
		}
		msgs = append(msgs, Message{TS: ts, Payload: sb.String(), Complete: len(g) == counts[ts]})
	}
	return msgs
}
