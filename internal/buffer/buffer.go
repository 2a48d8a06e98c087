// Package buffer 提供两种追加容器：固定容量的环形缓冲与无界追加日志。
package buffer

// Appender 是两种容器共同的追加接口。
type Appender[T any] interface {
	Append(v T)
	Len() int
	Values() []T
}

// Ring 固定容量 FIFO，写满后淘汰最旧元素。
type Ring[T any] struct {
	items []T
	head  int // 最旧元素下标
	size  int
}

// NewRing 创建容量为 capacity 的环形缓冲；capacity <= 0 时按 1 处理。
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Append 追加元素，满时覆盖最旧元素。
func (r *Ring[T]) Append(v T) {
	c := len(r.items)
	if r.size < c {
		r.items[(r.head+r.size)%c] = v
		r.size++
		return
	}
	r.items[r.head] = v
	r.head = (r.head + 1) % c
}

func (r *Ring[T]) Len() int { return r.size }

func (r *Ring[T]) Cap() int { return len(r.items) }

// Values 按写入顺序（旧 -> 新）返回副本。
func (r *Ring[T]) Values() []T {
	out := make([]T, r.size)
	c := len(r.items)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.head+i)%c]
	}
	return out
}

// Last 返回最近的 n 个元素（旧 -> 新）。
func (r *Ring[T]) Last(n int) []T {
	vals := r.Values()
	if n <= 0 {
		return nil
	}
	if n >= len(vals) {
		return vals
	}
	return vals[len(vals)-n:]
}

// Log 无界追加日志，调用方需自行约束运行时长。
type Log[T any] struct {
	items []T
}

func NewLog[T any]() *Log[T] {
	return &Log[T]{}
}

func (l *Log[T]) Append(v T) { l.items = append(l.items, v) }

func (l *Log[T]) Len() int { return len(l.items) }

// Values 返回副本。
func (l *Log[T]) Values() []T {
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

var (
	_ Appender[int] = (*Ring[int])(nil)
	_ Appender[int] = (*Log[int])(nil)
)
