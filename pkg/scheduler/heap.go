package scheduler

import (
	"container/heap"
	"time"
)

// heapEntry 堆中的任务，seq 用于相同时间时保持加入顺序
type heapEntry struct {
	job *Job
	seq uint64
}

// jobHeap 任务优先队列（按 NextRunTime 排序）
type jobHeap struct {
	items []*heapEntry
	index map[string]int // jobID -> heap index
}

func newJobHeap() *jobHeap {
	return &jobHeap{
		items: make([]*heapEntry, 0),
		index: make(map[string]int),
	}
}

// Len 实现 heap.Interface
func (h *jobHeap) Len() int {
	return len(h.items)
}

// Less 实现 heap.Interface，nil 的 NextRunTime 排在最后
func (h *jobHeap) Less(i, j int) bool {
	return entryLess(h.items[i], h.items[j])
}

// Swap 实现 heap.Interface
func (h *jobHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.index[h.items[i].job.ID] = i
	h.index[h.items[j].job.ID] = j
}

// Push 实现 heap.Interface
func (h *jobHeap) Push(x any) {
	e := x.(*heapEntry)
	h.index[e.job.ID] = len(h.items)
	h.items = append(h.items, e)
}

// Pop 实现 heap.Interface
func (h *jobHeap) Pop() any {
	old := h.items
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	h.items = old[0 : n-1]
	delete(h.index, e.job.ID)
	return e
}

func entryLess(a, b *heapEntry) bool {
	at, bt := a.job.NextRunTime, b.job.NextRunTime
	if at == nil && bt == nil {
		return a.seq < b.seq
	}
	if at != nil && bt != nil && at.Equal(*bt) {
		return a.seq < b.seq
	}
	return runTimeBefore(at, bt)
}

// Get 按 ID 查找
func (h *jobHeap) Get(id string) (*heapEntry, bool) {
	idx, ok := h.index[id]
	if !ok {
		return nil, false
	}
	return h.items[idx], true
}

// Add 加入任务
func (h *jobHeap) Add(e *heapEntry) {
	if idx, exists := h.index[e.job.ID]; exists {
		heap.Remove(h, idx)
	}
	heap.Push(h, e)
}

// Update 替换任务并调整位置，保留原 seq
func (h *jobHeap) Update(job *Job) bool {
	idx, exists := h.index[job.ID]
	if !exists {
		return false
	}
	h.items[idx].job = job
	heap.Fix(h, idx)
	return true
}

// Remove 移除任务
func (h *jobHeap) Remove(id string) *Job {
	idx, exists := h.index[id]
	if !exists {
		return nil
	}
	return heap.Remove(h, idx).(*heapEntry).job
}

// NextRunTime 堆顶任务的执行时间
func (h *jobHeap) NextRunTime() *time.Time {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0].job.NextRunTime
}

// Clear 清空堆
func (h *jobHeap) Clear() {
	h.items = make([]*heapEntry, 0)
	h.index = make(map[string]int)
}

// Size 返回堆大小
func (h *jobHeap) Size() int {
	return len(h.items)
}
