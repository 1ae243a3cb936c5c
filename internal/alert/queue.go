package alert

import (
	"container/heap"
	"sort"
)

type item struct {
	entry Entry
	seq   uint64
}

// queue is a max-heap on score; equal scores pop in submission order.
type queue []item

func (q queue) Len() int { return len(q) }

func (q queue) Less(i, j int) bool {
	if q[i].entry.Score != q[j].entry.Score {
		return q[i].entry.Score > q[j].entry.Score
	}
	return q[i].seq < q[j].seq
}

func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *queue) Push(x any) { *q = append(*q, x.(item)) }

func (q *queue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

func (q *queue) push(e Entry, seq uint64) {
	heap.Push(q, item{entry: e, seq: seq})
}

// sorted returns the entries in queue order without disturbing the heap.
func (q queue) sorted() []Entry {
	cp := make(queue, len(q))
	copy(cp, q)
	sort.Sort(cp)

	out := make([]Entry, len(cp))
	for i, it := range cp {
		out[i] = it.entry
	}
	return out
}
