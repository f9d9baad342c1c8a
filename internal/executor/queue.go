// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package executor

import "container/heap"

// taskHeap orders tasks by descending priority; ties dequeue in
// insertion order (FIFO within a priority tier).
type taskHeap[T, R any] []*task[T, R]

func (h taskHeap[T, R]) Len() int { return len(h) }

func (h taskHeap[T, R]) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap[T, R]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap[T, R]) Push(x any) { *h = append(*h, x.(*task[T, R])) }

func (h *taskHeap[T, R]) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

func (h *taskHeap[T, R]) push(t *task[T, R]) { heap.Push(h, t) }

func (h *taskHeap[T, R]) pop() *task[T, R] {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(*task[T, R])
}
