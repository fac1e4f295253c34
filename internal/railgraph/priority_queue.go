package railgraph

import "container/heap"

type queueItem struct {
	id       int64
	priority float64
	index    int
}

// nodeQueue is a min-heap of node ids keyed by tentative distance. Each id
// appears at most once; a better priority moves the existing entry.
type nodeQueue struct {
	items []*queueItem
	byID  map[int64]*queueItem
}

func newNodeQueue() *nodeQueue {
	return &nodeQueue{byID: make(map[int64]*queueItem)}
}

func (q *nodeQueue) Len() int { return len(q.items) }

func (q *nodeQueue) Less(i, j int) bool {
	return q.items[i].priority < q.items[j].priority
}

func (q *nodeQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.items[i].index = i
	q.items[j].index = j
}

func (q *nodeQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(q.items)
	q.items = append(q.items, item)
	q.byID[item.id] = item
}

func (q *nodeQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	q.items = old[:n-1]
	delete(q.byID, item.id)
	return item
}

// push inserts id or lowers its priority. It reports whether the queue changed.
func (q *nodeQueue) push(id int64, priority float64) bool {
	if item, ok := q.byID[id]; ok {
		if priority >= item.priority {
			return false
		}
		item.priority = priority
		heap.Fix(q, item.index)
		return true
	}
	heap.Push(q, &queueItem{id: id, priority: priority})
	return true
}

// pop removes and returns the id with the lowest priority
func (q *nodeQueue) pop() (int64, float64) {
	item := heap.Pop(q).(*queueItem)
	return item.id, item.priority
}

func (q *nodeQueue) contains(id int64) bool {
	_, ok := q.byID[id]
	return ok
}
