package scheduler

// Queue is the detection order over group indices.
type Queue struct {
	order []int
}

// NewQueue returns the identity permutation of n groups.
func NewQueue(n int) *Queue {
	q := &Queue{order: make([]int, n)}
	for i := range q.order {
		q.order[i] = i
	}
	return q
}

// Order returns a copy of the current order.
func (q *Queue) Order() []int {
	return append([]int(nil), q.order...)
}

// MoveToBack rotates group i to the tail. Unknown indices are ignored.
func (q *Queue) MoveToBack(i int) {
	for pos, v := range q.order {
		if v == i {
			copy(q.order[pos:], q.order[pos+1:])
			q.order[len(q.order)-1] = i
			return
		}
	}
}
