// ABOUTME: Intrusive circular doubly-linked lists with sentinel heads
// ABOUTME: Shared by the active, temp and anchor lists of the collector

package gc

// links is the next/prev pair embedded in every linkable type.
type links[T any] struct {
	next, prev *T
}

// linkable is satisfied by *T when T embeds links[T].
type linkable[T any] interface {
	*T
	linkage() *links[T]
}

// initList makes head a self-referential sentinel.
func initList[T any, P linkable[T]](head P) {
	l := head.linkage()
	l.next = (*T)(head)
	l.prev = (*T)(head)
}

// insertAfter splices n immediately after head.
func insertAfter[T any, P linkable[T]](head, n P) {
	hl, nl := head.linkage(), n.linkage()
	next := P(hl.next)
	nl.prev = (*T)(head)
	nl.next = hl.next
	next.linkage().prev = (*T)(n)
	hl.next = (*T)(n)
}

// pushBack splices n immediately before head, i.e. at the tail of the list.
// A forward scan that has not yet returned to head will reach n.
func pushBack[T any, P linkable[T]](head, n P) {
	insertAfter[T, P](P(head.linkage().prev), n)
}

// unlink removes n from whatever list it is in and leaves it self-linked.
func unlink[T any, P linkable[T]](n P) {
	nl := n.linkage()
	if nl.next == nil {
		return
	}
	P(nl.prev).linkage().next = nl.next
	P(nl.next).linkage().prev = nl.prev
	nl.next = (*T)(n)
	nl.prev = (*T)(n)
}

func isEmpty[T any, P linkable[T]](head P) bool {
	return head.linkage().next == (*T)(head)
}

// spliceBack moves every element of src to the tail of dst, in order, and
// leaves src empty.
func spliceBack[T any, P linkable[T]](dst, src P) {
	if isEmpty[T, P](src) {
		return
	}
	sl, dl := src.linkage(), dst.linkage()
	first, last := P(sl.next), P(sl.prev)
	tail := P(dl.prev)

	tail.linkage().next = (*T)(first)
	first.linkage().prev = (*T)(tail)
	last.linkage().next = (*T)(dst)
	dl.prev = (*T)(last)

	initList[T, P](src)
}

// listLen counts the elements of the list headed by head.
func listLen[T any, P linkable[T]](head P) int {
	n := 0
	for cur := P(head.linkage().next); cur != head; cur = P(cur.linkage().next) {
		n++
	}
	return n
}
