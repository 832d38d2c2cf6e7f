package geomcache

// lruNode is a node in a doubly-linked LRU list.
// The node stores a key for O(1) deletion from the parent map.
type lruNode struct {
	key  Key
	prev *lruNode
	next *lruNode
}

// lruList is a doubly-linked list for LRU eviction. Head is the most
// recently used node. Not safe for concurrent use.
type lruList struct {
	head *lruNode
	tail *lruNode
	len  int
}

// PushFront adds a new node at the front.
func (l *lruList) PushFront(key Key) *lruNode {
	node := &lruNode{key: key, next: l.head}
	if l.head != nil {
		l.head.prev = node
	} else {
		l.tail = node
	}
	l.head = node
	l.len++
	return node
}

// MoveToFront marks node as most recently used.
func (l *lruList) MoveToFront(node *lruNode) {
	if node == l.head {
		return
	}
	l.unlink(node)
	node.next = l.head
	if l.head != nil {
		l.head.prev = node
	}
	l.head = node
	if l.tail == nil {
		l.tail = node
	}
	l.len++
}

// Remove unlinks node.
func (l *lruList) Remove(node *lruNode) { l.unlink(node) }

// Oldest returns the least recently used key.
func (l *lruList) Oldest() (Key, bool) {
	if l.tail == nil {
		return Key{}, false
	}
	return l.tail.key, true
}

func (l *lruList) unlink(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	node.prev, node.next = nil, nil
	l.len--
}
