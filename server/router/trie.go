// prefix tree for router logic, it is not acessible from upper packages so use an abstraction: Table
package router

// tree node, prefix is the edge label from parent
// keys are matched as literal byte prefixes, not path segments
type node[V any] struct {
	prefix string
	ch     []*node[V] // children, first bytes of prefixes are distinct
	val    V
	set    bool // node holds a key
}

// insert key to tree, false if key is already there
func (n *node[V]) insert(key string, v V) bool {
	cur := n
	for {
		if len(key) == 0 {
			if cur.set {
				return false
			}
			cur.val, cur.set = v, true
			return true
		}

		// find child with same first byte
		idx := cur.child(key[0])

		// if no target -> make new node
		if idx == -1 {
			cur.ch = append(cur.ch, &node[V]{prefix: key, val: v, set: true})
			return true
		}

		c := cur.ch[idx]
		l := commonPrefix(c.prefix, key)
		if l < len(c.prefix) {
			// split edge: /test + /team -> /te{st, am}
			mid := &node[V]{prefix: c.prefix[:l], ch: []*node[V]{c}}
			c.prefix = c.prefix[l:]
			cur.ch[idx] = mid
			c = mid
		}
		key = key[l:]
		cur = c
	}
}

// match returns value of the longest key that is a prefix of path
func (n *node[V]) match(path string) (v V, ok bool) {
	cur := n
	if cur.set {
		v, ok = cur.val, true
	}
	for len(path) > 0 {
		idx := cur.child(path[0])
		if idx == -1 {
			break
		}
		c := cur.ch[idx]
		if len(path) < len(c.prefix) || path[:len(c.prefix)] != c.prefix {
			break
		}
		path = path[len(c.prefix):]
		cur = c
		if cur.set {
			v, ok = cur.val, true
		}
	}
	return v, ok
}

// remove key, nodes are kept, only the value is dropped
func (n *node[V]) remove(key string) bool {
	cur := n
	for len(key) > 0 {
		idx := cur.child(key[0])
		if idx == -1 {
			return false
		}
		c := cur.ch[idx]
		if len(key) < len(c.prefix) || key[:len(c.prefix)] != c.prefix {
			return false
		}
		key = key[len(c.prefix):]
		cur = c
	}
	if !cur.set {
		return false
	}
	var zero V
	cur.val, cur.set = zero, false
	return true
}

func (n *node[V]) child(b byte) int {
	for i, c := range n.ch {
		if c.prefix[0] == b {
			return i
		}
	}
	return -1
}

func commonPrefix(a, b string) int {
	i := 0
	for i < len(a) && i < len(b) && a[i] == b[i] {
		i++
	}
	return i
}
