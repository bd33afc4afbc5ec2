package xmlparse

// Node is one decoded XML element: an ordered set of keys mapping to
// attribute scalars, nested elements, or child sequences. Element text
// accumulates under the reserved key "$"; children below a configured
// list path accumulate under the reserved key "list" with the original
// element name kept in the "tag" key of each entry.
type Node struct {
	keys []string
	vals map[string]any
}

// NewNode returns an empty node.
func NewNode() *Node {
	return &Node{vals: make(map[string]any)}
}

// Set stores a value under key, preserving first-insertion order.
func (n *Node) Set(key string, value any) {
	if _, ok := n.vals[key]; !ok {
		n.keys = append(n.keys, key)
	}
	n.vals[key] = value
}

// Get returns the raw value stored under key.
func (n *Node) Get(key string) (any, bool) {
	v, ok := n.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (n *Node) Has(key string) bool {
	_, ok := n.vals[key]
	return ok
}

// Keys returns the keys in insertion order.
func (n *Node) Keys() []string {
	return n.keys
}

// Tag returns the element name this node was decoded from.
func (n *Node) Tag() string {
	s, _ := n.vals["tag"].(string)
	return s
}

// Attr returns the string value under key, or "" when absent or not a
// scalar.
func (n *Node) Attr(key string) string {
	s, _ := n.vals[key].(string)
	return s
}

// Str returns the string value under key and whether it was present.
func (n *Node) Str(key string) (string, bool) {
	s, ok := n.vals[key].(string)
	return s, ok
}

// Text returns the accumulated character data of the element.
func (n *Node) Text() string {
	s, _ := n.vals["$"].(string)
	return s
}

// List returns the heterogeneous child sequence of a list-path element.
func (n *Node) List() []*Node {
	l, _ := n.vals["list"].([]*Node)
	return l
}

// Child returns the nested element stored under key, or nil.
func (n *Node) Child(key string) *Node {
	c, _ := n.vals[key].(*Node)
	return c
}

// Folded returns the homogeneous sequence collected for a folded-list
// child name.
func (n *Node) Folded(key string) []*Node {
	l, _ := n.vals[key].([]*Node)
	return l
}

func (n *Node) appendText(data string) {
	s, _ := n.vals["$"].(string)
	n.Set("$", s+data)
}
