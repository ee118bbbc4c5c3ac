package graph

// Node is a linked list cell.
type Node struct {
	Value int
	Next  *Node
}

// NewNode links a value in front of next.
func NewNode(value int, next *Node) *Node {
	return &Node{Value: value, Next: next}
}

// Len counts the nodes from n.
func (n *Node) Len() int {
	count := 0
	for cur := n; cur != nil; cur = cur.Next {
		count++
	}
	return count
}
