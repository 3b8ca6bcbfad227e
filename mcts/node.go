package mcts

import (
	"fmt"

	"github.com/alphafour/game"
	"github.com/chewxy/math32"
)

const (
	// pbCBase and pbCInit are the AlphaZero exploration constants.
	pbCBase = 19652
	pbCInit = 1.25

	epsilon = 1e-6
)

// Node is one position in the search tree. A node owns its children; the parent pointer is
// only a back-reference and never keeps a subtree alive on its own.
type Node struct {
	parent   *Node
	children []*Node

	move     int32   // the move that led from the parent to this node, game.NoMove for a fresh root
	prior    float32 // P(s, a), evaluator estimate for move
	visits   uint32  // N(s, a)
	valueSum float32 // W(s, a)

	state game.State // independent snapshot of the position at this node
}

// NewNode creates a detached node owning state.
func NewNode(state game.State, move int32, prior float32) *Node {
	return &Node{
		move:  move,
		prior: prior,
		state: state,
	}
}

// NewRoot creates a root node for a copy of state.
func NewRoot(state game.State) *Node {
	return NewNode(state.Clone(), game.NoMove, 0)
}

func (n *Node) Format(s fmt.State, c rune) {
	fmt.Fprintf(s, "{Move: %v, Q: %v, P: %v, Visits: %v, Children: %d}",
		n.move, n.Q(), n.prior, n.visits, len(n.children))
}

// AddChild adds a child to the node and takes ownership of it.
func (n *Node) AddChild(child *Node) {
	child.parent = n
	n.children = append(n.children, child)
}

// ChildAfterMove finds the child reached by move. It returns nil if there is none.
func (n *Node) ChildAfterMove(move int32) *Node {
	for _, child := range n.children {
		if child.move == move {
			return child
		}
	}
	return nil
}

// Q returns the average backpropagated value.
func (n *Node) Q() float32 {
	return n.valueSum / math32.Max(float32(n.visits), epsilon)
}

// U returns the PUCT exploration bonus
//
//	U(s, a) = P(s, a) * (log((N(s) + c_base + 1) / c_base) + c_init) * sqrt(N(s)) / (1 + N(s, a))
//
// where N(s) is the parent's visit count. The root has no parent and therefore no U.
func (n *Node) U() (float32, error) {
	if n.parent == nil {
		return 0, ErrRootHasNoParent
	}
	parentVisits := float32(n.parent.visits)
	rate := math32.Log((parentVisits+pbCBase+1)/pbCBase) + pbCInit
	rate *= math32.Sqrt(parentVisits) / (float32(n.visits) + 1)
	return rate * n.prior, nil
}

func (n *Node) Parent() *Node      { return n.parent }
func (n *Node) Children() []*Node  { return n.children }
func (n *Node) Move() int32        { return n.move }
func (n *Node) Prior() float32     { return n.prior }
func (n *Node) Visits() uint32     { return n.visits }
func (n *Node) ValueSum() float32  { return n.valueSum }
func (n *Node) State() game.State  { return n.state }
func (n *Node) IsRoot() bool       { return n.parent == nil }
func (n *Node) HasChildren() bool  { return len(n.children) > 0 }
func (n *Node) SetPrior(p float32) { n.prior = p }

// update records one simulation passing through the node.
func (n *Node) update(v float32) {
	n.visits++
	n.valueSum += v
}

// detach removes the node from its parent's children and makes it a root.
func (n *Node) detach() {
	p := n.parent
	if p == nil {
		return
	}
	for i, kid := range p.children {
		if kid == n {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	n.parent = nil
}

// release drops the whole subtree below n.
func (n *Node) release() {
	for _, kid := range n.children {
		kid.release()
		kid.parent = nil
	}
	n.children = nil
}

// countChildren counts the number of children node a node has and number of grandkids recursively
func (n *Node) countChildren() (retVal int) {
	for _, kid := range n.children {
		retVal += kid.countChildren() + 1
	}
	return
}

// depth is the height of the subtree below n.
func (n *Node) depth() int {
	var max int
	for _, kid := range n.children {
		if d := kid.depth() + 1; d > max {
			max = d
		}
	}
	return max
}
