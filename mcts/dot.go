package mcts

import (
	"fmt"

	"github.com/awalterschulze/gographviz"
	"github.com/pkg/errors"
)

// ToDot renders the tree down to maxDepth plies as a Graphviz digraph. A negative maxDepth renders
// the whole tree.
func (t *MCTS) ToDot(maxDepth int) (string, error) {
	g := gographviz.NewGraph()
	if err := g.SetName("mcts"); err != nil {
		return "", errors.WithStack(err)
	}
	if err := g.SetDir(true); err != nil {
		return "", errors.WithStack(err)
	}
	var id int
	if err := t.addDot(g, t.root, "", &id, 0, maxDepth); err != nil {
		return "", err
	}
	return g.String(), nil
}

func (t *MCTS) addDot(g *gographviz.Graph, n *Node, parent string, id *int, depth, maxDepth int) error {
	name := fmt.Sprintf("n%d", *id)
	*id++
	label := fmt.Sprintf("\"move %d\\nN=%d Q=%.3f P=%.3f\"", n.move, n.visits, n.Q(), n.prior)
	if err := g.AddNode("mcts", name, map[string]string{"label": label}); err != nil {
		return errors.WithStack(err)
	}
	if parent != "" {
		if err := g.AddEdge(parent, name, true, nil); err != nil {
			return errors.WithStack(err)
		}
	}
	if maxDepth >= 0 && depth >= maxDepth {
		return nil
	}
	for _, kid := range n.children {
		if err := t.addDot(g, kid, name, id, depth+1, maxDepth); err != nil {
			return err
		}
	}
	return nil
}
