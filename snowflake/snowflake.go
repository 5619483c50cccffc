// Package snowflake hands out user ids.
package snowflake

import (
	"fmt"

	bw "github.com/bwmarrin/snowflake"

	"github.com/unkn0wn-root/dictcache/model"
)

// Generator is safe for concurrent use.
type Generator struct {
	node *bw.Node
}

// New returns a generator for node (0..1023). Every process writing users
// must use a distinct node.
func New(node int64) (*Generator, error) {
	n, err := bw.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", node, err)
	}
	return &Generator{node: n}, nil
}

func (g *Generator) Next() model.Snowflake {
	return model.Snowflake(g.node.Generate().Int64())
}
