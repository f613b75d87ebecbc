package store

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// IDGenerator produces time-ordered push ids
type IDGenerator struct {
	node *snowflake.Node
}

func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}
	return &IDGenerator{node: node}, nil
}

func (g *IDGenerator) NewID() string {
	return g.node.Generate().String()
}
