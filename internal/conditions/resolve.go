package conditions

import (
	"context"
	"fmt"

	"github.com/roach88/relq/internal/model"
)

// Resolve returns a copy of n in which every subquery comparison has been
// replaced by the keys its subquery currently selects, so the tree can be
// matched in memory. n is not modified.
func Resolve(ctx context.Context, n Node) (Node, error) {
	if n == nil {
		return nil, nil
	}
	out := n.clone()
	var err error
	Walk(out, func(node Node) bool {
		if err != nil {
			return false
		}
		c, ok := node.(*Comparison)
		if !ok || c.sub == nil {
			return true
		}
		rel := c.subject.(*model.Relationship)
		records, loadErr := c.sub.Records(ctx)
		if loadErr != nil {
			err = fmt.Errorf("resolve %s: %w", c, loadErr)
			return false
		}
		keys, keyErr := relationshipKeys(rel, records)
		if keyErr != nil {
			err = fmt.Errorf("resolve %s: %w", c, keyErr)
			return false
		}
		c.sub = nil
		c.setKeys(keys)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
