package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// constraints are idempotent; the unique Training.id constraint is what
// makes two concurrent MERGEs of the same training collide.
var constraints = []struct {
	name   string
	cypher string
}{
	{"training_id", `CREATE CONSTRAINT training_id IF NOT EXISTS FOR (t:Training) REQUIRE t.id IS UNIQUE`},
	{"set_id", `CREATE CONSTRAINT set_id IF NOT EXISTS FOR (s:Set) REQUIRE s.id IS UNIQUE`},
	{"translation_id", `CREATE CONSTRAINT translation_id IF NOT EXISTS FOR (t:Translation) REQUIRE t.id IS UNIQUE`},
}

// EnsureConstraints creates the schema constraints the store relies on.
func (c *Connection) EnsureConstraints(ctx context.Context) error {
	session, err := c.Session(ctx, neo4j.AccessModeWrite)
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	for _, constraint := range constraints {
		result, err := session.Run(ctx, constraint.cypher, nil)
		if err != nil {
			return fmt.Errorf("failed to create constraint %s: %w", constraint.name, err)
		}
		if _, err := result.Consume(ctx); err != nil {
			return fmt.Errorf("failed to create constraint %s: %w", constraint.name, err)
		}
	}
	return nil
}
