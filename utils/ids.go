package utils

import (
	"fmt"
	"os"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

var (
	idGenerator *snowflake.Node
	idOnce      sync.Once
)

// GenerateNewID returns a cluster-unique row id. The node number comes from
// DAVSTORE_NODE_ID when several writers share one database.
func GenerateNewID() int64 {
	idOnce.Do(func() {
		var (
			node int64 = 1
			err  error
		)
		if v := os.Getenv("DAVSTORE_NODE_ID"); v != "" {
			if _, err = fmt.Sscanf(v, "%d", &node); err != nil {
				node = 1
			}
		}
		idGenerator, err = snowflake.NewNode(node)
		if err != nil {
			idGenerator, _ = snowflake.NewNode(1)
		}
	})
	return idGenerator.Generate().Int64()
}

func NewETag() string {
	return uuid.NewString()
}

func NewLockToken() string {
	return "opaquelocktoken:" + uuid.NewString()
}
