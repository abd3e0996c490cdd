package flume

import "github.com/flumeworks/flume/id"

// ID is the primary identifier type for all Flume entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
