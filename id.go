package cadence

import "github.com/xraph/cadence/id"

// ID is the identifier type for subscription records and charge receipts.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
