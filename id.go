package starledger

import "github.com/xraph/starledger/id"

// ID is the identifier type shared by every star ledger entity.
type ID = id.ID

// Prefix identifies the entity kind encoded in a TypeID.
type Prefix = id.Prefix

// EntryID names a star transaction or a redemption.
type EntryID = id.EntryID

// ParseEntryID parses an id that must name a ledger entry.
var ParseEntryID = id.ParseEntryID
