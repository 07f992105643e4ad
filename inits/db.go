package inits

import (
	"github.com/hashicorp/go-memdb"
)

const SessionTable = "session"

// NewDB creates the in-memory session database.
func NewDB() (*memdb.MemDB, error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			SessionTable: {
				Name: SessionTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:         "id",
						Unique:       true,
						Indexer:      &memdb.StringFieldIndex{Field: "ID"},
						AllowMissing: false,
					},
					"expiry": {
						Name:         "expiry",
						Unique:       false,
						Indexer:      &memdb.StringFieldIndex{Field: "Expiry"},
						AllowMissing: false,
					},
				},
			},
		},
	}

	return memdb.NewMemDB(schema)
}
