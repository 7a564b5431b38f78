package model

// Client represents a client from the clients_mapping table. Sites reference
// clients through Site.ClientMapID; the association is optional.
type Client struct {
	ID   int64
	Name string
}
