package orders

import (
	"errors"
	"fmt"
)

// DetailsColumn holds the raw message body of each order.
const DetailsColumn = "order_details"

// ConnConfig is everything needed to open the gateway's connection.
type ConnConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// String never prints the password.
func (c ConnConfig) String() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s", c.Host, c.Port, c.Database, c.User)
}

// State of a Gateway.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateSchemaVerified
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateSchemaVerified:
		return "schema_verified"
	default:
		return "disconnected"
	}
}

var (
	// ErrConnection means the database could not be reached or refused the credentials.
	ErrConnection = errors.New("database connection failed")

	// ErrPersistence means an order row was not committed.
	ErrPersistence = errors.New("persistence failed")
)
