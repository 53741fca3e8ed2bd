package domain

import "time"

// Customer is the caller a help request is raised on behalf of. Customers
// are seeded up front and never mutated.
type Customer struct {
	ID        string
	Phone     string
	Name      *string
	CreatedAt time.Time
}

// DisplayName returns the name when known, the phone handle otherwise.
func (c Customer) DisplayName() string {
	if c.Name != nil && *c.Name != "" {
		return *c.Name
	}
	return c.Phone
}
