package domain

import "fmt"

// Node is the externally visible handle of an overlay member: the name
// it joined with and the identifier that name hashed to.
type Node struct {
	ID   ID
	Name string
}

// String renders the node for logs and the shell.
func (n Node) String() string {
	return fmt.Sprintf("%s(%s)", n.Name, n.ID.ToHexString())
}
