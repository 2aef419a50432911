package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleViewer = "viewer"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// Readers may list and fetch reference data; Writers may mutate it.
var (
	Readers = []string{RoleViewer, RoleEditor, RoleAdmin}
	Writers = []string{RoleEditor, RoleAdmin}
)

func IsAdmin(role string) bool { return role == RoleAdmin }
