// Package fleet models the machines of a cluster: hosts, the roles they
// play and the inventory that lists them in declaration order.
package fleet

import (
	"fmt"
	"regexp"
	"strings"
)

// Role names the part a host plays in a cluster, e.g. "namenode".
type Role string

// Well-known roles.
const (
	RoleMaster          Role = "master"
	RoleSlave           Role = "slave"
	RoleNameNode        Role = "namenode"
	RoleSecondaryName   Role = "secondarynamenode"
	RoleResourceManager Role = "resourcemanager"
	RoleJobHistory      Role = "jobhistory"
)

// rolePattern validates role names: lowercase alphanumeric with hyphens,
// max 64 chars, starting with a letter.
var rolePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]{0,62}[a-z0-9])?$`)

// NewRole creates a role, validating the format.
func NewRole(name string) (Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", fmt.Errorf("role name cannot be empty")
	}
	if !rolePattern.MatchString(name) {
		return "", fmt.Errorf("invalid role name %q: must be lowercase alphanumeric with hyphens, 1-64 chars", name)
	}
	return Role(name), nil
}

// String returns the role name.
func (r Role) String() string {
	return string(r)
}

// Roles is an ordered set of roles.
type Roles []Role

// NewRoles creates a Roles set from names, dropping duplicates.
func NewRoles(names ...string) (Roles, error) {
	roles := make(Roles, 0, len(names))
	for _, name := range names {
		role, err := NewRole(name)
		if err != nil {
			return nil, err
		}
		if !roles.Contains(role) {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

// Contains checks if a role is in the set.
func (r Roles) Contains(role Role) bool {
	for _, existing := range r {
		if existing == role {
			return true
		}
	}
	return false
}

// ContainsAny checks if any of the given roles are in the set.
func (r Roles) ContainsAny(roles Roles) bool {
	for _, role := range roles {
		if r.Contains(role) {
			return true
		}
	}
	return false
}

// Strings returns the roles as strings.
func (r Roles) Strings() []string {
	result := make([]string, len(r))
	for i, role := range r {
		result[i] = role.String()
	}
	return result
}
