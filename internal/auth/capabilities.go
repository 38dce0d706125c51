package auth

import "errors"

var ErrForbidden = errors.New("auth: forbidden")

// Capability names a protected operation.
type Capability string

const (
	CapVaultList      Capability = "vault.list"
	CapVaultCreate    Capability = "vault.create"
	CapVaultGet       Capability = "vault.get"
	CapVaultUpdate    Capability = "vault.update"
	CapVaultDelete    Capability = "vault.delete"
	CapAccessRequest  Capability = "access.request"
	CapContactsManage Capability = "contacts.manage"
	CapLogsOwn        Capability = "logs.own"
	CapLogsAll        Capability = "logs.all"
)

var capabilities = map[Capability][]Role{
	CapVaultList:      {RoleOwner, RoleEmergencyContact, RoleViewer},
	CapVaultCreate:    {RoleOwner},
	CapVaultGet:       {RoleOwner},
	CapVaultUpdate:    {RoleOwner},
	CapVaultDelete:    {RoleOwner},
	CapAccessRequest:  {RoleOwner},
	CapContactsManage: {RoleOwner},
	CapLogsOwn:        {RoleOwner, RoleViewer, RoleEmergencyContact, RoleAdmin},
	CapLogsAll:        {RoleAdmin},
}

// Authorize is the single role gate. Unknown capabilities are denied.
func Authorize(c *Claims, capability Capability) error {
	if c == nil {
		return ErrInvalidToken
	}
	for _, r := range capabilities[capability] {
		if r == c.Role {
			return nil
		}
	}
	return ErrForbidden
}

// AllowedRoles returns a copy of the roles permitted for capability.
func AllowedRoles(capability Capability) []Role {
	return append([]Role(nil), capabilities[capability]...)
}
