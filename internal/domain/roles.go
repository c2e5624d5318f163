package domain

import "strings"

type Role string

const (
	RoleSuperAdmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleCashier    Role = "cashier"
	RoleWaiter     Role = "waiter"
)

// ParseRole maps a stored role name onto the closed set. Unknown names are rejected
// instead of being matched loosely.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleSuperAdmin:
		return RoleSuperAdmin, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleCashier:
		return RoleCashier, true
	case RoleWaiter:
		return RoleWaiter, true
	default:
		return "", false
	}
}

func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

type Capabilities struct {
	CanTakeOrders          bool `json:"can_take_orders"`
	CanCheckout            bool `json:"can_checkout"`
	CanOpenSession         bool `json:"can_open_session"`
	CanAddCash             bool `json:"can_add_cash"`
	CanAdjustOpeningFloat  bool `json:"can_adjust_opening_float"`
	CanCloseSession        bool `json:"can_close_session"`
	CanAdjustClosedSession bool `json:"can_adjust_closed_session"`
	CanManageManagerCode   bool `json:"can_manage_manager_code"`
	CanManageMenu          bool `json:"can_manage_menu"`
	CanManageMerma         bool `json:"can_manage_merma"`
	CanEditClosedMerma     bool `json:"can_edit_closed_merma"`
	CanManageUsers         bool `json:"can_manage_users"`
	CanManageTenants       bool `json:"can_manage_tenants"`
	CanViewReports         bool `json:"can_view_reports"`
}

func CapabilitiesFor(role Role) Capabilities {
	switch role {
	case RoleSuperAdmin, RoleAdmin:
		return Capabilities{
			CanTakeOrders:          true,
			CanCheckout:            true,
			CanOpenSession:         true,
			CanAddCash:             true,
			CanAdjustOpeningFloat:  true,
			CanCloseSession:        true,
			CanAdjustClosedSession: true,
			CanManageManagerCode:   true,
			CanManageMenu:          true,
			CanManageMerma:         true,
			CanEditClosedMerma:     true,
			CanManageUsers:         true,
			CanManageTenants:       role == RoleSuperAdmin,
			CanViewReports:         true,
		}
	case RoleCashier:
		return Capabilities{
			CanTakeOrders:   true,
			CanCheckout:     true,
			CanOpenSession:  true,
			CanAddCash:      true,
			CanCloseSession: true,
			CanManageMerma:  true,
			CanViewReports:  true,
		}
	case RoleWaiter:
		return Capabilities{CanTakeOrders: true}
	default:
		return Capabilities{}
	}
}

func (a Actor) Capabilities() Capabilities {
	return CapabilitiesFor(a.Role)
}
