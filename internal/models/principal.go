package models

// Role of the authenticated caller
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// Principal is the caller identity passed explicitly into every service call.
// CustomerID and VendorID are set only for the matching role.
type Principal struct {
	UserID     int64 `json:"user_id"`
	Role       Role  `json:"role"`
	CustomerID int64 `json:"customer_id,omitempty"`
	VendorID   int64 `json:"vendor_id,omitempty"`
}

func (p Principal) IsCustomer() bool { return p.Role == RoleCustomer && p.CustomerID > 0 }

func (p Principal) IsVendor() bool { return p.Role == RoleVendor && p.VendorID > 0 }

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
