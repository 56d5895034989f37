package models

// ItemStatus is the per-item fulfillment label driven by the owning vendor
type ItemStatus string

const (
	ItemStatusPlaced    ItemStatus = "PLACED"
	ItemStatusAccepted  ItemStatus = "ACCEPTED"
	ItemStatusPacked    ItemStatus = "PACKED"
	ItemStatusShipped   ItemStatus = "SHIPPED"
	ItemStatusDelivered ItemStatus = "DELIVERED"
	ItemStatusCancelled ItemStatus = "CANCELLED"
)

// VendorSettableStatuses are the labels a vendor may patch an item to
var VendorSettableStatuses = []ItemStatus{
	ItemStatusAccepted,
	ItemStatusPacked,
	ItemStatusShipped,
	ItemStatusDelivered,
	ItemStatusCancelled,
}

// VendorSettable reports whether s is in VendorSettableStatuses
func (s ItemStatus) VendorSettable() bool {
	for _, v := range VendorSettableStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further fulfillment progress is expected
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusDelivered || s == ItemStatusCancelled
}

// rank orders the forward path PLACED -> DELIVERED. CANCELLED sits outside it.
func (s ItemStatus) rank() int {
	switch s {
	case ItemStatusPlaced:
		return 0
	case ItemStatusAccepted:
		return 1
	case ItemStatusPacked:
		return 2
	case ItemStatusShipped:
		return 3
	case ItemStatusDelivered:
		return 4
	}
	return -1
}

// Forward reports whether moving from s to next never goes back along the
// fulfillment path. Cancelling is forward from any non-terminal state.
func (s ItemStatus) Forward(next ItemStatus) bool {
	if s.Terminal() {
		return s == next
	}
	if next == ItemStatusCancelled {
		return true
	}
	return next.rank() >= s.rank()
}
