package enums

import "fmt"

// VoucherStatus tracks a unit through its allocation lifecycle.
type VoucherStatus string

const (
	VoucherStatusInStock  VoucherStatus = "in_stock"
	VoucherStatusReserved VoucherStatus = "reserved"
	VoucherStatusSold     VoucherStatus = "sold"
	VoucherStatusUsed     VoucherStatus = "used"
)

var validVoucherStatuses = []VoucherStatus{
	VoucherStatusInStock,
	VoucherStatusReserved,
	VoucherStatusSold,
	VoucherStatusUsed,
}

// String implements fmt.Stringer.
func (s VoucherStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known VoucherStatus.
func (s VoucherStatus) IsValid() bool {
	for _, candidate := range validVoucherStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Allocated reports whether the unit counts against campaign capacity.
func (s VoucherStatus) Allocated() bool {
	return s == VoucherStatusReserved || s == VoucherStatusSold || s == VoucherStatusUsed
}

// Redeemable reports whether the unit may still be marked used.
func (s VoucherStatus) Redeemable() bool {
	return s == VoucherStatusReserved || s == VoucherStatusSold
}

// ParseVoucherStatus converts raw input into a VoucherStatus.
func ParseVoucherStatus(value string) (VoucherStatus, error) {
	for _, candidate := range validVoucherStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid voucher status %q", value)
}
