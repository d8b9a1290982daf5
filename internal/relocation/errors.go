package relocation

import "errors"

var (
	ErrInvalidLease = errors.New("invalid relocation lease")
	ErrLeaseExpired = errors.New("relocation lease expired")
)
