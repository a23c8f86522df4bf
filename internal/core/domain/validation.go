package domain

import (
	"fmt"
	"net"
	"strings"
)

// ValidateNodeAddress checks that addr is a plain IPv4 address or hostname
// without scheme, port or credentials baked in.
func ValidateNodeAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: node address cannot be empty", ErrInvalidInput)
	}
	if strings.ContainsAny(addr, " /@:") {
		return fmt.Errorf("%w: node address must be a bare host or IP", ErrInvalidInput)
	}
	if len(addr) > 253 {
		return fmt.Errorf("%w: node address exceeds 253 characters", ErrInvalidInput)
	}
	return nil
}

// ValidateTarget checks the destination host of a job request. Only IPv4
// dotted-quad targets are accepted, matching the launch template contract.
func ValidateTarget(target string) error {
	ip := net.ParseIP(target)
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("%w: target must be a valid IPv4 address", ErrInvalidInput)
	}
	return nil
}

// ValidateJobRequest checks a job request against static bounds and the
// runtime blocked-port list. The duration ceiling is tier-dependent and
// enforced separately by the entitlement decision.
func ValidateJobRequest(req *JobRequest, blockedPorts []int) error {
	if err := ValidateTarget(req.Target); err != nil {
		return err
	}
	if req.Port < 1 || req.Port > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535", ErrInvalidInput)
	}
	for _, p := range blockedPorts {
		if req.Port == p {
			return fmt.Errorf("%w: port %d is restricted", ErrInvalidInput, req.Port)
		}
	}
	if req.DurationSeconds <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidInput)
	}
	return nil
}
