package validation

import (
	"net"
	"regexp"
	"strconv"
	"strings"

	apperrors "github.com/anime-shed/olive-inspector-go/internal/errors"
)

// ipv4WithPort accepts a dotted IPv4 address with an optional port
var ipv4WithPort = regexp.MustCompile(`^(?:[0-9]{1,3}\.){3}[0-9]{1,3}(?::\d+)?$`)

// AddressValidator checks detection server addresses of the form IPv4[:port]
type AddressValidator struct {
	requirePort bool
}

// NewAddressValidator creates a validator that accepts an optional port
func NewAddressValidator() *AddressValidator {
	return &AddressValidator{}
}

// NewAddressValidatorWithOptions creates a validator with custom options
func NewAddressValidatorWithOptions(requirePort bool) *AddressValidator {
	return &AddressValidator{requirePort: requirePort}
}

// Validate returns a validation error when address is not IPv4[:port]
func (v *AddressValidator) Validate(address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return apperrors.NewValidationError("server address cannot be empty", nil)
	}
	if !ipv4WithPort.MatchString(address) {
		return apperrors.NewValidationError("server address must be IPv4[:port]", nil)
	}

	host, port := address, ""
	if strings.Contains(address, ":") {
		var err error
		host, port, err = net.SplitHostPort(address)
		if err != nil {
			return apperrors.NewValidationError("invalid server address", err)
		}
	}

	if ip := net.ParseIP(host); ip == nil || ip.To4() == nil {
		return apperrors.NewValidationError("server address has an invalid IPv4 octet", nil)
	}

	if port == "" {
		if v.requirePort {
			return apperrors.NewValidationError("server address must include a port", nil)
		}
		return nil
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return apperrors.NewValidationError("server port must be between 1 and 65535", err)
	}
	return nil
}

// IsValid is a convenience wrapper around Validate
func (v *AddressValidator) IsValid(address string) bool {
	return v.Validate(address) == nil
}
