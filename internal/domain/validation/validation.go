package validation

import (
	"fmt"
	"math"
	"net"
	"regexp"
	"strings"
)

var (
	// ISO 3166-1 alpha-2 country codes
	countryRegex = regexp.MustCompile(`^[A-Z]{2}$`)

	// Merchant names - permissive, allows numbers and common business chars
	merchantRegex = regexp.MustCompile(`^[\p{L}\p{N}\s\-'\.&,()_/*:#]{1,200}$`)

	// Device identifiers - opaque tokens issued by client SDKs
	deviceIDRegex = regexp.MustCompile(`^[A-Za-z0-9\-_:\.]{1,128}$`)
)

// ValidateCountryCode validates an ISO 3166-1 alpha-2 country code
func ValidateCountryCode(country string) error {
	if country == "" {
		return fmt.Errorf("country cannot be empty")
	}

	country = strings.ToUpper(strings.TrimSpace(country))

	if !countryRegex.MatchString(country) {
		return fmt.Errorf("invalid country code: %s", country)
	}

	return nil
}

// ValidateMerchantName validates a merchant descriptor
func ValidateMerchantName(merchant string) error {
	if merchant == "" {
		return fmt.Errorf("merchant cannot be empty")
	}

	merchant = strings.TrimSpace(merchant)

	if len(merchant) > 200 {
		return fmt.Errorf("merchant name too long (max 200 characters)")
	}

	if !merchantRegex.MatchString(merchant) {
		return fmt.Errorf("invalid merchant name format")
	}

	return nil
}

// ValidateIPAddress validates an IPv4 or IPv6 address
func ValidateIPAddress(ip string) error {
	if ip == "" {
		return nil // IP is optional on card-present transactions
	}

	if net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid IP address: %s", ip)
	}

	return nil
}

// ValidateDeviceID validates a device identifier token
func ValidateDeviceID(deviceID string) error {
	if deviceID == "" {
		return nil // Device info is optional
	}

	if !deviceIDRegex.MatchString(deviceID) {
		return fmt.Errorf("invalid device identifier format")
	}

	return nil
}

// ValidateCoordinates validates latitude/longitude bounds
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude out of range: %f", lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("longitude out of range: %f", lon)
	}
	return nil
}

// ValidateAmount validates monetary amounts
func ValidateAmount(amount float64, fieldName string) error {
	// Check for special floating point values
	if math.IsNaN(amount) {
		return fmt.Errorf("%s cannot be NaN", fieldName)
	}

	if math.IsInf(amount, 0) {
		return fmt.Errorf("%s cannot be infinite", fieldName)
	}

	if amount <= 0 {
		return fmt.Errorf("%s must be positive", fieldName)
	}

	// Check for reasonable maximum for actual business logic
	if amount > 1e9 { // 1 billion
		return fmt.Errorf("%s too large for business use (max 1 billion)", fieldName)
	}

	return nil
}
