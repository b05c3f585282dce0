package weconnect

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// PinHash answers a security PIN challenge: the upper case hex SHA-512 of
// the PIN and the challenge, each read as hex on its own.
func PinHash(pin string, challenge string) (string, error) {
	if pin == "" {
		return "", fmt.Errorf("pin is empty")
	}
	pinBytes, err := hex.DecodeString(pin)
	if err != nil {
		return "", fmt.Errorf("pin must be an even number of hex digits: %w", err)
	}
	challengeBytes, err := hex.DecodeString(challenge)
	if err != nil {
		return "", fmt.Errorf("challenge must be hex: %w", err)
	}
	sum := sha512.Sum512(append(pinBytes, challengeBytes...))
	return strings.ToUpper(hex.EncodeToString(sum[:])), nil
}

// securityToken runs the PIN challenge for one operation of a service.
func (s *Session) securityToken(ctx context.Context, vin string, service string, operation string, pin string) (string, error) {
	if pin == "" {
		return "", fmt.Errorf("a security pin is required for %s", operation)
	}
	base := strings.TrimSuffix(s.config.SecurityURL, "/") + "/rolesrights/authorization/v2"
	var challenge securityChallengeJSON
	requested := fmt.Sprintf("%s/vehicles/%s/services/%s/operations/%s/security-pin-auth-requested", base, vin, service, operation)
	if _, err := s.get(ctx, requested, &challenge); err != nil {
		return "", fmt.Errorf("security challenge: %w", err)
	}
	info := challenge.SecurityPinAuthInfo
	hash, err := PinHash(pin, info.SecurityPinTransmission.Challenge)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(map[string]interface{}{
		"securityPinAuthentication": map[string]interface{}{
			"securityPin": map[string]string{
				"challenge":       info.SecurityPinTransmission.Challenge,
				"securityPinHash": hash,
			},
			"securityToken": info.SecurityToken,
		},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/security-pin-auth-completed", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	var completed struct {
		SecurityToken string `json:"securityToken"`
	}
	if _, err := s.do(req, &completed); err != nil {
		return "", fmt.Errorf("security pin: %w", err)
	}
	if completed.SecurityToken == "" {
		return "", fmt.Errorf("security pin rejected")
	}
	return completed.SecurityToken, nil
}
