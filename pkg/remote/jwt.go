package remote

import (
	"errors"
	"fmt"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// ClientID extracts the client identity from a bearer token without
// verifying it. client_id takes precedence over sub.
func ClientID(token string) (string, error) {
	parser := gojwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, gojwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims := parsed.Claims.(gojwt.MapClaims)
	if clientID, ok := claims["client_id"].(string); ok && clientID != "" {
		return clientID, nil
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", errors.New("token carries no client identity")
}
