package remote

import (
	"testing"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, claims gojwt.MapClaims) string {
	t.Helper()
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func TestClientID(t *testing.T) {
	tests := []struct {
		name    string
		claims  gojwt.MapClaims
		want    string
		wantErr bool
	}{
		{name: "client id", claims: gojwt.MapClaims{"client_id": "c1", "sub": "u1"}, want: "c1"},
		{name: "subject fallback", claims: gojwt.MapClaims{"sub": "u1"}, want: "u1"},
		{name: "no identity", claims: gojwt.MapClaims{"scope": "read"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ClientID(sign(t, tt.claims))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClientIDMalformed(t *testing.T) {
	_, err := ClientID("not-a-token")
	assert.Error(t, err)
}
