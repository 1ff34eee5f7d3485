package secrets

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedactCredentialAssignments(t *testing.T) {
	r := NewRedactor()

	cases := []string{
		`request failed: api_key=abcd1234efgh5678 status=401`,
		`auth header Bearer eyXtokenXvalueX rejected`,
		`signed url ...&signature=0123456789abcdef0123456789abcdef rejected`,
	}
	for _, in := range cases {
		out := r.Redact(in)
		require.Contains(t, out, "[REDACTED]", "input: %s", in)
		require.NotContains(t, out, "abcd1234efgh5678")
	}
}

func TestRedactKnownSecretValues(t *testing.T) {
	r := NewRedactor("super-secret-value")

	out := r.Redact("venue rejected super-secret-value in payload")
	require.Equal(t, "venue rejected [REDACTED] in payload", out)
}

func TestShortKnownSecretsAreIgnored(t *testing.T) {
	r := NewRedactor("abc")
	require.Equal(t, "abc is fine", r.Redact("abc is fine"))
}

func TestRedactError(t *testing.T) {
	r := NewRedactor()
	require.Empty(t, r.RedactError(nil))
	require.Contains(t, r.RedactError(errors.New("password=hunter22 rejected")), "[REDACTED]")
}
