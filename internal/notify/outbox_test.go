package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashRecipient_IsDeterministic(t *testing.T) {
	a := HashRecipient("person@example.com")
	b := HashRecipient("person@example.com")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, HashRecipient("other@example.com"))
}

func TestSanitizeAddress_RejectsHeaderInjection(t *testing.T) {
	_, err := sanitizeAddress("evil@example.com\r\nBcc: victim@example.com")
	assert.Error(t, err)
}

func TestSanitizeAddress_AcceptsPlainAddress(t *testing.T) {
	addr, err := sanitizeAddress("ops@pierre.example")
	assert.NoError(t, err)
	assert.Contains(t, addr, "ops@pierre.example")
}

func TestBodyFor_IncludesLinkForKnownTemplates(t *testing.T) {
	body := bodyFor(EmailPayload{
		Template: TemplatePasswordReset,
		Data:     map[string]any{"link": "https://app.pierre.example/auth/reset?token=abc"},
	})
	assert.Contains(t, body, "https://app.pierre.example/auth/reset?token=abc")

	body = bodyFor(EmailPayload{
		Template: TemplateInvitation,
		Data:     map[string]any{"link": "https://app.pierre.example/auth/accept-invite?token=xyz", "tenant": "Acme Fitness"},
	})
	assert.Contains(t, body, "Acme Fitness")
	assert.Contains(t, body, "https://app.pierre.example/auth/accept-invite?token=xyz")
}
