package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashToPrincipal(t *testing.T) {
	t.Run("empty nullable fields decode as nil", func(t *testing.T) {
		p, err := HashToPrincipal(map[string]string{
			"address":           "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			"local_score":       "50",
			"ledger_score":      "",
			"credential_status": "pending",
			"credential_id":     "",
		})
		require.NoError(t, err)
		assert.Nil(t, p.LedgerScore)
		assert.Nil(t, p.CredentialID)
	})

	t.Run("zero ledger score stays distinguishable from unset", func(t *testing.T) {
		p, err := HashToPrincipal(map[string]string{
			"address":           "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			"local_score":       "50",
			"ledger_score":      "0",
			"credential_status": "pending",
			"credential_id":     "",
		})
		require.NoError(t, err)
		require.NotNil(t, p.LedgerScore)
		assert.Equal(t, 0, *p.LedgerScore)
	})

	t.Run("rejects malformed local score", func(t *testing.T) {
		_, err := HashToPrincipal(map[string]string{
			"address":     "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			"local_score": "not-a-number",
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "local_score")
	})
}
