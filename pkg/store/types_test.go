package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCredentialStatusValidate(t *testing.T) {
	t.Run("accepts all known statuses", func(t *testing.T) {
		for _, status := range AllStatuses() {
			assert.NoError(t, status.Validate(), "status %q", status)
		}
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		err := CredentialStatus("confirmed").Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown credential status")
	})
}

func TestPrincipalValidate(t *testing.T) {
	valid := func() *Principal {
		return &Principal{
			Address:          "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			LocalScore:       50,
			CredentialStatus: StatusPending,
		}
	}

	t.Run("accepts a minimal valid record", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("rejects empty address", func(t *testing.T) {
		p := valid()
		p.Address = ""
		assert.Error(t, p.Validate())
	})

	t.Run("rejects non-normalized address", func(t *testing.T) {
		p := valid()
		p.Address = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
		assert.Error(t, p.Validate())
	})

	t.Run("rejects out-of-range local score", func(t *testing.T) {
		p := valid()
		p.LocalScore = 101
		assert.Error(t, p.Validate())

		p.LocalScore = -1
		assert.Error(t, p.Validate())
	})

	t.Run("rejects out-of-range ledger score", func(t *testing.T) {
		p := valid()
		bad := 200
		p.LedgerScore = &bad
		assert.Error(t, p.Validate())
	})

	t.Run("credential id requires active status", func(t *testing.T) {
		p := valid()
		id := int64(7)
		p.CredentialID = &id
		assert.Error(t, p.Validate())

		p.CredentialStatus = StatusActive
		assert.NoError(t, p.Validate())
	})

	t.Run("credential ref requires minting status", func(t *testing.T) {
		p := valid()
		p.CredentialRef = "0xdeadbeef"
		assert.Error(t, p.Validate())

		p.CredentialStatus = StatusMinting
		assert.NoError(t, p.Validate())
	})
}
