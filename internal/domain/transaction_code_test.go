package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TX001", "TX001"},
		{"  TX001 \n", "TX001"},
		{"FT24.001#A", "FT24_001_A"},
		{"a$b[c]d/e", "a_b_c_d_e"},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := NormalizeCode(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizeCode(got), "normalization must be idempotent")
		})
	}
}

func TestValidCode(t *testing.T) {
	assert.True(t, ValidCode("TX001"))
	assert.False(t, ValidCode(""))
	assert.False(t, ValidCode(" \t"))
}

func TestMatchStatus_LocksBill(t *testing.T) {
	assert.True(t, StatusMatched.LocksBill())
	assert.True(t, StatusError.LocksBill())
	assert.False(t, StatusUnmatched.LocksBill())
	assert.False(t, StatusPending.LocksBill())
}

func TestMerchantIDFromVirtual(t *testing.T) {
	id, ok := MerchantIDFromVirtual(VirtualID("m1"))
	assert.True(t, ok)
	assert.Equal(t, "m1", id)

	_, ok = MerchantIDFromVirtual("r1")
	assert.False(t, ok)

	_, ok = MerchantIDFromVirtual(VirtualIDPrefix)
	assert.False(t, ok)
}

func TestDuplicateBillError(t *testing.T) {
	err := error(&DuplicateBillError{TransactionCode: "TX004", ExistingBillID: "b1", FileName: "receipt.jpg"})
	assert.True(t, IsDuplicateBill(err))
	assert.Contains(t, err.Error(), "TX004")
	assert.Contains(t, err.Error(), "receipt.jpg")
	assert.False(t, IsValidation(err))
}
