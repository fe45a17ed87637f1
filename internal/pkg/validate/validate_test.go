package validate

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0712345678", "254712345678"},
		{"0112345678", "254112345678"},
		{"+254712345678", "254712345678"},
		{"254712345678", "254712345678"},
		{"712345678", "254712345678"},
		{"0712 345 678", "254712345678"},
		{"+254-712-345-678", "254712345678"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePhone_Invalid(t *testing.T) {
	for _, in := range []string{"", "0812345678", "07123456", "2557123456789", "+1 555 123 4567", "abc"} {
		t.Run(in, func(t *testing.T) {
			_, err := NormalizePhone(in)
			assert.ErrorIs(t, err, ErrInvalidPhone)
		})
	}
}

type phoneForm struct {
	Phone string `json:"phone" validate:"required,ke_phone"`
	Name  string `json:"name" validate:"notblank"`
}

func TestSetup_CustomTags(t *testing.T) {
	v := validator.New()
	require.NoError(t, Setup(v))

	assert.NoError(t, v.Struct(phoneForm{Phone: "0712345678", Name: "Amina"}))

	err := v.Struct(phoneForm{Phone: "12345", Name: "   "})
	require.Error(t, err)

	msg := Message(err)
	assert.Contains(t, msg, "phone must be a Kenyan mobile number")
	assert.Contains(t, msg, "name cannot be blank")
}
