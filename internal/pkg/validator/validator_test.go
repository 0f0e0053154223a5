package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Email string `validate:"required,email"`
	Count int64  `validate:"gte=0"`
}

func TestStruct(t *testing.T) {
	assert.NoError(t, Struct(sample{Email: "a@b.co", Count: 1}))

	err := Struct(sample{Email: "nope", Count: -1})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Email failed on email")
	assert.Contains(t, err.Error(), "Count failed on gte")
}

func TestFields(t *testing.T) {
	assert.Nil(t, Fields(sample{Email: "a@b.co"}))
	assert.Equal(t, map[string]string{"Email": "required"}, Fields(sample{}))
}
