package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type documentPayload struct {
	Title      string `json:"title" validate:"required"`
	OwnerEmail string `json:"owner_email" validate:"required,email"`
	Expires    string `json:"expiration_date" validate:"omitempty,calendar_date"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := documentPayload{
		Title:      "Passport",
		OwnerEmail: "alice@example.com",
		Expires:    "2030-01-31",
	}

	require.NoError(t, ValidateStruct(payload))
}

func TestValidateStructFailures(t *testing.T) {
	err := ValidateStruct(documentPayload{OwnerEmail: "invalid", Expires: "31/01/2030"})
	require.Error(t, err)

	vErrs, ok := err.(ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	require.Len(t, vErrs, 3)

	fields := map[string]string{}
	for _, v := range vErrs {
		fields[v.Field] = v.Tag
	}
	require.Equal(t, "required", fields["title"])
	require.Equal(t, "email", fields["owner_email"])
	require.Equal(t, "calendar_date", fields["expiration_date"])
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("doc_type", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "passport"
	})
	require.NoError(t, err)

	type custom struct {
		Value string `validate:"doc_type"`
	}

	require.NoError(t, ValidateStruct(custom{Value: "passport"}))
	require.Error(t, ValidateStruct(custom{Value: "lease"}))
}

func TestValidationErrorsMessage(t *testing.T) {
	errs := ValidationErrors{{Field: "email", Tag: "email"}, {Field: "intervals", Tag: "max", Param: "365"}}
	require.Equal(t, "email failed on email; intervals failed on max=365", errs.Error())
	require.Equal(t, "validation failed", ValidationErrors{}.Error())
}
