package user

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolsaas/core"
)

func TestCheckPasswordPolicy(t *testing.T) {
	usr := User{Name: "Jane Smith", Username: "jane_smith", Email: "jane@acme.test"}

	tests := []struct {
		name string
		pwd  string
		want string
	}{
		{name: "too short", pwd: "Ab1#", want: pwdMinLenText},
		{name: "whitespace", pwd: "Abc1# defg", want: pwdNoSpaceText},
		{name: "all numeric", pwd: "1234567890", want: pwdNotAllNumText},
		{name: "no special", pwd: "Abcdefg12", want: pwdComplexityText},
		{name: "no upper", pwd: "abcdef1#", want: pwdComplexityText},
		{name: "similar to username", pwd: "Jane_Smith1", want: pwdAttrSimText},
		{name: "common", pwd: "P@ssw0rd", want: pwdNoCommonText},
		{name: "valid", pwd: "Kx9#mQ2!vLp7"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckPasswordPolicy(tc.pwd, usr)
			if tc.want == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, []core.FieldError{{Field: "password", Error: tc.want}}, vErr.Fields)
		})
	}
}

func TestNewUser_validation(t *testing.T) {
	validate, translator := core.NewValidator()
	InitValidators(validate, translator)

	valid := NewUser{
		Name:            "Jane Smith",
		Username:        "jane_smith",
		Email:           "jane@acme.test",
		Password:        "Kx9#mQ2!vLp7",
		PasswordConfirm: "Kx9#mQ2!vLp7",
		Roles:           []string{RoleTeacher},
	}

	tests := []struct {
		name       string
		modify     func(nu *NewUser)
		wantFields map[string]string
	}{
		{name: "valid", modify: func(nu *NewUser) {}},
		{
			name:       "no username nor email",
			modify:     func(nu *NewUser) { nu.Username, nu.Email = "", "" },
			wantFields: map[string]string{"username": usernameOrEmailText, "email": usernameOrEmailText},
		},
		{
			name:       "invalid role",
			modify:     func(nu *NewUser) { nu.Roles = []string{"janitor:"} },
			wantFields: map[string]string{"roles": allRolesText},
		},
		{
			name:       "weak password",
			modify:     func(nu *NewUser) { nu.Password, nu.PasswordConfirm = "abcdefgh", "abcdefgh" },
			wantFields: map[string]string{"password": pwdComplexityText},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nu := valid
			tc.modify(&nu)
			err := validate.Struct(nu)
			if tc.wantFields == nil {
				assert.NoError(t, err)
				return
			}
			var vErrs validator.ValidationErrors
			require.True(t, errors.As(err, &vErrs))
			got := make(map[string]string, len(vErrs))
			for _, vErr := range vErrs {
				got[vErr.Field()] = vErr.Translate(translator)
			}
			assert.Equal(t, tc.wantFields, got)
		})
	}
}

func TestUsernameFromName(t *testing.T) {
	assert.Equal(t, "jane_smith", UsernameFromName("Jane Smith"))
}
