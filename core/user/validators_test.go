package user

import (
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tiba/core"
)

func errTags(t *testing.T, err error) map[string]string {
	t.Helper()

	if err == nil {
		return nil
	}
	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		t.Fatalf("expected validator.ValidationErrors; got %T: %v", err, err)
	}
	tags := make(map[string]string, len(vErrs))
	for _, fe := range vErrs {
		tags[fe.Field()] = fe.Tag()
	}
	return tags
}

func Test_passwordPolicy(t *testing.T) {
	tests := []struct {
		name    string
		pwd     string
		wantTag string
	}{
		{name: "too short", pwd: "lol", wantTag: pwdMinLenTag},
		{name: "whitespace", pwd: "l o loll", wantTag: pwdNoSpaceTag},
		{name: "all numeric", pwd: "12345678", wantTag: pwdNotAllNumTag},
		{name: "no complexity", pwd: "lol12345", wantTag: pwdComplexityTag},
		{name: "too common", pwd: "P@$$w0rd", wantTag: pwdNoCommonTag},
		{name: "valid", pwd: "LolC@t123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rp := ResetUserPassword{Token: "t", UID: "u", Password: tt.pwd, PasswordConfirm: tt.pwd}
			tags := errTags(t, core.Validate.Struct(rp))

			if tt.wantTag == "" {
				if len(tags) > 0 {
					t.Errorf("Struct() tags = %v; want none", tags)
				}
				return
			}
			if tag := tags["password"]; tag != tt.wantTag {
				t.Errorf("Struct() password tag = %q; want %q", tag, tt.wantTag)
			}
		})
	}
}

func Test_passwordPolicy_userAttrSimilarity(t *testing.T) {
	nu := NewUser{
		Name:            "Jean Claude",
		Username:        "jeanclaude",
		Email:           "jc@test.cd",
		Password:        "Jeanclaude1!",
		PasswordConfirm: "Jeanclaude1!",
	}
	tags := errTags(t, core.Validate.Struct(nu))
	if tag := tags["password"]; tag != pwdAttrSimTag {
		t.Errorf("Struct() password tag = %q; want %q", tag, pwdAttrSimTag)
	}
}

func Test_usernameOrEmailRequired(t *testing.T) {
	nu := NewUser{Name: "Hero", Password: "LolC@t123", PasswordConfirm: "LolC@t123"}
	tags := errTags(t, core.Validate.Struct(nu))
	if tag := tags["username"]; tag != usernameOrEmailTag {
		t.Errorf("Struct() username tag = %q; want %q", tag, usernameOrEmailTag)
	}
	if tag := tags["email"]; tag != usernameOrEmailTag {
		t.Errorf("Struct() email tag = %q; want %q", tag, usernameOrEmailTag)
	}
}

func Test_allRolesValidation(t *testing.T) {
	tests := []struct {
		name    string
		roles   []string
		wantErr bool
	}{
		{name: "unknown role", roles: []string{"lol"}, wantErr: true},
		{name: "known roles", roles: []string{RolePatient, RoleDoctor}},
		{name: "no roles"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nu := NewUser{
				Name:            "Hero",
				Username:        "heroic",
				Password:        "LolC@t123",
				PasswordConfirm: "LolC@t123",
				Roles:           tt.roles,
			}
			tags := errTags(t, core.Validate.Struct(nu))
			if tt.wantErr {
				if tag := tags["roles"]; tag != allRolesTag {
					t.Errorf("Struct() roles tag = %q; want %q", tag, allRolesTag)
				}
			} else if len(tags) > 0 {
				t.Errorf("Struct() tags = %v; want none", tags)
			}
		})
	}
}
