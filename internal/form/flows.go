package form

import (
	"errors"
	"strings"

	"termfolio/internal/credential"
)

// Flow names an account form.
type Flow int

const (
	FlowSignup Flow = iota
	FlowLogin
)

func (f Flow) String() string {
	switch f {
	case FlowSignup:
		return "signup"
	case FlowLogin:
		return "login"
	default:
		return "unknown"
	}
}

// Fields returns the prompts for flow.
func Fields(flow Flow) []FieldSpec {
	switch flow {
	case FlowSignup:
		return SignupFields()
	case FlowLogin:
		return LoginFields()
	default:
		return nil
	}
}

func SignupFields() []FieldSpec {
	return []FieldSpec{
		{Name: "username", Label: "Username", Kind: KindText, Validate: check(credential.ValidateUsername)},
		{Name: "email", Label: "Email", Kind: KindText, Validate: check(credential.ValidateEmail)},
		{Name: "password", Label: "Password", Kind: KindPassword, Validate: check(credential.ValidatePassword)},
		{
			Name:  "confirmPassword",
			Label: "Confirm password",
			Kind:  KindPassword,
			Validate: func(value string, collected map[string]string) error {
				return asError(credential.ValidateConfirmation(collected["password"], value))
			},
		},
	}
}

func LoginFields() []FieldSpec {
	return []FieldSpec{
		{Name: "emailOrUsername", Label: "Email or username", Kind: KindText, Validate: required("Email or username is required")},
		{Name: "password", Label: "Password", Kind: KindPassword, Validate: required("Password is required")},
	}
}

// SignupRequest maps collected values onto the request shape.
func SignupRequest(values map[string]string) credential.SignupRequest {
	return credential.SignupRequest{
		Username:        strings.TrimSpace(values["username"]),
		Email:           strings.TrimSpace(values["email"]),
		Password:        values["password"],
		ConfirmPassword: values["confirmPassword"],
	}
}

func LoginRequest(values map[string]string) credential.LoginRequest {
	return credential.LoginRequest{
		EmailOrUsername: strings.TrimSpace(values["emailOrUsername"]),
		Password:        values["password"],
	}
}

func check(validate func(string) string) func(string, map[string]string) error {
	return func(value string, _ map[string]string) error {
		return asError(validate(strings.TrimSpace(value)))
	}
}

func required(message string) func(string, map[string]string) error {
	return func(value string, _ map[string]string) error {
		if strings.TrimSpace(value) == "" {
			return errors.New(message)
		}
		return nil
	}
}

func asError(message string) error {
	if message == "" {
		return nil
	}
	return errors.New(message)
}
