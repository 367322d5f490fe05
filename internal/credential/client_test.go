package credential

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"termfolio/internal/logging"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL+"/", srv.Client(), logging.Discard())
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

var validSignup = SignupRequest{Username: "bob", Email: "bob@x.com", Password: "Aa1!aaaa", ConfirmPassword: "Aa1!aaaa"}

func TestSignupSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth/signup" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var got SignupRequest
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if got != validSignup {
			t.Errorf("body = %+v", got)
		}
		writeEnvelope(w, http.StatusCreated, envelope{Success: true, Message: "User created successfully", User: &UserRef{ID: "1", Username: "bob", Email: "bob@x.com"}, Token: "tok", RefreshToken: "ref"})
	})

	res := c.Signup(context.Background(), validSignup)
	if !res.Success || res.User == nil || res.User.Username != "bob" || res.Token != "tok" || res.RefreshToken != "ref" {
		t.Fatalf("Signup() = %+v", res)
	}
}

func TestSignupValidationShortCircuits(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })

	bad := validSignup
	bad.ConfirmPassword = "nope"
	res := c.Signup(context.Background(), bad)
	if res.Success || res.Failure != FailureValidation {
		t.Fatalf("Signup() = %+v, want validation failure", res)
	}
	if res.FieldErrors["confirmPassword"] != "Passwords do not match" {
		t.Fatalf("FieldErrors = %+v", res.FieldErrors)
	}
	if called {
		t.Fatal("no network call expected for local validation errors")
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		env    envelope
		call   func(*HTTPClient) Result
		want   FailureKind
		msg    string
	}{
		{name: "conflict", status: http.StatusConflict, env: envelope{Message: "Username already taken", Errors: map[string]string{"username": "Username already taken"}},
			call: func(c *HTTPClient) Result { return c.Signup(context.Background(), validSignup) }, want: FailureConflict, msg: "Username already taken"},
		{name: "server validation", status: http.StatusBadRequest, env: envelope{Message: "Validation failed"},
			call: func(c *HTTPClient) Result { return c.Signup(context.Background(), validSignup) }, want: FailureValidation, msg: "Validation failed"},
		{name: "bad credentials", status: http.StatusUnauthorized, env: envelope{Message: "Invalid credentials"},
			call: func(c *HTTPClient) Result {
				return c.Login(context.Background(), LoginRequest{EmailOrUsername: "bob", Password: "x"})
			}, want: FailureAuth, msg: "Invalid credentials"},
		{name: "me token invalid", status: http.StatusUnauthorized, env: envelope{Message: "Token revoked"},
			call: func(c *HTTPClient) Result { return c.Me(context.Background(), "tok") }, want: FailureTokenInvalid, msg: "Token revoked"},
		{name: "server fault hides body", status: http.StatusInternalServerError, env: envelope{Message: "db exploded"},
			call: func(c *HTTPClient) Result { return c.Me(context.Background(), "tok") }, want: FailureServer, msg: msgServerFault},
		{name: "rate limited", status: http.StatusTooManyRequests, env: envelope{},
			call: func(c *HTTPClient) Result {
				return c.Login(context.Background(), LoginRequest{EmailOrUsername: "bob", Password: "x"})
			}, want: FailureServer, msg: msgRateLimited},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, tc.status, tc.env)
			})
			res := tc.call(c)
			if res.Success || res.Failure != tc.want || res.Message != tc.msg {
				t.Fatalf("result = %+v, want failure %v %q", res, tc.want, tc.msg)
			}
		})
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(url, nil, logging.Discard())
	res := c.Login(context.Background(), LoginRequest{EmailOrUsername: "bob", Password: "x"})
	if res.Success || res.Failure != FailureTransport || res.Message != msgTransport {
		t.Fatalf("Login() = %+v", res)
	}
}

func TestTransportTimeout(t *testing.T) {
	block := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := c.Me(ctx, "tok")
	if res.Failure != FailureTransport || res.Message != msgTimeout {
		t.Fatalf("Me() = %+v, want timeout transport failure", res)
	}
}

func TestMeSendsBearerAndRequiresUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		writeEnvelope(w, http.StatusOK, envelope{Success: true})
	})
	res := c.Me(context.Background(), "tok")
	if res.Success || res.Failure != FailureServer {
		t.Fatalf("Me() without user = %+v, want server failure", res)
	}
	if res := c.Me(context.Background(), ""); res.Failure != FailureTokenInvalid {
		t.Fatalf("Me(\"\") = %+v", res)
	}
}

func TestLogoutSendsRefreshToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["refreshToken"] != "ref" {
			t.Errorf("body = %v", body)
		}
		writeEnvelope(w, http.StatusOK, envelope{Success: true, Message: "Logged out successfully"})
	})
	res := c.Logout(context.Background(), "tok", "ref")
	if !res.Success || !strings.Contains(res.Message, "Logged out") {
		t.Fatalf("Logout() = %+v", res)
	}
}

func TestValidators(t *testing.T) {
	cases := []struct {
		got  string
		want string
	}{
		{ValidateUsername("ab"), "Username must be between 3 and 20 characters"},
		{ValidateUsername("bob!"), "Username can only contain letters, numbers, and underscores"},
		{ValidateUsername("bob_99"), ""},
		{ValidateEmail("bob@x"), "Please provide a valid email address"},
		{ValidateEmail("bob@x.com"), ""},
		{ValidatePassword("short"), "Password must be at least 8 characters long"},
		{ValidatePassword("aaaaaaaa"), "Password must contain uppercase, lowercase, number, and special character"},
		{ValidatePassword("Aa1!aaaa"), ""},
		{ValidateConfirmation("Aa1!aaaa", "Aa1!aaab"), "Passwords do not match"},
	}
	for i, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("case %d: got %q want %q", i, tc.got, tc.want)
		}
	}
}
