package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                       "/",
		"/metrics":                               "/metrics",
		"/v1/auth/login":                         "/v1/auth/login",
		"/v1/users/me":                           "/v1/users/me",
		"/v1/admin/users/42":                     "/v1/admin/users/:id",
		"/v1/admin/users/42/permissions":         "/v1/admin/users/:id/permissions",
		"/v1/admin/users/42/permissions?full=1":  "/v1/admin/users/:id/permissions",
		"/v1/auth/refresh":                       "/v1/auth/refresh",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
