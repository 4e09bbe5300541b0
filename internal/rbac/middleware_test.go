package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"coincall-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

func withIdentity(userID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), userID, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func serve(r *gin.Engine, target string) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w.Code
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", withIdentity("u", RoleSuperAdmin), RequireUser(), RequireAnyRole(RoleBilling), func(c *gin.Context) {
		c.Status(200)
	})

	if code := serve(r, "/x"); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_HiddenRoleDeniedUnlessAllowed(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", withIdentity("svc", RoleBilling), RequireUser(), RequireAnyRole(RoleUser, RoleAdmin), func(c *gin.Context) {
		c.Status(200)
	})
	r.GET("/ingest", withIdentity("svc", RoleBilling), RequireUser(), RequireAnyRole(RoleBilling), func(c *gin.Context) {
		c.Status(200)
	})

	if code := serve(r, "/x"); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := serve(r, "/ingest"); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireUser_Missing(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", withIdentity("", RoleUser), RequireUser(), RequireAnyRole(RoleUser), func(c *gin.Context) {
		c.Status(200)
	})

	if code := serve(r, "/x"); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestSubjectUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := func(c *gin.Context) {
		uid, ok := SubjectUserID(c)
		if !ok {
			c.Status(http.StatusForbidden)
			return
		}
		c.String(200, uid)
	}

	r := gin.New()
	r.GET("/user", withIdentity("u1", RoleUser), handler)
	r.GET("/admin", withIdentity("a1", RoleAdmin), handler)

	if code := serve(r, "/user"); code != 200 {
		t.Fatalf("expected 200 for self, got %d", code)
	}
	if code := serve(r, "/user?user_id=u1"); code != 200 {
		t.Fatalf("expected 200 for explicit self, got %d", code)
	}
	if code := serve(r, "/user?user_id=u2"); code != 403 {
		t.Fatalf("expected 403 for other user, got %d", code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin?user_id=u2", nil))
	if w.Code != 200 || w.Body.String() != "u2" {
		t.Fatalf("expected admin to read u2, got %d %q", w.Code, w.Body.String())
	}
}

func TestIsKnownRole(t *testing.T) {
	for _, r := range []string{RoleUser, RoleAdmin, RoleSuperAdmin, RoleBilling} {
		if !IsKnownRole(r) {
			t.Fatalf("expected %q to be known", r)
		}
	}
	if IsKnownRole("owner") {
		t.Fatalf("expected owner to be unknown")
	}
}
