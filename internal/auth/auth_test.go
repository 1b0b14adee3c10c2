package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"Teacher", "Student", "Admin"} {
		r, err := ParseRole(s)
		require.NoError(t, err)
		assert.Equal(t, Role(s), r)
	}
	_, err := ParseRole("teacher")
	assert.Error(t, err)
	_, err = ParseRole("")
	assert.Error(t, err)
}

func TestIssuer_RoundTrip(t *testing.T) {
	iss := NewIssuer("qrattend", "secret", time.Minute)
	tok, exp, err := iss.Issue(Actor{ID: "u-1", Role: RoleStudent})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 5*time.Second)

	actor, err := iss.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, Actor{ID: "u-1", Role: RoleStudent}, actor)
}

func TestIssuer_RejectsForeignAndExpired(t *testing.T) {
	iss := NewIssuer("qrattend", "secret", time.Minute)
	tok, _, err := iss.Issue(Actor{ID: "u-1", Role: RoleTeacher})
	require.NoError(t, err)

	_, err = NewIssuer("qrattend", "other-secret", time.Minute).Parse(tok)
	assert.Error(t, err)

	_, err = NewIssuer("someone-else", "secret", time.Minute).Parse(tok)
	assert.Error(t, err)

	late := NewIssuer("qrattend", "secret", time.Minute)
	late.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = late.Parse(tok)
	assert.Error(t, err)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "hunter22"))
	assert.False(t, CheckPassword(hash, "hunter23"))
}

func TestBearerAndRequire(t *testing.T) {
	iss := NewIssuer("qrattend", "secret", time.Minute)
	r := gin.New()
	r.GET("/t", Bearer(iss), Require(RoleTeacher), func(c *gin.Context) {
		actor, _ := ActorFrom(c)
		c.String(http.StatusOK, actor.ID)
	})

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/t", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer garbage").Code)

	studentTok, _, _ := iss.Issue(Actor{ID: "s-1", Role: RoleStudent})
	assert.Equal(t, http.StatusForbidden, do("Bearer "+studentTok).Code)

	teacherTok, _, _ := iss.Issue(Actor{ID: "t-1", Role: RoleTeacher})
	rec := do("Bearer " + teacherTok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t-1", rec.Body.String())
}

func TestQueryTokenOnlyWhereAllowed(t *testing.T) {
	iss := NewIssuer("qrattend", "secret", time.Minute)
	tok, _, err := iss.Issue(Actor{ID: "s-1", Role: RoleStudent})
	require.NoError(t, err)

	r := gin.New()
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }
	r.GET("/api", Bearer(iss), ok)
	r.GET("/ws", BearerOrQuery(iss), ok)

	get := func(path string) int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path+"?token="+tok, nil))
		return rec.Code
	}
	assert.Equal(t, http.StatusUnauthorized, get("/api"))
	assert.Equal(t, http.StatusNoContent, get("/ws"))
}
