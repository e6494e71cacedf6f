package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/rentalhq/backoffice/api/apicommon"
	"github.com/rentalhq/backoffice/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestAuthLogin(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)

	cases := []struct {
		name   string
		req    *apicommon.LoginRequest
		status int
		code   int
	}{
		{"wrong password", &apicommon.LoginRequest{Email: testAdminEmail, Password: "wrong"},
			http.StatusUnauthorized, errors.ErrInvalidCredentials.Code},
		{"unknown email", &apicommon.LoginRequest{Email: "nobody@example.com", Password: testAdminPass},
			http.StatusUnauthorized, errors.ErrInvalidCredentials.Code},
		{"invalid email", &apicommon.LoginRequest{Email: "not-an-email", Password: testAdminPass},
			http.StatusBadRequest, errors.ErrInvalidData.Code},
	}
	for _, tc := range cases {
		c.Run(tc.name, func(c *qt.C) {
			body, status := ta.request(c, http.MethodPost, "", authLoginEndpoint, tc.req)
			c.Assert(status, qt.Equals, tc.status, qt.Commentf("body: %s", body))
			c.Assert(errorCode(c, body), qt.Equals, tc.code)
		})
	}

	c.Run("email is case insensitive", func(c *qt.C) {
		body, status := ta.request(c, http.MethodPost, "", authLoginEndpoint,
			&apicommon.LoginRequest{Email: "Admin@Example.com", Password: testAdminPass})
		c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("body: %s", body))
		var res apicommon.LoginResponse
		c.Assert(json.Unmarshal(body, &res), qt.IsNil)
		c.Assert(res.Expirity.After(time.Now().Add(jwtExpiration-time.Minute)), qt.IsTrue)
	})
}

func TestAuthenticatedRoutes(t *testing.T) {
	c := qt.New(t)
	ta := newTestAPI(c)

	c.Run("no token", func(c *qt.C) {
		_, status := ta.request(c, http.MethodGet, "", adminMeEndpoint, nil)
		c.Assert(status, qt.Equals, http.StatusUnauthorized)
	})

	c.Run("garbage token", func(c *qt.C) {
		_, status := ta.request(c, http.MethodGet, "not.a.jwt", bookingsEndpoint, nil)
		c.Assert(status, qt.Equals, http.StatusUnauthorized)
	})

	c.Run("token of a missing admin", func(c *qt.C) {
		res, err := ta.api.buildLoginResponse(primitive.NewObjectID())
		c.Assert(err, qt.IsNil)
		_, status := ta.request(c, http.MethodGet, res.Token, adminMeEndpoint, nil)
		c.Assert(status, qt.Equals, http.StatusUnauthorized)
	})

	c.Run("admin info", func(c *qt.C) {
		var info apicommon.AdminInfo
		c.Assert(ta.admin(c, http.MethodGet, adminMeEndpoint, nil, &info), qt.Equals, http.StatusOK)
		c.Assert(info.Email, qt.Equals, testAdminEmail)
		c.Assert(info.Name, qt.Equals, "Admin")
	})

	c.Run("refresh", func(c *qt.C) {
		var res apicommon.LoginResponse
		c.Assert(ta.admin(c, http.MethodPost, authRefreshTokenEndpoint, nil, &res), qt.Equals, http.StatusOK)
		_, status := ta.request(c, http.MethodGet, res.Token, adminMeEndpoint, nil)
		c.Assert(status, qt.Equals, http.StatusOK)
	})
}
