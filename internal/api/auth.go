package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const authRealm = "hostingnews"

// BasicAuth 对 API 做 Basic Auth 校验，public 中的路径直接放行。
// 不传 public 时默认只放行 /health。
func BasicAuth(user, pass string, public ...string) gin.HandlerFunc {
	if len(public) == 0 {
		public = []string{"/health"}
	}
	open := make(map[string]struct{}, len(public))
	for _, p := range public {
		open[p] = struct{}{}
	}
	want := []byte(user + ":" + pass)

	return func(c *gin.Context) {
		if _, ok := open[c.FullPath()]; ok {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if ok && subtle.ConstantTimeCompare([]byte(u+":"+p), want) == 1 {
			c.Set(gin.AuthUserKey, u)
			c.Next()
			return
		}
		c.Header("WWW-Authenticate", `Basic realm="`+authRealm+`", charset="UTF-8"`)
		fail(c, http.StatusUnauthorized, "unauthorized", "authentication required")
		c.Abort()
	}
}
