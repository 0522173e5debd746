package session

import (
	"net/http"

	"github.com/google/uuid"
)

// Cookie issues the browser-session cookie that names a Store session.
type Cookie struct {
	Name   string
	Secure bool
}

// ID returns the session id carried by r, or "" when there is none or it
// is malformed.
func (c Cookie) ID(r *http.Request) string {
	ck, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	if _, err := uuid.Parse(ck.Value); err != nil {
		return ""
	}
	return ck.Value
}

// Ensure returns the session id for r, issuing a new cookie when needed.
// The cookie has no expiry so the browser drops it at the end of the
// browsing session. A newly issued id is also added to r, so later Ensure
// and ID calls in the same request agree with what the browser will send.
func (c Cookie) Ensure(w http.ResponseWriter, r *http.Request) string {
	if sid := c.ID(r); sid != "" {
		return sid
	}
	sid := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	kept := r.Cookies()
	r.Header.Del("Cookie")
	for _, ck := range kept {
		if ck.Name != c.Name {
			r.AddCookie(ck)
		}
	}
	r.AddCookie(&http.Cookie{Name: c.Name, Value: sid})
	return sid
}
