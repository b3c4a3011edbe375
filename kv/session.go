package kv

import (
	"net/http"

	"github.com/gorilla/sessions"
)

// Session is a Store that keeps values inside one client's session. Every
// write saves the session, so it must happen before the response body is
// written.
type Session struct {
	sess *sessions.Session
	r    *http.Request
	w    http.ResponseWriter
}

// NewSession wraps sess for the duration of a single request.
func NewSession(sess *sessions.Session, r *http.Request, w http.ResponseWriter) *Session {
	return &Session{sess: sess, r: r, w: w}
}

func (s *Session) Get(key string) (string, bool, error) {
	v, ok := s.sess.Values[key].(string)
	return v, ok, nil
}

func (s *Session) Set(key, value string) error {
	s.sess.Values[key] = value
	return s.sess.Save(s.r, s.w)
}

func (s *Session) Delete(key string) error {
	if _, ok := s.sess.Values[key]; !ok {
		return nil
	}
	delete(s.sess.Values, key)
	return s.sess.Save(s.r, s.w)
}
