// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/httpapi"
	"github.com/holomush/accountd/internal/mail"
	"github.com/holomush/accountd/internal/observability"
	"github.com/holomush/accountd/internal/store/memory"
	"github.com/holomush/accountd/internal/token"
)

const base = httpapi.DefaultBasePath

var resetTokenPattern = regexp.MustCompile(`Token ([A-Za-z0-9_\-\.]+)</p>`)

// envelope decodes both the success and error response shapes.
type envelope struct {
	StatusCode int               `json:"statusCode"`
	Message    string            `json:"message"`
	Success    bool              `json:"success"`
	Data       json.RawMessage   `json:"data"`
	Errors     map[string]string `json:"errors"`
}

type userPayload struct {
	User        map[string]any `json:"user"`
	AccessToken string         `json:"accessToken"`
}

type apiFixture struct {
	handler http.Handler
	repo    *memory.Repository
	tokens  *token.Issuer
	mailer  *mail.Recorder
	metrics *observability.Metrics
	logs    *bytes.Buffer
	now     time.Time
}

func newAPIFixture(opts ...account.ServiceOption) (*apiFixture, error) {
	f := &apiFixture{
		repo:    memory.NewRepository(),
		mailer:  mail.NewRecorder(),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		logs:    &bytes.Buffer{},
		now:     time.Now().UTC().Truncate(time.Second),
	}
	clock := func() time.Time { return f.now }
	logger := slog.New(slog.NewJSONHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	hasher := account.NewArgon2idHasherWithParams(account.Argon2Params{Time: 1, Memory: 1024, Threads: 1})
	creds, err := account.NewCredentialStore(f.repo, hasher, account.WithClock(clock), account.WithCredentialLogger(logger))
	if err != nil {
		return nil, err
	}

	f.tokens, err = token.NewIssuer(token.Config{
		SessionSecret: []byte("session-secret-0123456789abcdefghij"),
		ResetSecret:   []byte("reset-secret-0123456789abcdefghijklm"),
		SessionTTL:    token.DefaultSessionTTL,
		ResetTTL:      token.DefaultResetTTL,
	}, token.WithClock(clock), token.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	svc, err := account.NewService(creds, f.tokens, f.mailer, append([]account.ServiceOption{account.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, err
	}

	auth, err := httpapi.NewAuthenticator(f.tokens, svc,
		httpapi.WithAuthMetrics(f.metrics),
		httpapi.WithAuthLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	f.handler, err = httpapi.NewRouter(svc, auth,
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(f.metrics),
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// do sends a request through the router. body is JSON-encoded unless it is
// a string, which is sent verbatim.
func (f *apiFixture) do(method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			panic(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func withBearer(tok string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func decode(rec *httptest.ResponseRecorder) (envelope, error) {
	var env envelope
	err := json.Unmarshal(rec.Body.Bytes(), &env)
	return env, err
}

func decodeUser(env envelope) (userPayload, error) {
	var p userPayload
	err := json.Unmarshal(env.Data, &p)
	return p, err
}

func sessionCookieOf(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == httpapi.SessionCookie {
			return c
		}
	}
	return nil
}

func (f *apiFixture) register(name, email, password string) *httptest.ResponseRecorder {
	return f.do(http.MethodPost, base+"/register", map[string]string{
		"name": name, "email": email, "password": password,
	})
}

func (f *apiFixture) login(name, password string) *httptest.ResponseRecorder {
	return f.do(http.MethodPost, base+"/login", map[string]string{
		"name": name, "password": password,
	})
}

func (f *apiFixture) lastResetToken() (string, error) {
	msgs := f.mailer.Messages()
	if len(msgs) == 0 {
		return "", fmt.Errorf("no mail sent")
	}
	m := resetTokenPattern.FindStringSubmatch(msgs[len(msgs)-1].HTMLBody)
	if len(m) != 2 {
		return "", fmt.Errorf("reset email carries no token")
	}
	return m[1], nil
}
