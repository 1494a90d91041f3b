// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi_test

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

var _ = Describe("Account lifecycle", Ordered, func() {
	var (
		f          *apiFixture
		session    *http.Cookie
		resetToken string
	)

	BeforeAll(func() {
		var err error
		f, err = newAPIFixture()
		Expect(err).NotTo(HaveOccurred())
	})

	It("registers alice", func() {
		rec := f.register("alice", "a@x.com", "pw1")
		Expect(rec.Code).To(Equal(http.StatusCreated))

		env, err := decode(rec)
		Expect(err).NotTo(HaveOccurred())
		payload, err := decodeUser(env)
		Expect(err).NotTo(HaveOccurred())
		Expect(payload.User).To(HaveKeyWithValue("name", "alice"))
		Expect(payload.User).NotTo(HaveKey("password"))
	})

	It("refuses a second alice", func() {
		Expect(f.register("alice", "b@x.com", "pw9").Code).To(Equal(http.StatusConflict))
	})

	It("logs alice in with a session cookie", func() {
		rec := f.login("alice", "pw1")
		Expect(rec.Code).To(Equal(http.StatusOK))
		session = sessionCookieOf(rec)
		Expect(session).NotTo(BeNil())
		Expect(session.HttpOnly).To(BeTrue())
	})

	It("accepts the cookie at the gate", func() {
		rec := f.do(http.MethodGet, base+"/me", nil, withCookie(session))
		Expect(rec.Code).To(Equal(http.StatusOK))
		env, err := decode(rec)
		Expect(err).NotTo(HaveOccurred())
		payload, err := decodeUser(env)
		Expect(err).NotTo(HaveOccurred())
		Expect(payload.User).To(HaveKeyWithValue("email", "a@x.com"))
	})

	It("keeps the password when the old one is wrong", func() {
		rec := f.do(http.MethodPost, base+"/changePassword",
			map[string]string{"oldPassword": "nope", "newPassword": "pw2"}, withCookie(session))
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(f.login("alice", "pw1").Code).To(Equal(http.StatusOK))
	})

	It("changes the password", func() {
		rec := f.do(http.MethodPost, base+"/changePassword",
			map[string]string{"oldPassword": "pw1", "newPassword": "pw2"}, withCookie(session))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(f.login("alice", "pw1").Code).To(Equal(http.StatusUnauthorized))
		Expect(f.login("alice", "pw2").Code).To(Equal(http.StatusOK))
	})

	It("mails a reset token on request", func() {
		rec := f.do(http.MethodPost, base+"/forgetPassword", map[string]string{"email": "a@x.com"})
		Expect(rec.Code).To(Equal(http.StatusOK))

		var err error
		resetToken, err = f.lastResetToken()
		Expect(err).NotTo(HaveOccurred())
	})

	It("does not accept the reset token as a session", func() {
		rec := f.do(http.MethodGet, base+"/me", nil, withBearer(resetToken))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("resets the password with the token", func() {
		rec := f.do(http.MethodPost, base+"/resetPassword/"+resetToken, map[string]string{"newPassword": "pw3"})
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(f.login("alice", "pw2").Code).To(Equal(http.StatusUnauthorized))
		Expect(f.login("alice", "pw3").Code).To(Equal(http.StatusOK))
	})

	It("rejects the reset token once it expires", func() {
		f.now = f.now.Add(10*time.Minute + time.Second)
		rec := f.do(http.MethodPost, base+"/resetPassword/"+resetToken, map[string]string{"newPassword": "pw4"})
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(f.login("alice", "pw3").Code).To(Equal(http.StatusOK))
	})

	It("logs alice out", func() {
		rec := f.do(http.MethodPost, base+"/logout", nil, withCookie(session))
		Expect(rec.Code).To(Equal(http.StatusOK))
		cleared := sessionCookieOf(rec)
		Expect(cleared).NotTo(BeNil())
		Expect(cleared.Value).To(BeEmpty())
	})
})
