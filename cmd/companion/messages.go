package main

import (
	"errors"
	"net/http"

	"github.com/target/companion-client/internal/apiclient"
	domainauth "github.com/target/companion-client/internal/domain/auth"
	"github.com/target/companion-client/internal/domain/quiz"
)

var identityMessages = map[domainauth.ErrorKind]string{
	domainauth.KindInvalidEmail:       "that email address is not valid",
	domainauth.KindWrongPassword:      "incorrect email or password",
	domainauth.KindAccountDisabled:    "this account has been disabled",
	domainauth.KindNoSuchAccount:      "no account exists for that email",
	domainauth.KindTooManyAttempts:    "too many attempts; wait a moment and try again",
	domainauth.KindNetworkUnavailable: "the sign-in service is unreachable; check your connection",
	domainauth.KindEmailInUse:         "an account with that email already exists",
	domainauth.KindNoActivePrincipal:  "you are not signed in",
}

// userMessage maps errors to text suitable for the terminal.
func userMessage(err error) string {
	var idErr *domainauth.IdentityError
	if errors.As(err, &idErr) {
		if msg, ok := identityMessages[idErr.Kind]; ok {
			return msg
		}
		return err.Error()
	}

	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			return "you are not signed in"
		case http.StatusForbidden:
			return "you do not have access to that resource"
		case http.StatusNotFound:
			return "not found"
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return http.StatusText(apiErr.StatusCode)
	}

	if errors.Is(err, quiz.ErrEmptyQuestionSet) {
		return "the question set is empty"
	}
	return err.Error()
}
