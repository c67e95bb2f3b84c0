package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	domainauth "github.com/target/companion-client/internal/domain/auth"
)

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) HTTPStatus() int { return e.code }

type customErr struct{}

func (*customErr) Error() string { return "custom" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{
			name: "identity kind through wrapping",
			err:  fmt.Errorf("login: %w", domainauth.NewIdentityError(domainauth.KindWrongPassword, "sign_in", nil)),
			want: "identity_wrong_password",
		},
		{name: "status", err: fmt.Errorf("get: %w", statusErr{code: 503}), want: "http_503"},
		{name: "deadline", err: fmt.Errorf("outer: %w", context.DeadlineExceeded), want: "timeout"},
		{name: "canceled", err: fmt.Errorf("outer: %w", context.Canceled), want: "canceled"},
		{name: "innermost type", err: fmt.Errorf("a: %w", fmt.Errorf("b: %w", &customErr{})), want: "errors_customerr"},
		{name: "identity wins over status", err: fmt.Errorf("x: %w", goerrors.Join(statusErr{code: 401}, domainauth.NewIdentityError(domainauth.KindTooManyAttempts, "sign_in", nil))), want: "identity_too_many_attempts"},
		{name: "plain", err: goerrors.New("boom"), want: "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
