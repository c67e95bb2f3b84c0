// Package errors classifies errors into short tags for metrics and logs.
package errors

import (
	"context"
	goerrors "errors"
	"path"
	"reflect"
	"strconv"
	"strings"

	domainauth "github.com/target/companion-client/internal/domain/auth"
)

// statusCoder is implemented by API errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// Classify maps err to a metric tag. The checks run in order:
//
//	identity errors   identity_<kind>
//	API errors        http_<status>
//	context errors    canceled, timeout
//	anything else     <package>_<type> of the innermost wrapped error
//
// A nil error yields "".
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var ie *domainauth.IdentityError
	if goerrors.As(err, &ie) {
		return "identity_" + string(ie.Kind)
	}
	var sc statusCoder
	if goerrors.As(err, &sc) {
		return "http_" + strconv.Itoa(sc.HTTPStatus())
	}
	switch {
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return typeTag(innermost(err))
}

func innermost(err error) error {
	for next := goerrors.Unwrap(err); next != nil; next = goerrors.Unwrap(err) {
		err = next
	}
	return err
}

func typeTag(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "unknown"
	}
	tag := t.Name()
	if pkg := t.PkgPath(); pkg != "" {
		tag = path.Base(pkg) + "_" + tag
	}
	return strings.ToLower(tag)
}
