package devspace

import (
	"errors"
	"fmt"

	"github.com/onsi/gomega/format"
	"github.com/onsi/gomega/types"
)

type MatchBackendErrorMatcher struct {
	Error error
}

func (matcher *MatchBackendErrorMatcher) Match(actual interface{}) (success bool, err error) {
	actualErr, ok := actual.(error)
	if !ok {
		return false, fmt.Errorf("MatchBackendError matcher required an error, Got:\n%s", format.Object(actual, 1))
	}

	return errors.Is(actualErr, matcher.Error), nil
}

func (matcher *MatchBackendErrorMatcher) FailureMessage(actual interface{}) (message string) {
	return format.Message(actual, "to be", matcher.Error.Error())
}

func (matcher *MatchBackendErrorMatcher) NegatedFailureMessage(actual interface{}) (message string) {
	return format.Message(actual, "not to be", matcher.Error.Error())
}

func MatchBackendError(err error) types.GomegaMatcher {
	return &MatchBackendErrorMatcher{
		Error: err,
	}
}
