package util

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/mongo"
)

type errorSuite struct {
	suite.Suite
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, &errorSuite{})
}

func (s *errorSuite) TestIsTransientError() {
	type testCase struct {
		err    error
		expect bool
	}
	testCases := []testCase{
		{errors.New("not transient"), false},
		{context.Canceled, false},
		{mongo.WriteConcernError{}, false},
		{mongo.CommandError{Code: 6}, true},
		{mongo.CommandError{Code: 42}, false},
		{mongo.CommandError{Code: 175}, true},
		{mongo.CommandError{Code: 0}, false},
		{mongo.CommandError{Code: 0, Message: "not master"}, true},
		{mongo.CommandError{Code: 1234567, Labels: []string{"NetworkError"}}, true},
		{mongo.CommandError{Code: 1234567, Labels: []string{"SomeNotTransientThing"}}, false},
		{mongo.CommandError{Code: 1234567, Labels: []string{"TransientTransactionError"}}, true},
	}
	for _, c := range testCases {
		if c.expect {
			s.True(IsTransientError(c.err), "%+v", c.err)
		} else {
			s.False(IsTransientError(c.err), "%+v", c.err)
		}
	}
}

func (s *errorSuite) TestIsNamespaceNotFoundError() {
	s.True(IsNamespaceNotFoundError(mongo.CommandError{Code: NamespaceNotFound}))
	s.False(IsNamespaceNotFoundError(mongo.CommandError{Code: 1}))
}
