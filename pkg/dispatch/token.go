package dispatch

import (
	"bytes"

	"github.com/ajitpratap0/stratum/pkg/connector/core"
)

// TokenCompare orders two location tokens under the object's connector.
// When the connector supplies no comparison, tokens fall back to byte-wise
// ordering with nil sorting before any non-nil token and two nil tokens
// comparing equal.
func TokenCompare(o *Object, a, b core.Token) (int, error) {
	_, cls, err := o.resolve()
	if err != nil {
		return 0, fail(err)
	}

	if cls.Token != nil && cls.Token.Compare != nil {
		cmp, err := cls.Token.Compare(a, b)
		if err != nil {
			return 0, fail(backendErr(err, cls, "token compare"))
		}
		return cmp, nil
	}
	return tokenCompareBytes(a, b), nil
}

func tokenCompareBytes(a, b core.Token) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return bytes.Compare(a, b)
}

// TokenToString renders a token in the connector's string form. A connector
// without a string form yields the empty string without error; absence of
// the encoding is a property of the connector, not a failure.
func TokenToString(o *Object, t core.Token) (string, error) {
	actual, cls, err := o.resolve()
	if err != nil {
		return "", fail(err)
	}

	if cls.Token == nil || cls.Token.ToString == nil {
		return "", nil
	}

	s, err := cls.Token.ToString(actual, t)
	if err != nil {
		return "", fail(backendErr(err, cls, "token to string"))
	}
	return s, nil
}

// TokenFromString parses a token from the connector's string form. A
// connector without a string form yields a nil token without error.
func TokenFromString(o *Object, s string) (core.Token, error) {
	actual, cls, err := o.resolve()
	if err != nil {
		return nil, fail(err)
	}

	if cls.Token == nil || cls.Token.FromString == nil {
		return nil, nil
	}

	t, err := cls.Token.FromString(actual, s)
	if err != nil {
		return nil, fail(backendErr(err, cls, "token from string"))
	}
	return t, nil
}
