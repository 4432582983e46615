package engine

import (
	"errors"
	"testing"
)

func TestAPIErrorRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  *APIError
		want bool
	}{
		{"unknown status is retryable", &APIError{StatusCode: 0, Err: errors.New("dial tcp: timeout")}, true},
		{"5xx is retryable", &APIError{StatusCode: 503, Err: errors.New("service unavailable")}, true},
		{"4xx is not retryable", &APIError{StatusCode: 400, Err: errors.New("bad request")}, false},
		{"404 is not retryable", &APIError{StatusCode: 404, Err: errors.New("index not found")}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Retryable(); got != tc.want {
				t.Fatalf("Retryable() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAPIErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	e := &APIError{StatusCode: 500, Err: inner}
	if !errors.Is(e, inner) {
		t.Fatalf("expected errors.Is to find wrapped inner error")
	}
}

func TestClassifyNilIsNil(t *testing.T) {
	if classify(nil) != nil {
		t.Fatalf("expected classify(nil) to return nil")
	}
}

func TestClassifyUnknownErrorDefaultsToRetryable(t *testing.T) {
	apiErr := classify(errors.New("connection reset by peer"))
	if !apiErr.Retryable() {
		t.Fatalf("expected an unclassified error to default to retryable")
	}
}
