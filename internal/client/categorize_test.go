package client

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"timeout context", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled context", context.Canceled, ErrorCategoryTimeout},
		{"configuration", fmt.Errorf("%w: API_KEY missing", ErrConfiguration), ErrorCategoryConfiguration},
		{"401", &ProviderError{StatusCode: 401}, ErrorCategoryUnauthorized},
		{"403", &ProviderError{StatusCode: 403}, ErrorCategoryUnauthorized},
		{"404", &ProviderError{StatusCode: 404}, ErrorCategoryNotFound},
		{"429", &ProviderError{StatusCode: 429}, ErrorCategoryRateLimited},
		{"400", &ProviderError{StatusCode: 400}, ErrorCategoryUpstream4xx},
		{"503", &ProviderError{StatusCode: 503}, ErrorCategoryUpstream5xx},
		{"wrapped 503", fmt.Errorf("fetch: %w", &ProviderError{StatusCode: 503}), ErrorCategoryUpstream5xx},
		{"parse", &ParseError{Err: errors.New("bad json")}, ErrorCategoryParsing},
		{"timeout in message", errors.New("request timeout"), ErrorCategoryTimeout},
		{"network in message", errors.New("http request failed: dial tcp"), ErrorCategoryNetwork},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError() = %v, want %v", got, tt.want)
			}
		})
	}
}
