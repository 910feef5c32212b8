package provider

import "errors"

// Chain errors
var (
	ErrNoProviders        = errors.New("no providers configured")
	ErrAllProvidersFailed = errors.New("all providers failed")
)
