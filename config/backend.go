package config

import (
	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/fractal/core"
	"github.com/hupe1980/fractal/provider"
	"github.com/hupe1980/fractal/provider/anthropic"
	"github.com/hupe1980/fractal/provider/openai"
)

// NewBackend constructs the model backend the file selects. The SDK clients
// read their API keys from the environment when the file leaves api_key
// empty.
func (f *File) NewBackend() (provider.Backend, error) {
	switch f.Provider.Name {
	case "openai":
		return openai.NewBackend(func(o *openai.Options) {
			o.Model = f.Provider.Model
			o.APIKey = f.Provider.APIKey
		}), nil

	case "anthropic":
		return anthropic.NewBackend(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(f.Provider.Model)
			o.APIKey = f.Provider.APIKey
		}), nil

	case "mock":
		// Answers every query without tool calls. Used for wiring tests and
		// dry runs.
		return provider.NewMockBackend().EnqueueAnswer("mock backend response"), nil

	default:
		return nil, core.Errorf(core.CodeInitializationFailure,
			"unknown provider %q", f.Provider.Name)
	}
}
