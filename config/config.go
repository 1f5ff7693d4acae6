package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/fractal/core"
	"github.com/hupe1980/fractal/supervisor"
)

// ToolProcess declares one tool process to launch during initialization.
type ToolProcess struct {
	Name    string   `mapstructure:"name"`
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	Env     []string `mapstructure:"env"`
	Dir     string   `mapstructure:"dir"`
}

// File is the on-disk configuration shape.
type File struct {
	Agent struct {
		Name        string `mapstructure:"name"`
		Description string `mapstructure:"description"`
	} `mapstructure:"agent"`

	Provider struct {
		Name   string `mapstructure:"name"`
		Model  string `mapstructure:"model"`
		APIKey string `mapstructure:"api_key"`
	} `mapstructure:"provider"`

	Runtime struct {
		MaxIterations      int           `mapstructure:"max_iterations"`
		Timeout            time.Duration `mapstructure:"timeout"`
		ToolCallingVersion string        `mapstructure:"tool_calling_version"`
		CustomSystemPrompt string        `mapstructure:"custom_system_prompt"`
		RetainHistory      bool          `mapstructure:"retain_history"`
		MaxRetries         int           `mapstructure:"max_retries"`
		HandshakeTimeout   time.Duration `mapstructure:"handshake_timeout"`
		StopGracePeriod    time.Duration `mapstructure:"stop_grace_period"`
	} `mapstructure:"runtime"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`

	Tools []ToolProcess `mapstructure:"tools"`
}

// Load reads configuration from path (or the defaults fractal.{yaml,json,toml}
// in the working directory when path is empty) merged with FRACTAL_-prefixed
// environment variables. A missing config file is not an error: environment
// and defaults still apply.
func Load(path string) (*File, error) {
	v := viper.New()

	v.SetEnvPrefix("FRACTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, core.WrapError(core.CodeInitializationFailure, "read config file", err)
		}
	} else {
		v.SetConfigName("fractal")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, core.WrapError(core.CodeInitializationFailure, "read config file", err)
			}
		}
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, core.WrapError(core.CodeInitializationFailure, "decode config", err)
	}

	return &f, nil
}

func setDefaults(v *viper.Viper) {
	def := core.DefaultConfig()

	v.SetDefault("agent.name", "assistant")
	v.SetDefault("provider.name", def.Provider)
	v.SetDefault("provider.model", def.Model)
	v.SetDefault("runtime.max_iterations", def.MaxIterations)
	v.SetDefault("runtime.timeout", def.Timeout)
	v.SetDefault("runtime.tool_calling_version", string(def.ToolCallingVersion))
	v.SetDefault("runtime.retain_history", def.RetainHistory)
	v.SetDefault("runtime.max_retries", def.MaxRetries)
	v.SetDefault("runtime.handshake_timeout", def.HandshakeTimeout)
	v.SetDefault("runtime.stop_grace_period", def.StopGracePeriod)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// RuntimeConfig converts the file into the validated core configuration.
func (f *File) RuntimeConfig() (core.Config, error) {
	cfg := core.Config{
		Provider:           f.Provider.Name,
		Model:              f.Provider.Model,
		MaxIterations:      f.Runtime.MaxIterations,
		Timeout:            f.Runtime.Timeout,
		ToolCallingVersion: core.ToolCallingVersion(f.Runtime.ToolCallingVersion),
		CustomSystemPrompt: f.Runtime.CustomSystemPrompt,
		RetainHistory:      f.Runtime.RetainHistory,
		MaxRetries:         f.Runtime.MaxRetries,
		HandshakeTimeout:   f.Runtime.HandshakeTimeout,
		StopGracePeriod:    f.Runtime.StopGracePeriod,
	}
	if err := cfg.Validate(); err != nil {
		return core.Config{}, core.WrapError(core.CodeInitializationFailure, "invalid runtime config", err)
	}
	return cfg, nil
}

// ToolSpecs converts the declared tool processes into supervisor specs.
func (f *File) ToolSpecs() []supervisor.Spec {
	out := make([]supervisor.Spec, 0, len(f.Tools))
	for _, t := range f.Tools {
		out = append(out, supervisor.Spec{
			Name:    t.Name,
			Command: t.Command,
			Args:    t.Args,
			Env:     t.Env,
			Dir:     t.Dir,
		})
	}
	return out
}
