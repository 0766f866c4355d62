package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"preflight/internal/config"
)

// ConfigurationError reports invalid handler options.
type ConfigurationError struct {
	Handler string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("handler %s: invalid configuration: %v", e.Handler, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// commonOptions are accepted by every agent-backed handler.
type commonOptions struct {
	Model       string `mapstructure:"model"`
	Reflections int    `mapstructure:"reflections" validate:"omitempty,min=1,max=10"`
}

// rounds picks the per-handler bound, then the controller's, then the default.
func (o commonOptions) rounds(deps Deps) int {
	switch {
	case o.Reflections > 0:
		return o.Reflections
	case deps.Reflections > 0:
		return deps.Reflections
	default:
		return config.DefaultReflections
	}
}

var validate = validator.New()

// decodeOptions decodes an open option map into out and validates it.
// Unknown keys are rejected.
func decodeOptions(handler string, opts map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return &ConfigurationError{Handler: handler, Err: err}
	}
	if err := dec.Decode(opts); err != nil {
		return &ConfigurationError{Handler: handler, Err: err}
	}

	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			err = errors.New(strings.Join(msgs, "; "))
		}
		return &ConfigurationError{Handler: handler, Err: err}
	}
	return nil
}
