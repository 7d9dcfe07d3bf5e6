package calendar

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// NewOpts are the options for New.
type NewOpts struct {
	// Kind selects the provider implementation, one of KindNone or KindHTTP.
	Kind string
	// Target is the bridge base URL, required for KindHTTP.
	Target string
	Logger *zap.Logger
}

// New builds the calendar provider for the configured kind. An empty kind
// means no calendar is wired and yields the no-op provider.
func New(o *NewOpts) (Provider, error) {
	if o == nil {
		o = &NewOpts{}
	}
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}

	switch o.Kind {
	case "", KindNone:
		return Static{}, nil
	case KindHTTP:
		if o.Target == "" {
			return nil, errors.New("http calendar provider requires a target URL")
		}
		return NewHTTP(o.Target, log), nil
	default:
		return nil, fmt.Errorf("unknown calendar provider kind %q", o.Kind)
	}
}
