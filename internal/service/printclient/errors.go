package printclient

import (
	"errors"
	"fmt"

	"github.com/iurnickita/posprint/internal/service/printclient/config"
)

var (
	ErrConfiguration = config.ErrConfiguration
	ErrProviderAuth  = errors.New("token request rejected")
	ErrProviderPrint = errors.New("print request rejected")
	ErrTransport     = errors.New("print provider unreachable")
)

// ProviderError - единая ошибка клиента. Kind - одна из ErrProviderAuth, ErrProviderPrint, ErrTransport.
type ProviderError struct {
	Kind        error
	Code        string
	Description string
	Err         error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Description != "" && e.Code != "":
		return fmt.Sprintf("%s: %s (code %s)", e.Kind, e.Description, e.Code)
	case e.Description != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Description)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	case e.Code != "":
		return fmt.Sprintf("%s: code %s", e.Kind, e.Code)
	default:
		return e.Kind.Error()
	}
}

func (e *ProviderError) Is(target error) bool {
	return target == e.Kind
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
