package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/epicwp/translation-orchestrator/internal/config"
)

// ErrPermanent marks failures that will not go away by retrying, such as a
// rejected request. Anything else is treated as transient.
var ErrPermanent = errors.New("permanent translation error")

// Context carries what the model needs besides the text itself.
type Context struct {
	Reference    string
	Subtype      string
	Instructions string
}

type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string, tc Context) (string, error)
}

func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// New builds the translator selected by the configuration.
func New(cfg *config.Config) (Translator, error) {
	switch strings.ToLower(cfg.Translator.Provider) {
	case "", "echo":
		return Echo{}, nil
	case ProviderOpenAI, ProviderOllama:
		return NewClient(cfg.Translator.Provider, cfg.Translator.BaseURL, cfg.Translator.APIKey, cfg.Translator.Model, cfg.Translator.Temperature), nil
	default:
		return nil, fmt.Errorf("unsupported translator provider: %s", cfg.Translator.Provider)
	}
}

// Echo prefixes the text with the target language. Used in development.
type Echo struct{}

func (Echo) Translate(_ context.Context, text, _, targetLang string, _ Context) (string, error) {
	return fmt.Sprintf("[%s] %s", targetLang, text), nil
}
