package mailer

import (
	"fmt"

	"github.com/papemosque/community-api/internal/config"
)

// NewSender builds the Sender selected by cfg.Provider.
func NewSender(cfg config.EmailConfig) (Sender, error) {
	switch cfg.Provider {
	case config.ProviderResend:
		return NewResendSender(cfg.ResendAPIKey, cfg.ResendBaseURL)

	case config.ProviderSMTP:
		var signer *DKIMSigner
		if cfg.DKIMKeyFile != "" {
			var err error
			signer, err = LoadDKIMSigner(cfg.DKIMKeyFile, cfg.DKIMDomain, cfg.DKIMSelector)
			if err != nil {
				return nil, err
			}
		}
		return NewSMTPSender(cfg.SMTPAddr, cfg.SMTPUsername, cfg.SMTPPassword, signer), nil

	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
}
