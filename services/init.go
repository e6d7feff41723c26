package services

import (
	"github.com/stopthephish/phishwatch/config"
	"github.com/stopthephish/phishwatch/interfaces"
	"github.com/stopthephish/phishwatch/internal/logger"
	"github.com/stopthephish/phishwatch/services/ai"
	"github.com/stopthephish/phishwatch/services/imap"
	"github.com/stopthephish/phishwatch/services/ledger"
	"github.com/stopthephish/phishwatch/services/notify"
	"github.com/stopthephish/phishwatch/services/oauth"
	"github.com/stopthephish/phishwatch/services/parser"
	"github.com/stopthephish/phishwatch/services/reputation"
)

type Services struct {
	TokenService      interfaces.TokenService
	LedgerService     interfaces.ProcessedLedger
	ReputationService interfaces.ReputationService
	ParserService     interfaces.ParserService
	AIService         interfaces.AIService
	NotifierService   interfaces.NotifierService
	MonitorService    interfaces.MonitorService
}

func InitServices(cfg *config.Config, log logger.Logger) (*Services, error) {
	tokens := oauth.NewTokenService(cfg.OAuthConfig, cfg.StorageConfig.TokenPath(), log)

	services := &Services{
		TokenService:      tokens,
		LedgerService:     ledger.NewLedgerService(cfg.StorageConfig.LedgerPath(), log),
		ReputationService: reputation.NewReputationService(cfg.ReputationConfig, log),
		ParserService:     parser.NewParserService(log),
		AIService:         ai.NewAIService(cfg.ClassifierConfig),
		NotifierService:   notify.NewNotifierService(cfg.NotifierConfig, log),
	}

	dialer := imap.NewDialer(cfg.IMAPConfig, tokens, log)
	services.MonitorService = imap.NewMonitorService(cfg.IMAPConfig, cfg.OAuthConfig, imap.MonitorDeps{
		Dialer:     dialer,
		Tokens:     tokens,
		Ledger:     services.LedgerService,
		Reputation: services.ReputationService,
		Parser:     services.ParserService,
		Classifier: services.AIService,
		Notifier:   services.NotifierService,
	}, log)

	return services, nil
}
