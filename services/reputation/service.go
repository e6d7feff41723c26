package reputation

import (
	"strings"

	"github.com/stopthephish/phishwatch/config"
	"github.com/stopthephish/phishwatch/dto"
	"github.com/stopthephish/phishwatch/interfaces"
	"github.com/stopthephish/phishwatch/internal/enum"
	"github.com/stopthephish/phishwatch/internal/logger"
	"github.com/stopthephish/phishwatch/internal/utils"
)

type senderList struct {
	addresses map[string]struct{}
	domains   map[string]struct{}
}

type reputationService struct {
	log       logger.Logger
	dangerous senderList
	safe      senderList
}

func NewReputationService(cfg *config.ReputationConfig, log logger.Logger) interfaces.ReputationService {
	return &reputationService{
		log:       log,
		dangerous: parseList(cfg.DangerousSenders),
		safe:      parseList(cfg.SafeSenders),
	}
}

// parseList splits entries into exact addresses and "@domain" wildcards.
// Entries are matched case-insensitively.
func parseList(entries []string) senderList {
	list := senderList{
		addresses: make(map[string]struct{}),
		domains:   make(map[string]struct{}),
	}

	for _, entry := range entries {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if strings.HasPrefix(entry, "@") {
			list.domains[strings.TrimPrefix(entry, "@")] = struct{}{}
		} else {
			list.addresses[entry] = struct{}{}
		}
	}

	return list
}

func (s *reputationService) Classify(sender string) (*dto.ClassificationResult, bool) {
	address := utils.ExtractAddressFromHeader(sender)
	if address == "" {
		return nil, false
	}
	domain := utils.ExtractDomainFromEmail(address)

	_, dangerAddress := s.dangerous.addresses[address]
	_, safeAddress := s.safe.addresses[address]
	dangerDomain := false
	safeDomain := false
	if domain != "" {
		_, dangerDomain = s.dangerous.domains[domain]
		_, safeDomain = s.safe.domains[domain]
	}

	switch {
	case !dangerAddress && !safeAddress && !dangerDomain && !safeDomain:
		return nil, false

	// Same kind on both lists: dangerous wins.
	case dangerAddress && safeAddress:
		s.log.Warnf("Sender %s is on both lists as an exact address, treating as dangerous", address)
		return dangerousVerdict(address, "address"), true
	case dangerDomain && safeDomain && !dangerAddress && !safeAddress:
		s.log.Warnf("Domain %s is on both lists, treating senders from it as dangerous", domain)
		return dangerousVerdict(address, "domain"), true

	// Conflicting kinds across lists: the exact address wins over the domain
	// wildcard, whichever list each is on.
	case dangerAddress && safeDomain:
		s.log.Warnf("Sender %s is listed dangerous while its domain %s is listed safe, address match wins", address, domain)
		return dangerousVerdict(address, "address"), true
	case safeAddress && dangerDomain:
		s.log.Warnf("Sender %s is listed safe while its domain %s is listed dangerous, address match wins", address, domain)
		return safeVerdict(address, "address"), true

	case dangerAddress || dangerDomain:
		kind := "address"
		if !dangerAddress {
			kind = "domain"
		}
		return dangerousVerdict(address, kind), true

	default:
		kind := "address"
		if !safeAddress {
			kind = "domain"
		}
		return safeVerdict(address, kind), true
	}
}

func dangerousVerdict(address, kind string) *dto.ClassificationResult {
	return &dto.ClassificationResult{
		Classification: enum.VerdictDangerous,
		Reason:         "Sender " + address + " matched the dangerous sender list by " + kind,
		Advice:         "Do not reply or follow any links. Delete the message.",
	}
}

func safeVerdict(address, kind string) *dto.ClassificationResult {
	return &dto.ClassificationResult{
		Classification: enum.VerdictSafe,
		Reason:         "Sender " + address + " matched the safe sender list by " + kind,
		Advice:         "No action needed.",
	}
}
