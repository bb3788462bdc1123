package signals

import (
	"context"
	"net/mail"
	"slices"
	"strings"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// EmailExtractor extracts phishing signals from an email.
type EmailExtractor struct {
	lookups   Lookups
	urgency   []string
	greetings []string
	freemail  []string
}

// NewEmailExtractor builds an email extractor from a weight configuration.
func NewEmailExtractor(cfg domain.WeightConfig, lookups Lookups) *EmailExtractor {
	return &EmailExtractor{
		lookups:   lookups,
		urgency:   keywordsFor(cfg, domain.ChannelEmail, domain.SignalUrgencyKeywordHits),
		greetings: keywordsFor(cfg, domain.ChannelEmail, domain.SignalGenericGreetingPresent),
		freemail:  lowerAll(cfg.Extraction.FreemailDomains),
	}
}

// Channel implements Extractor.
func (x *EmailExtractor) Channel() domain.Channel {
	return domain.ChannelEmail
}

// Extract implements Extractor.
func (x *EmailExtractor) Extract(ctx context.Context, in domain.RawInput) []domain.Signal {
	sender := strings.TrimSpace(in.Sender)
	content := in.Subject + "\n" + in.Text

	greetings := matchKeywords(in.Text, x.greetings)

	sigs := []domain.Signal{
		textSignal(domain.SignalSender, sender),
		textSignal(domain.SignalSubject, in.Subject),
		countSignal(domain.SignalUrgencyKeywordHits, matchKeywords(content, x.urgency)),
		{
			Name: domain.SignalGenericGreetingPresent,
			Kind: domain.KindFlag,
			Flag: len(greetings) > 0,
			Hits: greetings,
		},
		countSignal(domain.SignalEmbeddedURLs, findURLs(in.Text)),
	}

	sigs = append(sigs, x.headerSignals(sender, in.RawHeaders)...)

	if sig, ok := x.lookups.reputation(ctx, domain.SignalSenderReputation, domain.IndicatorEmail, addressOf(sender)); ok {
		sigs = append(sigs, sig)
	}
	return sigs
}

// headerSignals inspects Reply-To and authentication results.
// Without headers both signals are emitted unset.
func (x *EmailExtractor) headerSignals(sender, raw string) []domain.Signal {
	if strings.TrimSpace(raw) == "" {
		return []domain.Signal{
			flagSignal(domain.SignalReplyToMismatch, false, ""),
			countSignal(domain.SignalAuthFailures, nil),
		}
	}

	h, err := parseHeaders(raw)
	if err != nil {
		return []domain.Signal{failedSignal(domain.SignalRawHeaders, err.Error())}
	}

	from := addressOf(h.Get("From"))
	if from == "" {
		from = addressOf(sender)
	}
	fromDomain := domainOf(from)
	replyDomain := domainOf(addressOf(h.Get("Reply-To")))

	mismatch := replyDomain != "" && fromDomain != "" &&
		replyDomain != fromDomain && slices.Contains(x.freemail, replyDomain)

	reply := flagSignal(domain.SignalReplyToMismatch, mismatch, "")
	if mismatch {
		reply.Text = replyDomain
	}

	return []domain.Signal{reply, countSignal(domain.SignalAuthFailures, authFailures(h))}
}

func parseHeaders(raw string) (mail.Header, error) {
	raw = strings.TrimLeft(raw, "\r\n")
	if !strings.Contains(raw, "\n\n") && !strings.Contains(raw, "\r\n\r\n") {
		raw += "\r\n\r\n"
	}
	msg, err := mail.ReadMessage(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return msg.Header, nil
}

func authFailures(h mail.Header) []string {
	var failures []string
	add := func(f string) {
		if !slices.Contains(failures, f) {
			failures = append(failures, f)
		}
	}

	if strings.Contains(strings.ToLower(h.Get("Received-SPF")), "fail") {
		add("SPF check failed")
	}
	for _, v := range h["Authentication-Results"] {
		v = strings.ToLower(v)
		if strings.Contains(v, "spf=fail") || strings.Contains(v, "spf=softfail") {
			add("SPF check failed")
		}
		if strings.Contains(v, "dkim=fail") {
			add("DKIM signature failed")
		}
		if strings.Contains(v, "dmarc=fail") {
			add("DMARC policy failed")
		}
	}
	return failures
}

// addressOf extracts the bare lower-case address from a header value.
func addressOf(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(v); err == nil {
		return strings.ToLower(addr.Address)
	}
	return strings.ToLower(v)
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return strings.TrimSuffix(addr[i+1:], ">")
	}
	return ""
}
