package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/mailtriage/internal/classifier"
	"github.com/nhle/mailtriage/internal/logging"
	"github.com/nhle/mailtriage/internal/mailbox"
	"github.com/nhle/mailtriage/internal/message"
	"github.com/nhle/mailtriage/internal/metrics"
	"github.com/nhle/mailtriage/internal/reply"
	"github.com/nhle/mailtriage/internal/store"
)

// defaultInterval is used when Config.Interval is not positive.
const defaultInterval = 60 * time.Second

// Config holds the poll loop settings.
type Config struct {
	Mailbox   string
	Processed string
	Escalate  string
	Sent      string

	Threshold float64
	Interval  time.Duration
	Expunge   bool

	// From is the envelope and header sender of replies; ReplyTo is
	// optional.
	From      string
	ReplyTo   string
	Signature reply.Signature
}

// Deps are the collaborators of a Poller.
type Deps struct {
	Dial       mailbox.Dialer
	Store      store.DedupStore
	Decoder    *message.Decoder
	Classifier classifier.Classifier
	Composer   *reply.Composer
	Sender     reply.Sender
	Log        zerolog.Logger
}

// Outcome labels for handled messages.
const (
	OutcomeReplied     = "replied"
	OutcomeEscalated   = "escalated"
	OutcomeSkipped     = "skipped"
	OutcomeUnmoved     = "unmoved"
	OutcomeFetchFailed = "fetch_failed"
)

// Report summarizes one cycle.
type Report struct {
	CycleID  string
	Unseen   int
	Outcomes map[string]int
}

func (r *Report) add(outcome string) {
	if r.Outcomes == nil {
		r.Outcomes = map[string]int{}
	}
	r.Outcomes[outcome]++
	metrics.MessagesTotal.WithLabelValues(outcome).Inc()
}

// Poller runs poll cycles against one mailbox. Cycles never overlap and
// each one uses a fresh connection.
type Poller struct {
	cfg  Config
	deps Deps
	now  func() time.Time
}

// New returns a Poller. Empty folder names fall back to the defaults.
func New(cfg Config, deps Deps) *Poller {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.Processed == "" {
		cfg.Processed = "Respondidos"
	}
	if cfg.Escalate == "" {
		cfg.Escalate = "Escalar"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if deps.Decoder == nil {
		deps.Decoder = message.NewDecoder(nil, "")
	}
	if deps.Composer == nil {
		deps.Composer = reply.NewComposer(nil)
	}
	return &Poller{cfg: cfg, deps: deps, now: time.Now}
}

// Run performs a cycle immediately and then sleeps a full interval after
// each cycle until ctx is cancelled. Cycle errors are logged; they never
// stop the loop.
func (p *Poller) Run(ctx context.Context) error {
	timer := time.NewTimer(p.cfg.Interval)
	defer timer.Stop()

	p.deps.Log.Info().
		Str("mailbox", p.cfg.Mailbox).
		Dur("interval", p.cfg.Interval).
		Float64("threshold", p.cfg.Threshold).
		Msg("poller started")

	for {
		if _, err := p.RunCycle(ctx); err != nil && ctx.Err() == nil {
			if mailbox.IsAuthError(err) {
				p.deps.Log.Error().Err(err).Msg("authentication failed, check credentials")
			} else {
				p.deps.Log.Error().Err(err).Msg("poll cycle failed")
			}
		}

		timer.Reset(p.cfg.Interval)
		select {
		case <-ctx.Done():
			p.deps.Log.Info().Msg("poller stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunCycle performs one connect-process-logout cycle. A panic anywhere in
// the cycle is recovered and returned as an error.
func (p *Poller) RunCycle(ctx context.Context) (report Report, err error) {
	report.CycleID = uuid.NewString()
	log := p.deps.Log.With().Str("cycle_id", report.CycleID).Logger()
	start := p.now()

	defer func() {
		result := "ok"
		if r := recover(); r != nil {
			err = fmt.Errorf("poll cycle panicked: %v", r)
			result = "panic"
		} else if err != nil {
			result = "error"
		}
		metrics.CyclesTotal.WithLabelValues(result).Inc()
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
		metrics.LastCycleTimestamp.SetToCurrentTime()
		log.Debug().Str("result", result).Interface("outcomes", report.Outcomes).Msg("cycle finished")
	}()

	sess, err := p.deps.Dial(ctx)
	if err != nil {
		return report, fmt.Errorf("connecting: %w", err)
	}
	defer func() {
		if lerr := sess.Logout(); lerr != nil {
			log.Debug().Err(lerr).Msg("logout failed")
		}
	}()

	if _, err := sess.SelectMailbox(ctx, p.cfg.Mailbox); err != nil {
		return report, fmt.Errorf("selecting %s: %w", p.cfg.Mailbox, err)
	}

	seqs, err := sess.SearchUnseen(ctx)
	if err != nil {
		return report, fmt.Errorf("searching unseen: %w", err)
	}
	report.Unseen = len(seqs)
	log.Debug().Int("unseen", len(seqs)).Msg("searched mailbox")

	c := &cycle{
		Poller:  p,
		sess:    sess,
		catalog: mailbox.NewCatalog(sess, log),
		log:     log,
	}
	c.mover = mailbox.NewMover(sess, c.catalog, log)

	for _, seq := range seqs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		outcome, err := c.handle(ctx, seq)
		if err != nil {
			return report, err
		}
		report.add(outcome)
	}

	if p.cfg.Expunge {
		if err := sess.Expunge(ctx); err != nil {
			log.Warn().Err(err).Msg("expunge failed")
		}
	}
	return report, nil
}

// cycle carries the per-connection state of one RunCycle.
type cycle struct {
	*Poller
	sess    mailbox.Session
	catalog *mailbox.Catalog
	mover   *mailbox.Mover
	log     zerolog.Logger
}

// handle processes one message. Only dedup store failures are returned;
// everything else degrades to escalation or to leaving the message alone.
func (c *cycle) handle(ctx context.Context, seq uint32) (string, error) {
	log := c.log.With().Uint32("seq", seq).Logger()

	raw, err := c.sess.FetchRaw(ctx, seq)
	if err != nil {
		log.Warn().Err(err).Msg("fetch failed, leaving message for next cycle")
		return OutcomeFetchFailed, nil
	}

	msg := c.deps.Decoder.Decode(raw)
	msg.EnsureID(seq, c.now())
	log = log.With().Str("message_id", msg.ID).Logger()

	seen, err := c.deps.Store.Seen(ctx, msg.ID)
	if err != nil {
		return "", fmt.Errorf("checking dedup store: %w", err)
	}
	if seen {
		log.Debug().Msg("already processed, skipping")
		return OutcomeSkipped, nil
	}

	decision := c.deps.Classifier.Classify(ctx, classifier.Input{
		From:      msg.From,
		Subject:   msg.Subject,
		PlainText: msg.PlainText,
		CodeBlock: msg.CodeBlock,
	})
	route := Decide(decision.Action, decision.Confidence, c.cfg.Threshold)
	log.Info().
		Str("from", logging.MaskEmail(msg.From)).
		Str("action", string(decision.Action)).
		Float64("confidence", decision.Confidence).
		Stringer("route", route).
		Msg("classified message")

	outcome := OutcomeEscalated
	if route == RouteSendAndArchive {
		if err := c.sendReply(ctx, msg, decision); err != nil {
			log.Warn().Err(err).Msg("reply not sent, escalating")
			route = RouteEscalate
		}
	}

	if route == RouteSendAndArchive {
		outcome = OutcomeReplied
		if out := c.mover.Move(ctx, seq, c.cfg.Processed); !out.Moved {
			log.Warn().Err(out.Err).Str("folder", c.cfg.Processed).Msg("move failed, falling back to escalate")
			if !c.mover.Move(ctx, seq, c.cfg.Escalate).Moved {
				outcome = OutcomeUnmoved
			}
		}
	} else if out := c.mover.Move(ctx, seq, c.cfg.Escalate); !out.Moved {
		log.Warn().Err(out.Err).Str("folder", c.cfg.Escalate).Msg("move failed, leaving message in place")
		outcome = OutcomeUnmoved
	}

	if err := c.deps.Store.MarkSeen(ctx, msg.ID); err != nil {
		return "", fmt.Errorf("recording %s as processed: %w", msg.ID, err)
	}
	return outcome, nil
}

var (
	errNoSender  = errors.New("message has no sender address")
	errEmptyBody = errors.New("classifier returned an empty reply body")
)

// sendReply composes and sends the answer, then files a copy in the sent
// mailbox when one can be found.
func (c *cycle) sendReply(ctx context.Context, msg message.ParsedMessage, d classifier.Decision) error {
	if msg.From == "" {
		return errNoSender
	}
	if strings.TrimSpace(d.Body) == "" {
		return errEmptyBody
	}
	if c.deps.Sender == nil {
		return errors.New("no send channel configured")
	}

	draft := reply.Draft{
		From:     c.cfg.From,
		ReplyTo:  c.cfg.ReplyTo,
		To:       msg.From,
		Subject:  reply.Subject(msg.Subject),
		Markdown: reply.WrapWithSignature(reply.FirstName(msg.From), d.Body, c.cfg.Signature),
		Date:     c.now(),
	}
	if !msg.Synthetic {
		draft.InReplyTo = msg.ID
	}

	raw, err := c.deps.Composer.Compose(draft)
	if err != nil {
		metrics.RepliesSentTotal.WithLabelValues("compose_failed").Inc()
		return fmt.Errorf("composing reply: %w", err)
	}
	if err := c.deps.Sender.Send(ctx, c.cfg.From, []string{msg.From}, raw); err != nil {
		metrics.RepliesSentTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("sending reply: %w", err)
	}
	metrics.RepliesSentTotal.WithLabelValues("ok").Inc()
	c.log.Info().Str("to", logging.MaskEmail(msg.From)).Str("subject", draft.Subject).Msg("reply sent")

	c.saveSent(ctx, raw)
	return nil
}

// saveSent appends a copy of a sent reply. Failures are only logged.
func (c *cycle) saveSent(ctx context.Context, raw []byte) {
	name := c.catalog.RoleMailbox(ctx, imap.MailboxAttrSent, c.cfg.Sent)
	if name == "" {
		c.log.Debug().Msg("no sent mailbox found, not keeping a copy")
		return
	}
	if err := c.sess.Append(ctx, name, raw, []imap.Flag{imap.FlagSeen}); err != nil {
		c.log.Warn().Err(err).Str("mailbox", name).Msg("could not save reply copy")
	}
}
