package mailbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nhle/mailtriage/internal/metrics"
)

// Strategy names the addressing mode that relocated a message.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategySequence
	StrategyUID
)

func (s Strategy) String() string {
	switch s {
	case StrategySequence:
		return "sequence"
	case StrategyUID:
		return "uid"
	default:
		return "none"
	}
}

// ErrNoUID is recorded when the server did not report a unique id for the
// message, so the uid fallback could not run.
var ErrNoUID = errors.New("server returned no uid")

// Outcome reports the result of Mover.Move.
type Outcome struct {
	Moved    bool
	Mailbox  string   // concrete mailbox the message was copied to
	Strategy Strategy // StrategyNone when Moved is false
	Err      error    // last rejection seen, for logging only
}

// Mover relocates messages within the selected mailbox of one connection.
//
// A message is copied and then flagged \Deleted; it is never expunged here.
// Addressing by sequence number is tried first for every candidate name,
// then addressing by uid. The \Deleted flag is only set after a successful
// copy of the same candidate in the same mode.
type Mover struct {
	sess    Session
	catalog *Catalog
	log     zerolog.Logger
}

// NewMover returns a Mover resolving destinations through catalog.
func NewMover(sess Session, catalog *Catalog, log zerolog.Logger) *Mover {
	return &Mover{sess: sess, catalog: catalog, log: log}
}

// Move relocates message seq to the mailbox standing for logical. Server
// rejections are logged and absorbed; the result is reported in Outcome.
func (m *Mover) Move(ctx context.Context, seq uint32, logical string) Outcome {
	log := m.log.With().Uint32("seq", seq).Str("dest", logical).Logger()

	candidates := m.catalog.Resolve(ctx, logical)
	if len(candidates) == 0 {
		return Outcome{Err: fmt.Errorf("no candidate mailbox for %q", logical)}
	}

	var lastErr error

	for _, mb := range candidates {
		if err := ctx.Err(); err != nil {
			return Outcome{Err: err}
		}

		if err := m.catalog.EnsureExists(ctx, mb); err != nil {
			log.Debug().Err(err).Str("mailbox", mb).Msg("create rejected")
		}

		log.Debug().Str("mailbox", mb).Msg("COPY")
		if err := m.sess.CopySeq(ctx, seq, mb); err != nil {
			log.Debug().Err(err).Str("mailbox", mb).Msg("COPY rejected")
			metrics.MoveAttemptsTotal.WithLabelValues("sequence", "copy_failed").Inc()
			lastErr = err
			continue
		}

		log.Debug().Str("mailbox", mb).Msg("STORE +FLAGS (\\Deleted)")
		if err := m.sess.MarkDeletedSeq(ctx, seq); err != nil {
			log.Debug().Err(err).Str("mailbox", mb).Msg("STORE rejected")
			metrics.MoveAttemptsTotal.WithLabelValues("sequence", "mark_failed").Inc()
			lastErr = err
			continue
		}

		metrics.MoveAttemptsTotal.WithLabelValues("sequence", "ok").Inc()
		log.Info().Str("mailbox", mb).Str("strategy", StrategySequence.String()).Msg("message moved")
		return Outcome{Moved: true, Mailbox: mb, Strategy: StrategySequence}
	}

	uid, err := m.sess.FetchUID(ctx, seq)
	if err == nil && uid == 0 {
		err = ErrNoUID
	}
	if err != nil {
		metrics.MoveAttemptsTotal.WithLabelValues("uid", "no_uid").Inc()
		log.Warn().Err(err).AnErr("last_error", lastErr).Msg("move failed, uid unavailable")
		return Outcome{Err: err}
	}

	log = log.With().Uint32("uid", uint32(uid)).Logger()

	for _, mb := range candidates {
		if err := ctx.Err(); err != nil {
			return Outcome{Err: err}
		}

		log.Debug().Str("mailbox", mb).Msg("UID COPY")
		if err := m.sess.CopyUID(ctx, uid, mb); err != nil {
			log.Debug().Err(err).Str("mailbox", mb).Msg("UID COPY rejected")
			metrics.MoveAttemptsTotal.WithLabelValues("uid", "copy_failed").Inc()
			lastErr = err
			continue
		}

		log.Debug().Str("mailbox", mb).Msg("UID STORE +FLAGS (\\Deleted)")
		if err := m.sess.MarkDeletedUID(ctx, uid); err != nil {
			log.Debug().Err(err).Str("mailbox", mb).Msg("UID STORE rejected")
			metrics.MoveAttemptsTotal.WithLabelValues("uid", "mark_failed").Inc()
			lastErr = err
			continue
		}

		metrics.MoveAttemptsTotal.WithLabelValues("uid", "ok").Inc()
		log.Info().Str("mailbox", mb).Str("strategy", StrategyUID.String()).Msg("message moved")
		return Outcome{Moved: true, Mailbox: mb, Strategy: StrategyUID}
	}

	log.Warn().Err(lastErr).Strs("candidates", candidates).Msg("move failed")
	return Outcome{Err: lastErr}
}
