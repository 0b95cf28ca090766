package cloudsync

import (
	"context"
	"time"

	"github.com/soyeahso/aide/internal/domain"
	"github.com/soyeahso/aide/internal/hooks"
)

// PushDelay coalesces bursts of conversation changes into one push.
var PushDelay = 2 * time.Second

// conversationEvents trigger an automatic push.
var conversationEvents = []string{
	hooks.EventTurnAppended,
	hooks.EventSummaryRefreshed,
	hooks.EventConversationCleared,
	hooks.EventConversationImported,
}

// AutoPush pushes the conversation returned by snapshot whenever a
// conversation hook fires, until ctx is done. Pushes are serialised and
// changes that arrive during a push are folded into the next one.
func (s *Syncer) AutoPush(ctx context.Context, hm *hooks.Manager, snapshot func() (domain.Conversation, error)) {
	kick := make(chan struct{}, 1)
	for _, ev := range conversationEvents {
		hm.On(ev, "cloudsync", func(context.Context, hooks.Payload) error {
			select {
			case kick <- struct{}{}:
			default:
			}
			return nil
		})
	}

	go func() {
		defer func() {
			for _, ev := range conversationEvents {
				hm.Off(ev, "cloudsync")
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-kick:
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(PushDelay):
			}

			conv, err := snapshot()
			if err != nil {
				s.log.Warn().Err(err).Msg("auto push: reading conversation")
				continue
			}
			if err := s.PushConversation(ctx, conv); err != nil {
				s.log.Warn().Err(err).Msg("auto push failed")
			}
		}
	}()
}
