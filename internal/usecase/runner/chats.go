package runner

import (
	"context"
	"sort"

	"funpay-agent/internal/domain"
	"funpay-agent/internal/infra/metrics"
)

func (r *Runner) processChats(ctx context.Context, feed domain.ChatFeed) []domain.Event {
	r.state.setChatTag(feed.Tag)
	first := r.state.FirstCycle()
	now := r.now()

	var events, changed []domain.Event
	for i := range feed.Chats {
		chat := feed.Chats[i]
		if !r.state.updatePreview(chat.ID, chat.LastMessageText) {
			continue
		}
		r.feed.SaveChats(chat)

		ev := domain.Event{Tag: feed.Tag, Time: now, Chat: &chat}
		if first {
			ev.Kind = domain.EventInitialChat
			events = append(events, ev)
			continue
		}
		ev.Kind = domain.EventLastChatMessageChanged
		changed = append(changed, ev)
	}

	if len(changed) == 0 {
		return events
	}
	events = append(events, domain.Event{Kind: domain.EventChatsListChanged, Tag: feed.Tag, Time: now})
	if !r.opts.MessageHistory {
		return append(events, changed...)
	}

	for start := 0; start < len(changed); start += historyBatchSize {
		group := changed[start:min(start+historyBatchSize, len(changed))]
		histories, ok := r.fetchHistories(ctx, group)
		for _, ev := range group {
			events = append(events, ev)
			if !ok {
				continue
			}
			events = append(events, r.newMessageEvents(*ev.Chat, histories[ev.Chat.ID], feed.Tag)...)
		}
	}
	return events
}

func (r *Runner) fetchHistories(ctx context.Context, group []domain.Event) (map[int64][]domain.Message, bool) {
	names := make(map[int64]string, len(group))
	ids := make([]int64, 0, len(group))
	for _, ev := range group {
		names[ev.Chat.ID] = ev.Chat.Name
		ids = append(ids, ev.Chat.ID)
	}

	var histories map[int64][]domain.Message
	res := retry(ctx, fetchAttempts, fetchRetryDelay, r.newTimer(), func(ctx context.Context) error {
		h, err := r.feed.FetchHistories(ctx, names)
		if err != nil {
			metrics.RunnerFetchFailures.WithLabelValues("histories").Inc()
			r.log.Debug().Err(err).Ints64("chats", ids).Msg("runner: попытка получить историю не удалась")
			return err
		}
		histories = h
		return nil
	})
	if !res.OK() {
		r.log.Warn().
			Err(res.Err).
			Int("attempts", res.Attempts).
			Bool("fatal", res.Fatal).
			Ints64("chats", ids).
			Msg("runner: не удалось получить историю чатов")
		return nil, false
	}
	return histories, true
}

// newMessageEvents отбирает ещё не выданные сообщения чата.
// Для чата без отметки выдаётся только самое новое сообщение.
func (r *Runner) newMessageEvents(chat domain.ChatShortcut, history []domain.Message, tag string) []domain.Event {
	if len(history) == 0 {
		return nil
	}
	messages := make([]domain.Message, len(history))
	copy(messages, history)
	sort.SliceStable(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })

	watermark, known := r.state.Watermark(chat.ID)
	fresh := messages[:0]
	for _, msg := range messages {
		if known && msg.ID <= watermark {
			continue
		}
		fresh = append(fresh, msg)
	}
	if len(fresh) == 0 {
		return nil
	}
	if !known {
		fresh = fresh[len(fresh)-1:]
	}

	now := r.now()
	stack := domain.NewMessageStack()
	events := make([]domain.Event, 0, len(fresh))
	for i := range fresh {
		msg := fresh[i]
		msg.SentByAgent = r.state.IsSelfSent(chat.ID, msg.ID)
		if msg.ChatName == "" {
			msg.ChatName = chat.Name
		}
		events = append(events, domain.Event{
			Kind:    domain.EventNewMessage,
			Tag:     tag,
			Time:    now,
			Message: &msg,
			Stack:   stack,
		})
	}
	stack.Add(events...)
	r.state.advanceWatermark(chat.ID, fresh[len(fresh)-1].ID)
	return events
}
