package botledger

import "context"

// History returns the recorded conversation for model, oldest first.
// It returns an empty slice when nothing is recorded.
func (l *Ledger) History(ctx context.Context, userID, model string) ([]Message, error) {
	if err := checkUser("history", userID); err != nil {
		return nil, err
	}

	msgs := []Message{}
	err := l.store.View(ctx, UserScope(userID), func(tx Tx) error {
		acc, ok, err := tx.Account(userID)
		if err != nil || !ok {
			return err
		}
		msgs = append(msgs, acc.History[model]...)
		return nil
	})
	if err != nil {
		return nil, wrapErr("history", userID, model, err)
	}
	return msgs, nil
}

// AppendHistory records one exchange: the user message, then the assistant
// reply. Older pairs beyond the history limit are dropped.
func (l *Ledger) AppendHistory(ctx context.Context, userID, model, userMsg, assistantMsg string) error {
	if err := checkUser("append_history", userID); err != nil {
		return err
	}

	err := l.store.Update(ctx, UserScope(userID), func(tx Tx) error {
		acc, _, err := l.loadOrSeed(tx, userID)
		if err != nil {
			return err
		}
		if acc.History == nil {
			acc.History = make(map[string][]Message)
		}
		msgs := append(acc.History[model],
			Message{Role: RoleUser, Content: userMsg},
			Message{Role: RoleAssistant, Content: assistantMsg},
		)
		acc.History[model] = trimHistory(msgs, l.historyLimit)
		return tx.PutAccount(userID, acc)
	})
	return wrapErr("append_history", userID, model, err)
}

// ClearHistory empties the history of model, or of every model when model
// is empty. Quotas are untouched.
func (l *Ledger) ClearHistory(ctx context.Context, userID, model string) error {
	if err := checkUser("clear_history", userID); err != nil {
		return err
	}

	err := l.store.Update(ctx, UserScope(userID), func(tx Tx) error {
		acc, ok, err := tx.Account(userID)
		if err != nil || !ok {
			return err
		}
		if model == "" {
			acc.History = make(map[string][]Message)
		} else if _, ok := acc.History[model]; ok {
			acc.History[model] = []Message{}
		} else {
			return nil
		}
		return tx.PutAccount(userID, acc)
	})
	return wrapErr("clear_history", userID, model, err)
}

// Conversation builds the messages for a request: the model's system prompt,
// the recorded history in order, then the new user turn.
func (l *Ledger) Conversation(ctx context.Context, userID, model, prompt string) ([]Message, error) {
	history, err := l.History(ctx, userID, model)
	if err != nil {
		return nil, err
	}

	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: l.catalog.SystemPrompt(model)})
	msgs = append(msgs, history...)
	msgs = append(msgs, Message{Role: RoleUser, Content: prompt})
	return msgs, nil
}

// trimHistory keeps the newest limit messages. limit is even, so the cut
// always falls between a user/assistant pair.
func trimHistory(msgs []Message, limit int) []Message {
	if len(msgs) <= limit {
		return msgs
	}
	return append([]Message(nil), msgs[len(msgs)-limit:]...)
}
