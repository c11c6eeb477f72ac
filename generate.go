package botledger

import (
	"context"
	"errors"
	"time"
)

// Generate runs one gated request: it reserves a unit of quota, calls gen,
// and either commits the spend (recording history for text models) or, if
// gen fails, refunds it. A cancelled ctx still gets its refund.
//
// When the commit or the history write fails after gen succeeded, the result
// is returned together with the error so the caller can still deliver the reply.
func (l *Ledger) Generate(ctx context.Context, userID, model, prompt string, gen Generator) (GenerateResult, error) {
	res, err := l.Reserve(ctx, userID, model)
	if err != nil {
		return GenerateResult{}, err
	}

	spec, _ := l.catalog.Lookup(model)
	conversational := spec.Conversational()

	req := GenerateRequest{
		Model:  model,
		Kind:   spec.Kind,
		Prompt: prompt,
	}
	if conversational {
		req.Messages, err = l.Conversation(ctx, userID, model, prompt)
		if err != nil {
			rbErr := l.Rollback(context.WithoutCancel(ctx), res)
			return GenerateResult{}, wrapErr("generate", userID, model, errors.Join(err, rbErr))
		}
	} else {
		req.Messages = []Message{{Role: RoleUser, Content: prompt}}
	}

	start := time.Now()
	resp, err := gen.Generate(ctx, req)
	duration := time.Since(start)

	if err != nil {
		rbErr := l.Rollback(context.WithoutCancel(ctx), res)
		l.meter.OnResult(ResultEvent{
			Generator: gen.Name(),
			UserID:    userID,
			Model:     model,
			Success:   false,
			Duration:  duration,
			Remaining: res.Remaining + 1,
			Error:     err,
		})
		return GenerateResult{}, wrapErr("generate", userID, model, errors.Join(err, rbErr))
	}

	// Success. The unit stays spent: the reply was produced.
	result := GenerateResult{Response: resp, Remaining: res.Remaining}
	if err := l.Commit(ctx, res); err != nil {
		return result, wrapErr("generate", userID, model, err)
	}
	l.meter.OnResult(ResultEvent{
		Generator: gen.Name(),
		UserID:    userID,
		Model:     model,
		Success:   true,
		Duration:  duration,
		Remaining: res.Remaining,
	})

	if conversational {
		if err := l.AppendHistory(context.WithoutCancel(ctx), userID, model, prompt, resp.Content); err != nil {
			return result, err
		}
	}
	return result, nil
}
