package coach

import (
	"context"
	"strconv"

	"github.com/Edjavier-collab/Main2MI-sub000/coach/kv"
)

// ReviewPromptAfter is the session count at which the app asks for a review.
const ReviewPromptAfter = 3

// ReviewPrompt tracks when to ask for an app review.
type ReviewPrompt struct {
	device kv.Store
}

func NewReviewPrompt(device kv.Store) *ReviewPrompt {
	return &ReviewPrompt{device: device}
}

// Record bumps the device session count and reports whether to prompt.
func (p *ReviewPrompt) Record(ctx context.Context) (bool, error) {
	n, err := p.intValue(ctx, kv.KeySessionCount)
	if err != nil {
		return false, err
	}
	n++
	if err := p.device.Set(ctx, kv.KeySessionCount, []byte(strconv.Itoa(n))); err != nil {
		return false, err
	}
	return p.due(ctx, n)
}

func (p *ReviewPrompt) due(ctx context.Context, count int) (bool, error) {
	dismissed, err := kv.GetString(ctx, p.device, kv.KeyReviewDismissed)
	if err != nil {
		return false, err
	}
	if dismissed == "true" {
		return false, nil
	}
	after, err := p.intValue(ctx, kv.KeyReviewRemindAfter)
	if err != nil {
		return false, err
	}
	if after == 0 {
		after = ReviewPromptAfter
	}
	return count >= after, nil
}

// Dismiss stops all future prompts.
func (p *ReviewPrompt) Dismiss(ctx context.Context) error {
	return p.device.Set(ctx, kv.KeyReviewDismissed, []byte("true"))
}

// RemindLater asks again after three more sessions.
func (p *ReviewPrompt) RemindLater(ctx context.Context) error {
	n, err := p.intValue(ctx, kv.KeySessionCount)
	if err != nil {
		return err
	}
	return p.device.Set(ctx, kv.KeyReviewRemindAfter, []byte(strconv.Itoa(n+ReviewPromptAfter)))
}

func (p *ReviewPrompt) intValue(ctx context.Context, key string) (int, error) {
	raw, err := kv.GetString(ctx, p.device, key)
	if err != nil || raw == "" {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil
	}
	return n, nil
}
