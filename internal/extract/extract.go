// Package extract turns a stamped transcript into timestamp-anchored quote
// blocks or a free-form analysis document through follow-up model calls.
package extract

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/snarg/pullquote/internal/request"
	"github.com/snarg/pullquote/internal/transcribe"
)

// TextClient is the slice of the model API the extractor needs.
type TextClient interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// QuoteBlock is one extracted quote, in input order. Err is set when the
// moment's extraction failed after exhausting its retry budget; other
// moments are unaffected.
type QuoteBlock struct {
	Clock string
	Text  string
	Err   error
}

// Options configures an Extractor.
type Options struct {
	Client TextClient
	Policy *transcribe.CallPolicy // shared with the transcription driver
	Before int                    // context seconds before each moment
	After  int                    // context seconds after each moment
	Log    zerolog.Logger
}

// Extractor runs quote and analysis extraction under the shared call policy.
type Extractor struct {
	client TextClient
	policy *transcribe.CallPolicy
	before int
	after  int
	log    zerolog.Logger
}

func New(opts Options) *Extractor {
	return &Extractor{
		client: opts.Client,
		policy: opts.Policy,
		before: opts.Before,
		after:  opts.After,
		log:    opts.Log.With().Str("component", "extract").Logger(),
	}
}

// Quotes extracts one quote block per moment. All moments are validated
// against duration up front; an invalid moment fails the whole call before
// a single model request is issued. Individual extraction failures are
// recorded on their block and do not abort the remaining moments.
func (e *Extractor) Quotes(ctx context.Context, transcript string, moments []request.Moment, duration float64, videoDescription string) ([]QuoteBlock, error) {
	wins, err := Windows(moments, e.before, e.after, duration)
	if err != nil {
		return nil, err
	}

	blocks := make([]QuoteBlock, len(moments))
	for i, m := range moments {
		blocks[i].Clock = m.Clock
		segment := Segment(transcript, wins[i])
		if segment == "" {
			e.log.Warn().Str("timestamp", m.Clock).Msg("no transcript lines in context window")
			blocks[i].Err = fmt.Errorf("no transcript content near %s", m.Clock)
			continue
		}

		prompt := QuotePrompt(segment, m.Clock, videoDescription, m.Description)
		var text string
		callErr := e.policy.Do(ctx, "extract quote "+m.Clock, func(ctx context.Context) error {
			var err error
			text, err = e.client.GenerateText(ctx, prompt)
			return err
		})
		if callErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.log.Warn().Err(callErr).Str("timestamp", m.Clock).Msg("quote extraction failed")
			blocks[i].Err = callErr
			continue
		}
		blocks[i].Text = text
		e.log.Info().Str("timestamp", m.Clock).Int("window_start", wins[i].Start).Int("window_end", wins[i].End).Msg("quote extracted")
	}
	return blocks, nil
}

// Analyze answers a free-form question about the whole transcript in a
// single model call.
func (e *Extractor) Analyze(ctx context.Context, transcript, question, videoDescription string) (string, error) {
	if question == "" {
		return "", &request.Error{Field: "question", Reason: "empty"}
	}
	prompt := AnalysisPrompt(transcript, question, videoDescription)

	var text string
	err := e.policy.Do(ctx, "analyze", func(ctx context.Context) error {
		var err error
		text, err = e.client.GenerateText(ctx, prompt)
		return err
	})
	if err != nil {
		return "", err
	}
	return text, nil
}
