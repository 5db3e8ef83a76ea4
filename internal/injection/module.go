package injection

import (
	"log/slog"
	"time"

	"github.com/webitel/im-context-relay/config"
	"go.uber.org/fx"
)

var Module = fx.Module("injection",
	fx.Provide(
		func(cfg *config.Config) *Cache {
			return NewCache(cfg.Store.HistoryCapacity)
		},
		func(cache *Cache, cfg *config.Config) *Synthesizer {
			return NewSynthesizer(cache, SynthOptionsFrom(cfg), time.Now)
		},
		func(cache *Cache, synth *Synthesizer, composer Composer, logger *slog.Logger, cfg *config.Config) (*Engine, error) {
			opts, err := OptionsFrom(cfg)
			if err != nil {
				return nil, err
			}
			return NewEngine(cache, synth, composer, logger, opts), nil
		},
	),
	// [HOT_RELOAD] position, voice and synthesis knobs follow the config file
	fx.Invoke(func(cfg *config.Config, engine *Engine, synth *Synthesizer, logger *slog.Logger) {
		cfg.OnChange(func(next *config.Config) {
			opts, err := OptionsFrom(next)
			if err != nil {
				logger.Warn("INJECTION_RELOAD_REJECTED", "err", err)
				return
			}
			engine.SetOptions(opts)
			synth.SetOptions(SynthOptionsFrom(next))
			logger.Info("INJECTION_OPTIONS_RELOADED", "position", opts.Position, "voice", opts.Voice, "enabled", opts.Enabled)
		})
	}),
)

func OptionsFrom(cfg *config.Config) (Options, error) {
	pos, err := ParsePosition(cfg.Injection.Position)
	if err != nil {
		return Options{}, err
	}
	voice, err := ParseVoice(cfg.Injection.Voice)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Enabled:  cfg.Injection.Enabled,
		Position: pos,
		Voice:    voice,
		MaxAge:   cfg.Injection.MaxAge,
	}, nil
}

func SynthOptionsFrom(cfg *config.Config) SynthOptions {
	return SynthOptions{
		MaxChars:       cfg.Injection.MaxChars,
		BingeThreshold: cfg.Injection.BingeThreshold,
		BingeWindow:    cfg.Injection.BingeWindow,
		ProgressLow:    cfg.Injection.ProgressLow,
		ProgressHigh:   cfg.Injection.ProgressHigh,
	}
}
