package encoder

import (
	"context"

	"go.uber.org/zap"

	"github.com/Garik-/midivae/internal/walk"
)

// RunOptions describe a whole-tree run.
type RunOptions struct {
	InputDir  string
	OutputDir string
	Walk      walk.Options
}

// Stats counts the files seen by Run.
type Stats struct {
	Matched      int
	Encoded      int
	SkippedParse int
	SkippedEmpty int
	Segments     int
}

func (s Stats) fields() []zap.Field {
	return []zap.Field{
		zap.Int("matched", s.Matched),
		zap.Int("encoded", s.Encoded),
		zap.Int("skipped_parse", s.SkippedParse),
		zap.Int("skipped_empty", s.SkippedEmpty),
		zap.Int("segments", s.Segments),
	}
}

// Run encodes every matching file under opts.InputDir into the mirrored
// output tree, one file at a time in walk order. Each file is finished before
// the next one is looked at. The first fatal error stops the run and is
// returned with the counts so far; files after it are left untouched. A
// summary line is logged in every case.
func (a *Adapter) Run(ctx context.Context, opts RunOptions) (stats Stats, err error) {
	log := a.log.Named("Run")

	defer func() {
		if err != nil {
			log.Error("run failed", append(stats.fields(), zap.Error(err))...)
			return
		}
		log.Info("done", stats.fields()...)
	}()

	if err = ctx.Err(); err != nil {
		return stats, err
	}

	err = walk.Walk(opts.InputDir, opts.OutputDir, opts.Walk, func(p walk.Pair) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, segments, err := a.encodeFile(ctx, p.Input, p.Output)
		if err != nil {
			return err
		}

		stats.Matched++
		switch outcome {
		case Encoded:
			stats.Encoded++
			stats.Segments += segments
		case SkippedParse:
			stats.SkippedParse++
		case SkippedEmpty:
			stats.SkippedEmpty++
		}
		return nil
	})
	return stats, err
}
