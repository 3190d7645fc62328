package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MimeLyc/tiered-sub-translator/internal/config"
	"github.com/MimeLyc/tiered-sub-translator/internal/eventlog"
	"github.com/MimeLyc/tiered-sub-translator/internal/pipeline"
	"github.com/MimeLyc/tiered-sub-translator/internal/record"
	"github.com/MimeLyc/tiered-sub-translator/internal/service"
	"github.com/MimeLyc/tiered-sub-translator/internal/subtitle"
	"github.com/MimeLyc/tiered-sub-translator/internal/translator"
	"github.com/MimeLyc/tiered-sub-translator/pkg/file"
	"github.com/MimeLyc/tiered-sub-translator/pkg/log"
)

type translateOptions struct {
	input      string
	output     string
	settings   config.RunConfig
	batchDelay time.Duration
}

func newTranslateCommand(ctx *commandContext) *cobra.Command {
	var (
		output    string
		target    string
		source    string
		genre     string
		prompt    string
		batchSize int
		pro       int
	)

	cmd := &cobra.Command{
		Use:   "translate <file.srt>",
		Short: "Translate one SRT file and write the result next to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.settings()
			if err != nil {
				return err
			}
			run := store.Get().Run

			flags := cmd.Flags()
			if flags.Changed("target") {
				run.TargetLang = target
			}
			if flags.Changed("source") {
				run.SourceLang = source
			}
			if flags.Changed("genre") {
				run.Genre = genre
			}
			if flags.Changed("prompt") {
				run.CustomPrompt = prompt
			}
			if flags.Changed("batch-size") {
				run.BatchSize = batchSize
			}
			if flags.Changed("pro") {
				run.ProAllocation = pro
				run.FlashAllocation = 100 - pro
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}

			_, err = runTranslate(cmd.Context(), client, translateOptions{
				input:      args[0],
				output:     output,
				settings:   run,
				batchDelay: ctx.cfg.Pipeline.BatchDelay,
			}, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default: <name>.<target>.srt next to the input)")
	cmd.Flags().StringVarP(&target, "target", "t", "", "Target language")
	cmd.Flags().StringVarP(&source, "source", "s", "", "Source language, or \"Auto Detect\"")
	cmd.Flags().StringVarP(&genre, "genre", "g", "", "Genre preset or free text passed to the model")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Extra instructions for the model")
	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, fmt.Sprintf("Lines per request (%d-%d)", config.MinBatchSize, config.MaxBatchSize))
	cmd.Flags().IntVar(&pro, "pro", 0, "Share of batches sent to the quality tier (0-100)")
	return cmd
}

// runTranslate translates one file end to end and writes the summary table
// to stdout. Progress goes to stderr.
func runTranslate(ctx context.Context, client translator.Client, opts translateOptions, stdout, stderr io.Writer) (*pipeline.Summary, error) {
	settings := opts.settings.Normalize()
	if err := settings.Validate(); err != nil {
		return nil, service.WrapError(err, service.ErrValidation, "invalid settings")
	}

	sub, err := subtitle.ReadFile(opts.input)
	if err != nil {
		return nil, service.WrapError(err, service.ErrFileRead, "failed to read subtitle").WithContext("path", opts.input)
	}
	if len(sub.Cues) == 0 {
		return nil, service.WrapError(pipeline.ErrNoItems, service.ErrParse, "no subtitles found").WithContext("path", opts.input)
	}

	output := opts.output
	if output == "" {
		output = file.OutputPath(opts.input, settings.TargetLang)
	}

	records := record.NewStore(record.FromCues(sub.Cues))
	progress := newProgressReporter(stderr, records.Len())

	var sinkOpts []eventlog.Option
	if progress.interactive() {
		sinkOpts = append(sinkOpts, eventlog.WithoutMirror())
	}
	sink := eventlog.New(sinkOpts...)
	sink.Info(fmt.Sprintf("Loaded %s with %d subtitles.", opts.input, records.Len()))
	if sub.Skipped > 0 {
		sink.Warning(fmt.Sprintf("Skipped %d malformed blocks.", sub.Skipped))
	}

	if settings.AutoSource() {
		if name := subtitle.LanguageName(subtitle.DetectLanguage(sub.Cues)); name != "" {
			settings.SourceLang = name
			sink.Info("Detected source language: " + name)
		} else {
			sink.Warning("Could not detect the source language.")
		}
	}

	controller := pipeline.NewController(client, records, sink,
		pipeline.WithBatchDelay(opts.batchDelay),
		pipeline.WithProgress(progress.update),
	)
	summary, err := controller.Run(ctx, settings)
	progress.finish()
	if err != nil {
		if summary != nil {
			fmt.Fprintln(stdout, summaryTable(summary, ""))
		}
		return summary, err
	}

	content := subtitle.Render(record.ToCues(records.Snapshot()))
	if err := subtitle.WriteFile(output, content); err != nil {
		return summary, service.WrapError(err, service.ErrFileWrite, "failed to write output").WithContext("path", output)
	}
	log.Info("Wrote %s", output)

	if progress.interactive() {
		printProblems(stderr, sink.Entries())
	}
	fmt.Fprintln(stdout, summaryTable(summary, output))
	return summary, nil
}

// printProblems writes the warnings and errors of a run that were hidden
// behind the progress bar.
func printProblems(w io.Writer, entries []eventlog.Entry) {
	for _, e := range entries {
		if e.Severity != eventlog.SeverityWarning && e.Severity != eventlog.SeverityError {
			continue
		}
		fmt.Fprintf(w, "[%s] %s\n", strings.ToUpper(string(e.Severity)), e.Message)
	}
}
