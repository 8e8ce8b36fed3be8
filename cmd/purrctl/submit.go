package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/CharanSaiVaddi/purrctl/internal/apiclient"
	"github.com/CharanSaiVaddi/purrctl/internal/asyncjob"
	"github.com/CharanSaiVaddi/purrctl/internal/config"
	"github.com/CharanSaiVaddi/purrctl/internal/job"
	"github.com/CharanSaiVaddi/purrctl/internal/notify"
	"github.com/CharanSaiVaddi/purrctl/internal/storage"
)

func SubmitCmd(cfg *config.Config, journal storage.Journal, client func() *apiclient.Client, log *logrus.Entry) *cobra.Command {
	var (
		directive string
		itemsJSON string
		uwis      string
		curves    string
		timeout   time.Duration
	)
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Create a job and poll it until it finishes or times out",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := buildItems(itemsJSON, uwis, curves)
			if err != nil {
				return err
			}
			deadline := cfg.Deadline()
			if timeout > 0 {
				deadline = timeout
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sink, err := notify.Open(ctx, cfg.Notify, log)
			if err != nil {
				return err
			}
			defer sink.Close()

			results := make(chan asyncjob.Result, 1)
			pollErrs := make(chan error, 1)
			c := asyncjob.New(client(), func(r asyncjob.Result) { results <- r },
				asyncjob.WithPollInterval(cfg.PollInterval()),
				asyncjob.WithDeadline(deadline),
				asyncjob.WithLease(cfg.Lease()),
				asyncjob.WithLogger(log),
				asyncjob.WithErrorHandler(func(o job.Outcome, err error) {
					if o != job.OutcomePollError {
						return
					}
					select {
					case pollErrs <- err:
					default:
					}
				}),
			)
			defer c.Close()

			finish := func(comp job.Completion) {
				if err := journal.RecordCompletion(comp); err != nil {
					log.WithError(err).Error("failed to journal completion")
				}
				if err := sink.Publish(ctx, comp); err != nil {
					log.WithError(err).Error("failed to publish completion")
				}
			}

			if err := c.Submit(ctx, directive, items); err != nil {
				if errors.Is(err, asyncjob.ErrSubmit) {
					finish(job.Completion{Directive: directive, Outcome: job.OutcomeSubmitError, CompletedAt: time.Now().Unix()})
				}
				return err
			}
			log.WithField("job_id", c.State().JobID).Info("job submitted, waiting")

			var comp job.Completion
			select {
			case r := <-results:
				comp = r.Completion(directive, time.Now())
			case err := <-pollErrs:
				st := c.State()
				finish(job.Completion{
					JobID:       st.JobID,
					Directive:   directive,
					Outcome:     job.OutcomePollError,
					Status:      st.Last.Status(),
					Polls:       st.PollCount,
					Snapshot:    st.Last,
					CompletedAt: time.Now().Unix(),
				})
				return err
			case <-ctx.Done():
				return fmt.Errorf("interrupted while waiting for job %s", c.State().JobID)
			}

			finish(comp)
			if err := printJSON(comp); err != nil {
				return err
			}
			if comp.Outcome != job.OutcomeCompleted {
				return fmt.Errorf("job %s ended as %s", comp.JobID, comp.Outcome)
			}
			return nil
		},
	}
	submitCmd.Flags().StringVarP(&directive, "directive", "d", "", "Directive for the backend (e.g. add_petra_repo)")
	submitCmd.Flags().StringVar(&itemsJSON, "items", "", "Items as a JSON array")
	submitCmd.Flags().StringVar(&uwis, "uwi", "", "Well identifiers separated by commas or pipes")
	submitCmd.Flags().StringVar(&curves, "curves", "", "Curve names added to each --uwi item")
	submitCmd.Flags().DurationVar(&timeout, "timeout", 0, "How long to poll before giving up (default from config)")
	submitCmd.MarkFlagRequired("directive")
	submitCmd.MarkFlagsMutuallyExclusive("items", "uwi")
	return submitCmd
}

// buildItems reads the item list from either a JSON array or a UWI list.
func buildItems(itemsJSON, uwis, curves string) ([]any, error) {
	if itemsJSON != "" {
		var items []any
		if err := json.Unmarshal([]byte(itemsJSON), &items); err != nil {
			return nil, fmt.Errorf("invalid items JSON: %w", err)
		}
		return items, nil
	}
	if uwis == "" {
		return nil, errors.New("provide --items JSON or --uwi")
	}
	items := job.UWIItems(job.ParseUWIInput(uwis))
	if curves != "" {
		names := job.ParseCurveInput(curves)
		for _, it := range items {
			it.(map[string]any)["curves"] = names
		}
	}
	if len(items) == 0 {
		return nil, job.ErrNoItems
	}
	return items, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
