package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/target/companion-client/internal/apiclient"
	"github.com/target/companion-client/internal/bootstrap"
	"github.com/target/companion-client/internal/domain/quiz"
)

func newDashboardCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the account, quizzes, recent attempts and topic progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				dash, err := app.API.LoadDashboard(ctx)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(c.out, "Welcome, %s\n\nQuizzes:\n", dash.User.Username); err != nil {
					return err
				}
				if err := printQuizzes(c.out, dash.Quizzes); err != nil {
					return err
				}
				if _, err := fmt.Fprintln(c.out, "\nAttempts:"); err != nil {
					return err
				}
				if err := printAttempts(c.out, dash.Attempts); err != nil {
					return err
				}
				if _, err := fmt.Fprintln(c.out, "\nProgress:"); err != nil {
					return err
				}
				return printProgress(c.out, dash.Progress)
			})
		},
	}
}

func newTopicsCmd(c *cli) *cobra.Command {
	var params apiclient.ListTopicsParams
	var progress bool
	cmd := &cobra.Command{
		Use:   "topics [topic-id]",
		Short: "List topics, show one topic, or show mastery per topic",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				switch {
				case progress:
					entries, err := app.API.ListProgress(ctx)
					if err != nil {
						return err
					}
					return printProgress(c.out, entries)
				case len(args) == 1:
					topic, err := app.API.GetTopic(ctx, args[0])
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(c.out, "%s  %s\n%s\n", topic.ID, topic.Name, topic.Description)
					return err
				}
				topics, err := app.API.ListTopics(ctx, params)
				if err != nil {
					return err
				}
				return printTopics(c.out, topics)
			})
		},
	}
	cmd.Flags().BoolVar(&progress, "progress", false, "show mastery per topic instead")
	cmd.Flags().IntVar(&params.Skip, "skip", 0, "number of topics to skip")
	cmd.Flags().IntVar(&params.Limit, "limit", 0, "maximum number of topics (server default when 0)")
	return cmd
}

func newQuizzesCmd(c *cli) *cobra.Command {
	var params apiclient.ListQuizzesParams
	cmd := &cobra.Command{
		Use:   "quizzes",
		Short: "List quizzes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				quizzes, err := app.API.ListQuizzes(ctx, params)
				if err != nil {
					return err
				}
				return printQuizzes(c.out, quizzes)
			})
		},
	}
	cmd.Flags().StringVar(&params.TopicID, "topic", "", "only quizzes for this topic id")
	cmd.Flags().IntVar(&params.Skip, "skip", 0, "number of quizzes to skip")
	cmd.Flags().IntVar(&params.Limit, "limit", 0, "maximum number of quizzes (server default when 0)")
	return cmd
}

func newAttemptsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attempts [attempt-id]",
		Short: "List recorded attempts, or show one in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				if len(args) == 1 {
					attempt, err := app.API.GetAttempt(ctx, args[0])
					if err != nil {
						return err
					}
					return printAttemptDetail(c.out, attempt)
				}
				attempts, err := app.API.ListAttempts(ctx)
				if err != nil {
					return err
				}
				return printAttempts(c.out, attempts)
			})
		},
	}
	return cmd
}

func printQuizzes(w io.Writer, quizzes []apiclient.Quiz) error {
	if len(quizzes) == 0 {
		_, err := fmt.Fprintln(w, "No quizzes.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tTITLE\tTOPIC\tADAPTIVE\tCREATED"); err != nil {
		return err
	}
	for _, q := range quizzes {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
			q.ID, q.Title, dashIfEmpty(q.TopicID), q.IsAdaptive, formatTime(q.CreatedAt)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printAttempts(w io.Writer, attempts []quiz.AttemptResult) error {
	if len(attempts) == 0 {
		_, err := fmt.Fprintln(w, "No attempts.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tKIND\tQUIZ\tSCORE\tSTARTED"); err != nil {
		return err
	}
	for _, a := range attempts {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Kind, dashIfEmpty(a.QuizID), formatScore(a.Score), formatTime(a.StartedAt)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printTopics(w io.Writer, topics []apiclient.Topic) error {
	if len(topics) == 0 {
		_, err := fmt.Fprintln(w, "No topics.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tNAME\tDESCRIPTION"); err != nil {
		return err
	}
	for _, t := range topics {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.Name, dashIfEmpty(t.Description)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printProgress(w io.Writer, entries []apiclient.TopicProgress) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No progress yet.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "TOPIC\tMASTERY"); err != nil {
		return err
	}
	for _, p := range entries {
		if _, err := fmt.Fprintf(tw, "%s\t%s\n", dashIfEmpty(p.TopicName), formatScore(p.MasteryLevel)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printAttemptDetail(w io.Writer, a quiz.AttemptResult) error {
	if _, err := fmt.Fprintf(w, "Attempt %s (%s) score %s\n", a.ID, a.Kind, formatScore(a.Score)); err != nil {
		return err
	}
	return printQuestionResults(w, a.Questions)
}

func formatScore(score float64) string {
	return fmt.Sprintf("%d%%", quiz.GradingResult{Score: score}.Percent())
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
