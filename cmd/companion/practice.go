package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/target/companion-client/internal/apiclient"
	"github.com/target/companion-client/internal/bootstrap"
	"github.com/target/companion-client/internal/domain/quiz"
	"github.com/target/companion-client/internal/service"
	"gopkg.in/yaml.v3"
)

// gradeFile is a question set with recorded answers, keyed by question position.
type gradeFile struct {
	QuizType  string           `json:"quiz_type" yaml:"quiz_type"`
	Questions quiz.QuestionSet `json:"questions" yaml:"questions"`
	Answers   map[int]string   `json:"answers"   yaml:"answers"`
}

func loadGradeFile(path string) (gradeFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return gradeFile{}, fmt.Errorf("read question file: %w", err)
	}
	var f gradeFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &f)
	case ".json":
		err = json.Unmarshal(raw, &f)
	default:
		return gradeFile{}, fmt.Errorf("question file %s: unsupported extension (want .yaml, .yml or .json)", path)
	}
	if err != nil {
		return gradeFile{}, fmt.Errorf("parse question file %s: %w", path, err)
	}
	return f, nil
}

func newGradeCmd(c *cli) *cobra.Command {
	var record bool
	cmd := &cobra.Command{
		Use:   "grade <file.yaml|file.json>",
		Short: "Grade recorded answers against a question set locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := loadGradeFile(args[0])
			if err != nil {
				return err
			}
			session, err := service.NewPracticeSession(f.QuizType, f.Questions)
			if err != nil {
				return err
			}
			positions := make([]int, 0, len(f.Answers))
			for i := range f.Answers {
				positions = append(positions, i)
			}
			slices.Sort(positions)
			for _, i := range positions {
				if err := session.Select(i, f.Answers[i]); err != nil {
					return err
				}
			}
			res, err := session.Submit()
			if err != nil {
				return err
			}
			if err := printGradingResult(c.out, res); err != nil {
				return err
			}
			if !record {
				return nil
			}
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				return c.recordPractice(ctx, app.API, session)
			})
		},
	}
	cmd.Flags().BoolVar(&record, "record", false, "record the graded attempt with the backend")
	return cmd
}

func newPracticeCmd(c *cli) *cobra.Command {
	var (
		params   apiclient.GenerateParams
		noRecord bool
	)
	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Generate a practice quiz, answer it interactively and grade it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd, func(ctx context.Context, app *bootstrap.App) error {
				set, err := app.API.GeneratePracticeQuiz(ctx, params)
				if err != nil {
					return err
				}
				session, err := service.NewPracticeSession("", set)
				if err != nil {
					return err
				}
				if err := c.answerInteractively(session); err != nil {
					return err
				}
				res, err := session.Submit()
				if err != nil {
					return err
				}
				if err := printGradingResult(c.out, res); err != nil {
					return err
				}
				if noRecord {
					return nil
				}
				return c.recordPractice(ctx, app.API, session)
			})
		},
	}
	cmd.Flags().StringVar(&params.Context, "context", "", "study material the questions are generated from")
	cmd.Flags().IntVar(&params.NumQuestions, "questions", apiclient.DefaultPracticeQuestions, "number of questions")
	cmd.Flags().StringVar(&params.TopicID, "topic", "", "topic id")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "do not record the attempt with the backend")
	_ = cmd.MarkFlagRequired("context")
	return cmd
}

// answerInteractively asks for each answer. An empty line leaves the question unanswered.
func (c *cli) answerInteractively(session *service.PracticeSession) error {
	for i, q := range session.Questions() {
		if _, err := fmt.Fprintf(c.out, "\n%d. %s\n", i+1, q.Text); err != nil {
			return err
		}
		for _, opt := range q.Options {
			if _, err := fmt.Fprintf(c.out, "   %s\n", opt); err != nil {
				return err
			}
		}
		for {
			label, err := c.prompt("Answer: ")
			if err != nil {
				return err
			}
			if label == "" {
				break
			}
			err = session.Select(i, label)
			if err == nil {
				break
			}
			if !errors.Is(err, service.ErrUnknownOption) {
				return err
			}
			_, _ = fmt.Fprintf(c.errOut, "%q is not one of the options\n", label)
		}
	}
	return nil
}

func (c *cli) recordPractice(ctx context.Context, api *apiclient.Client, session *service.PracticeSession) error {
	attempt, err := session.ToPracticeAttempt()
	if err != nil {
		return err
	}
	id, err := api.SubmitPracticeAttempt(ctx, attempt)
	if err != nil {
		return fmt.Errorf("record practice attempt: %w", err)
	}
	_, err = fmt.Fprintf(c.out, "recorded attempt %s\n", id)
	return err
}

func printGradingResult(w io.Writer, res quiz.GradingResult) error {
	if _, err := fmt.Fprintf(w, "Score: %d/%d (%d%%)\n", res.Correct, res.Total, res.Percent()); err != nil {
		return err
	}
	return printQuestionResults(w, res.Questions)
}

func printQuestionResults(w io.Writer, results []quiz.QuestionResult) error {
	for i, r := range results {
		mark := "wrong"
		if r.IsCorrect {
			mark = "correct"
		}
		if _, err := fmt.Fprintf(w, "%d. [%s] %s\n   your answer: %s, correct answer: %s\n",
			i+1, mark, r.Text, dashIfEmpty(r.UserAnswer), r.CorrectAnswer); err != nil {
			return err
		}
		if r.Explanation != "" {
			if _, err := fmt.Fprintf(w, "   %s\n", r.Explanation); err != nil {
				return err
			}
		}
	}
	return nil
}
