package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ignite/outreach-core/internal/app"
	"github.com/ignite/outreach-core/internal/domain"
)

var errChecksFailed = errors.New("one or more checks failed")

type runFunc func(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error

type checkResult struct {
	ContactID string
	Passed    bool
	Detail    string
}

func evaluateCmd(withApp runFunc) *cobra.Command {
	var (
		channel string
		file    string
		expect  string
	)

	cmd := &cobra.Command{
		Use:   "evaluate [contact-id...]",
		Short: "Evaluate contacts on a channel",
		Long: `Evaluate each contact on the channel and compare against --expect:
  allow        the contact must be allowed (default)
  deny         the contact must be denied for any reason
  <reason>     the contact must be denied with exactly that reason (e.g. opted_out)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ch := domain.Channel(channel)
			if !ch.Valid() {
				return fmt.Errorf("invalid channel %q", channel)
			}
			ids := append([]string(nil), args...)
			if file != "" {
				fromFile, err := readIDs(file)
				if err != nil {
					return err
				}
				ids = append(ids, fromFile...)
			}
			if len(ids) == 0 {
				return errors.New("no contact ids given")
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				start := time.Now()
				results := a.Gate.EvaluateBatch(ctx, ids, ch)

				checks := make([]checkResult, len(results))
				for i, r := range results {
					checks[i] = judge(r.ContactID, r.Decision, r.Err, expect)
				}
				if !printReport(cmd.OutOrStdout(), ch, expect, checks, time.Since(start)) {
					return errChecksFailed
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&channel, "channel", string(domain.ChannelSMS), "channel to evaluate (sms, voice, email)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "file with one contact id per line")
	cmd.Flags().StringVar(&expect, "expect", "allow", "expected outcome: allow, deny, or a deny reason")
	return cmd
}

// judge compares one decision with the expected outcome.
func judge(id string, d domain.GateDecision, err error, expect string) checkResult {
	if err != nil {
		return checkResult{ContactID: id, Detail: fmt.Sprintf("evaluation error: %v", err)}
	}

	detail := "allowed"
	if !d.Allowed {
		detail = fmt.Sprintf("denied: %s (%s)", d.Reason, d.Reason.Description())
		if d.SignalAt != nil {
			detail += fmt.Sprintf(", signal at %s", d.SignalAt.UTC().Format(time.RFC3339))
		}
	}

	var passed bool
	switch expect {
	case "", "allow":
		passed = d.Allowed
	case "deny":
		passed = !d.Allowed
	default:
		passed = !d.Allowed && string(d.Reason) == expect
	}
	return checkResult{ContactID: id, Passed: passed, Detail: detail}
}

// printReport writes the verification report and reports whether every
// check passed.
func printReport(out io.Writer, ch domain.Channel, expect string, checks []checkResult, elapsed time.Duration) bool {
	fmt.Fprintln(out, "=========================================================")
	fmt.Fprintf(out, " GATE CHECK  channel=%s  expect=%s\n", ch, expect)
	fmt.Fprintln(out, "=========================================================")

	pass := color.New(color.FgGreen).Sprint("PASS ✓")
	fail := color.New(color.FgRed).Sprint("FAIL ✗")

	allPassed := true
	for i, r := range checks {
		status := pass
		if !r.Passed {
			status = fail
			allPassed = false
		}
		fmt.Fprintf(out, "  [%d] %-40s %s\n", i+1, r.ContactID, status)
		fmt.Fprintf(out, "      %s\n", r.Detail)
	}

	fmt.Fprintln(out, "=========================================================")
	if allPassed {
		fmt.Fprintf(out, "  OVERALL: %s  %d contacts checked in %s\n", pass, len(checks), elapsed.Round(time.Millisecond))
	} else {
		fmt.Fprintf(out, "  OVERALL: %s  %d contacts checked in %s\n", fail, len(checks), elapsed.Round(time.Millisecond))
	}
	fmt.Fprintln(out, "=========================================================")
	return allPassed
}

// readIDs reads one id per line, skipping blanks and # comments.
func readIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open id file: %w", err)
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read id file: %w", err)
	}
	return ids, nil
}
