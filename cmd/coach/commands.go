package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Edjavier-collab/Main2MI-sub000/app/llm"
	"github.com/Edjavier-collab/Main2MI-sub000/app/models"
	"github.com/Edjavier-collab/Main2MI-sub000/coach"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/progress"
	"github.com/Edjavier-collab/Main2MI-sub000/coach/router"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show identity, tier, quota and the current view",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), rt.coach.Snapshot(), rt.coach.CanStart(cmd.Context()), rt.coach.Mode())
		return nil
	},
}

func printStatus(w io.Writer, s coach.State, canStart bool, m coach.Mode) {
	who := "anonymous"
	if !s.Identity.Anonymous() {
		who = s.Identity.UserID
		if s.Identity.Email != "" {
			who += " <" + s.Identity.Email + ">"
		}
	}
	fmt.Fprintf(w, "identity:  %s (device %s)\n", who, s.Identity.DeviceID)
	fmt.Fprintf(w, "tier:      %s (%s)\n", s.Tier, s.TierSource)
	fmt.Fprintf(w, "remaining: %s\n", remainingText(s.Remaining))
	fmt.Fprintf(w, "can start: %t (%s)\n", canStart, m)
	fmt.Fprintf(w, "view:      %s (%s)\n", s.View, router.PathFor(s.View))
	fmt.Fprintf(w, "sessions:  %d", len(s.Sessions))
	if n := pendingCount(s.Sessions); n > 0 {
		fmt.Fprintf(w, ", %d waiting to sync", n)
	}
	fmt.Fprintln(w)
	if s.Orphans > 0 {
		fmt.Fprintf(w, "%d sessions from this device are not in your account. Run `mi-coach migrate` to add them.\n", s.Orphans)
	}
	if s.SignUpPrompt {
		fmt.Fprintln(w, "Sign up to save your progress across devices.")
	}
	if s.ReviewDue {
		fmt.Fprintln(w, "Enjoying the coach? Leave a review, or run `mi-coach review later`.")
	}
	if s.Notice != "" {
		fmt.Fprintln(w, s.Notice)
	}
}

func remainingText(r *int) string {
	if r == nil {
		return "unlimited"
	}
	return fmt.Sprintf("%d of %d this month", *r, coach.FreeMonthlyLimit)
}

func pendingCount(list []models.Session) int {
	n := 0
	for _, s := range list {
		if s.Sync == models.SyncPending {
			n++
		}
	}
	return n
}

var openCmd = &cobra.Command{
	Use:   "open <url>",
	Short: "Open a URL, such as a checkout return or an email link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		res, err := rt.coach.HandleURL(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("open %q: %w", args[0], err)
		}
		s := rt.coach.Snapshot()
		fmt.Fprintf(cmd.OutOrStdout(), "view: %s (%s)\n", s.View, rt.coach.Path())
		if res.Confirmed {
			fmt.Fprintf(cmd.OutOrStdout(), "tier: %s\n", res.Tier)
		}
		if s.Notice != "" {
			fmt.Fprintln(cmd.OutOrStdout(), s.Notice)
			rt.coach.ClearNotice()
		}
		return nil
	},
}

var navCmd = &cobra.Command{
	Use:   "nav <view>",
	Short: "Navigate to a view",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, ok := router.ParseView(args[0])
		if !ok {
			names := make([]string, 0, len(router.Views()))
			for _, v := range router.Views() {
				names = append(names, string(v))
			}
			return fmt.Errorf("unknown view %q (one of: %s)", args[0], strings.Join(names, ", "))
		}
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		got := rt.coach.Navigate(v)
		printView(cmd.OutOrStdout(), v, got)
		return nil
	},
}

func printView(w io.Writer, want, got router.View) {
	if want != "" && got != want {
		fmt.Fprintf(w, "redirected to %s (%s)\n", got, router.PathFor(got))
		return
	}
	fmt.Fprintf(w, "%s (%s)\n", got, router.PathFor(got))
}

var backCmd = &cobra.Command{
	Use:   "back",
	Short: "Go back one view",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		printView(cmd.OutOrStdout(), "", rt.back())
		return nil
	},
}

var forwardCmd = &cobra.Command{
	Use:   "forward",
	Short: "Go forward one view",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		printView(cmd.OutOrStdout(), "", rt.forward())
		return nil
	},
}

var patientFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a practice session",
	Long: `Start a practice session.

Free users get a random patient while they have sessions left this month.
Premium users may pick the patient with --patient <profile.json>.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		v := rt.coach.StartPractice(cmd.Context())
		switch v {
		case router.Login:
			fmt.Fprintln(out, "Sign in to start practicing.")
			return nil
		case router.Paywall:
			fmt.Fprintln(out, "You've used all your free sessions this month. Run `mi-coach upgrade monthly` for unlimited practice.")
			return nil
		case router.ScenarioSelection:
			patient := coach.GeneratePatient(nil)
			if patientFile != "" {
				if err := readJSON(patientFile, &patient); err != nil {
					return err
				}
			}
			v = rt.coach.SelectScenario(patient)
		}
		if v != router.Practice {
			printView(out, router.Practice, v)
			return nil
		}
		p := rt.coach.Snapshot().Patient
		fmt.Fprintf(out, "Your patient: %s, %d (%s)\n", p.Name, p.Age, p.Sex)
		fmt.Fprintf(out, "Presenting problem: %s\n", p.PresentingProblem)
		if p.ChiefComplaint != "" {
			fmt.Fprintf(out, "Chief complaint: %s\n", p.ChiefComplaint)
		}
		return nil
	},
}

// recording is the file accepted by `record`.
type recording struct {
	Patient    *models.PatientProfile `json:"patient"`
	Transcript []models.ChatMessage   `json:"transcript"`
	Feedback   *models.Feedback       `json:"feedback"`
}

var recordCmd = &cobra.Command{
	Use:   "record <transcript.json>",
	Short: "Record a finished practice session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rec recording
		if err := readJSON(args[0], &rec); err != nil {
			return err
		}
		if len(rec.Transcript) == 0 {
			return errors.New("transcript is empty")
		}
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		s := rt.coach.Snapshot()
		if rec.Patient != nil {
			rt.coach.SelectScenario(*rec.Patient)
		} else if s.Patient == nil {
			rt.coach.SelectScenario(coach.GeneratePatient(nil))
		}

		var feedback models.Feedback
		switch {
		case rec.Feedback != nil:
			feedback = *rec.Feedback
		case s.Identity.Anonymous():
			feedback = llm.InsufficientFeedback()
		default:
			patient := *rt.coach.Snapshot().Patient
			feedback, err = rt.client.AnalyzeSession(ctx, patient, rec.Transcript)
			if err != nil {
				logger.Warn("session analysis failed", "error", err)
				feedback = llm.InsufficientFeedback()
			}
		}

		saved := rt.coach.RecordSession(ctx, rec.Transcript, feedback)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "saved session %s (%s, %s)\n", saved.ID, saved.Tier, saved.Sync)
		fmt.Fprintf(out, "empathy: %d/5\n", feedback.EmpathyScore)
		if feedback.WhatWentRight != "" {
			fmt.Fprintf(out, "what went right: %s\n", feedback.WhatWentRight)
		}
		if feedback.AreasForGrowth != "" {
			fmt.Fprintf(out, "areas for growth: %s\n", feedback.AreasForGrowth)
		}
		fmt.Fprintf(out, "remaining: %s\n", remainingText(rt.coach.Remaining()))
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"history"},
	Short:   "List practice sessions",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		rt.coach.Navigate(router.History)
		list := rt.coach.Snapshot().Sessions
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "No sessions yet.")
			return nil
		}
		for _, s := range list {
			fmt.Fprintf(out, "%s  %-8s %-8s %-7s empathy %d  %s\n",
				s.Date.Local().Format("2006-01-02 15:04"), s.Tier, s.Sync, s.Patient.Name,
				s.Feedback.EmpathyScore, s.Patient.Topic)
		}
		return nil
	},
}

var ackBadges bool

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show streak, level, clinical hours and badges",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		s := rt.coach.Snapshot()
		if s.Progress == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Progress is unavailable until your sessions load.")
			return nil
		}
		printProgress(cmd.OutOrStdout(), *s.Progress, s.NewBadges)
		if ackBadges && len(s.NewBadges) > 0 {
			return rt.coach.AcknowledgeBadges(cmd.Context())
		}
		return nil
	},
}

func printProgress(w io.Writer, p progress.Progress, fresh []progress.Badge) {
	fmt.Fprintf(w, "level:    %d %s (%d XP", p.Level.Level, p.Level.Name, p.XP)
	if p.XPToNext > 0 {
		fmt.Fprintf(w, ", %d to next", p.XPToNext)
	}
	fmt.Fprintln(w, ")")
	fmt.Fprintf(w, "hours:    %.1f clinical hours\n", p.ClinicalHours)
	fmt.Fprintf(w, "streak:   %d days (best %d)\n", p.Streak.Current, p.Streak.Longest)
	fmt.Fprintf(w, "sessions: %d\n", p.TotalSessions)

	isNew := map[string]bool{}
	for _, b := range fresh {
		isNew[b.ID] = true
	}
	for _, b := range p.Badges {
		mark := ""
		if isNew[b.ID] {
			mark = " (new)"
		}
		fmt.Fprintf(w, "badge:    %s%s\n", b.Name, mark)
	}
	if p.Goal.Text != "" {
		fmt.Fprintf(w, "goal:     %s\n", p.Goal.Text)
	}
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the MI competency report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		rt.coach.Navigate(router.Reports)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rt.coach.Report())
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Generate the premium coaching summary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		sum, err := rt.coach.GenerateCoachingSummary(cmd.Context())
		switch {
		case errors.Is(err, coach.ErrSignInRequired):
			fmt.Fprintln(out, "Sign in to see your coaching summary.")
			return nil
		case errors.Is(err, coach.ErrPremiumRequired):
			fmt.Fprintln(out, "Coaching summaries are a premium feature. Run `mi-coach upgrade monthly`.")
			return nil
		case errors.Is(err, coach.ErrNoPremiumSessions):
			fmt.Fprintln(out, rt.coach.Snapshot().Notice)
			return nil
		case err != nil:
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the cached tier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		if err := rt.coach.Logout(cmd.Context()); err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "signed out locally (%v)\n", err)
		}
		if err := forgetToken(cfgFile, os.Getenv); err != nil {
			return err
		}
		if os.Getenv(envPrefix+"TOKEN") != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "unset %sTOKEN to stay signed out\n", envPrefix)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move sessions saved on this device into your account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		n, err := rt.coach.MigrateOrphans(cmd.Context())
		if errors.Is(err, coach.ErrSignInRequired) {
			fmt.Fprintln(cmd.OutOrStdout(), "Sign in to move these sessions into your account.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrated %d sessions\n", n)
		return err
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Retry sessions that did not reach the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		res, err := rt.coach.SyncPending(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "synced %d, still pending %d, dropped %d\n", res.Synced, res.Remaining, res.Dropped)
		return nil
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade <monthly|annual>",
	Short: "Start a premium checkout",
	Long: `Start a premium checkout and print the payment link.

After paying, pass the URL the browser lands on to ` + "`mi-coach open`" + ` to
confirm the upgrade.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := models.ParsePlan(args[0])
		if err != nil {
			return err
		}
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		if rt.coach.Snapshot().Identity.Anonymous() {
			fmt.Fprintln(cmd.OutOrStdout(), "Sign in before upgrading.")
			return nil
		}
		rt.coach.Navigate(router.Paywall)
		sess, err := rt.client.CreateCheckout(cmd.Context(), plan)
		if err != nil {
			return fmt.Errorf("create checkout: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), sess.URL)
		return nil
	},
}

var reviewCmd = &cobra.Command{
	Use:       "review <dismiss|later>",
	Short:     "Answer the review prompt",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"dismiss", "later"},
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		switch args[0] {
		case "dismiss":
			return rt.coach.DismissReview(cmd.Context())
		case "later":
			return rt.coach.RemindReviewLater(cmd.Context())
		}
		return fmt.Errorf("unknown answer %q", args[0])
	},
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func init() {
	startCmd.Flags().StringVar(&patientFile, "patient", "", "patient profile JSON (premium)")
	progressCmd.Flags().BoolVar(&ackBadges, "ack", false, "mark new badges as seen")

	rootCmd.AddCommand(statusCmd, openCmd, navCmd, backCmd, forwardCmd, startCmd, recordCmd,
		sessionsCmd, progressCmd, reportCmd, summaryCmd, logoutCmd, migrateCmd, syncCmd, upgradeCmd, reviewCmd)
}
