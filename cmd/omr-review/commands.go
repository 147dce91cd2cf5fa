package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"omraudit/internal/adapters/download"
	"omraudit/internal/domain"
	"omraudit/internal/services/review"
	"omraudit/internal/services/upload"
)

var (
	heading = color.New(color.FgCyan, color.Bold)
	good    = color.New(color.FgGreen)
	warn    = color.New(color.FgYellow)
)

func newLoginCmd(a *app) *cobra.Command {
	var user, token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the auditor name and audit token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("token") {
				creds, _ := a.creds.Snapshot()
				token = creds.Token
			}
			if err := a.creds.Set(domain.Credentials{User: user, Token: token}); err != nil {
				return err
			}
			good.Fprintf(a.out, "Logged in as %s\n", strings.TrimSpace(user))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "auditor name sent as X-Audit-User")
	cmd.Flags().StringVar(&token, "token", "", "audit token sent as X-Audit-Token")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := a.creds.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Credentials removed")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			creds, _ := a.creds.Snapshot()
			if creds.User == "" {
				fmt.Fprintln(a.out, "Not logged in")
				return nil
			}
			token := "not set"
			if creds.Token != "" {
				token = "set"
			}
			fmt.Fprintf(a.out, "user:  %s\ntoken: %s\napi:   %s\n", creds.User, token, a.cfg.APIURL)
			return nil
		},
	}
}

func newTemplatesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the templates offered by the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			templates, err := a.audits.Templates(cmd.Context())
			if err != nil {
				return err
			}
			for i, t := range templates {
				if i == 0 {
					fmt.Fprintf(a.out, "%s (default)\n", t)
					continue
				}
				fmt.Fprintln(a.out, t)
			}
			return nil
		},
	}
}

func newUploadCmd(a *app) *cobra.Command {
	var template string
	cmd := &cobra.Command{
		Use:   "upload ZIP",
		Short: "Process a ZIP of scanned answer sheets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			resp, err := a.uploads.Submit(cmd.Context(), domain.Upload{
				Template: template,
				FileName: filepath.Base(args[0]),
				Content:  f,
			})
			if err != nil {
				return err
			}
			printProcess(a, resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&template, "template", "", "template name (default: the backend's first)")
	return cmd
}

func printProcess(a *app, resp domain.ProcessResponse) {
	style := good
	if resp.Status != "success" {
		style = warn
	}
	style.Fprintf(a.out, "%s: %d of %d sheets processed, %d errors\n",
		resp.Status, resp.Summary.Processed, resp.Summary.Total, resp.Summary.Errors)
	fmt.Fprintf(a.out, "batch: %s\n", resp.Summary.BatchID)
	for _, e := range resp.Errors {
		warn.Fprintf(a.out, "  %s\n", e)
	}
	if resp.Audit == nil || len(resp.Audit.Items) == 0 {
		fmt.Fprintln(a.out, "No sheets need review.")
		return
	}
	heading.Fprintf(a.out, "\n%d sheets flagged for review\n", resp.Audit.Total)
	printItems(a, domain.SortByPriority(resp.Audit.Items))
	if id := upload.FirstItemID(resp); id != 0 {
		fmt.Fprintf(a.out, "\nStart with: omr-review review --batch %s\n", resp.Summary.BatchID)
	}
}

func printItems(a *app, items []domain.AuditListItem) {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILE\tSTATUS\tSEVERITY\tISSUES\tCREATED")
	for _, it := range items {
		issues := make([]string, 0, len(it.Issues))
		for _, is := range it.Issues {
			issues = append(issues, is.String())
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", it.ID, it.FileID, it.Status,
			domain.SeverityOf(it.Issues), strings.Join(issues, "; "), humanize.Time(it.CreatedAt.Time))
	}
	tw.Flush()
}

func newListCmd(a *app) *cobra.Command {
	var (
		p        domain.ListParams
		status   string
		priority bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p.Status = domain.AuditStatus(status)
			resp, err := a.audits.List(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "total %d • pending %d • resolved %d • reopened %d  (page %d/%d)\n",
				resp.Total, resp.Pending, resp.Resolved, resp.Reopened, resp.Page, max(resp.TotalPages, 1))
			items := resp.Items
			if priority {
				items = domain.SortByPriority(items)
			}
			printItems(a, items)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.BatchID, "batch", "", "only items of this batch")
	f.StringVar(&p.Template, "template", "", "only items of this template")
	f.StringVar(&status, "status", "", "pending, resolved or reopened")
	f.IntVar(&p.Page, "page", 1, "page number")
	f.IntVar(&p.PageSize, "page-size", 0, "items per page (1-100)")
	f.BoolVar(&priority, "priority", false, "order by issue severity instead of newest first")
	return cmd
}

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid audit id %q", arg)
	}
	return id, nil
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one audit item with its answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			d, err := a.audits.Detail(cmd.Context(), id)
			if err != nil {
				return err
			}
			printDetail(a, d)
			return nil
		},
	}
}

func printDetail(a *app, d domain.AuditDetail) {
	heading.Fprintf(a.out, "#%d %s\n", d.ID, d.FileID)
	fmt.Fprintf(a.out, "batch %s  template %s  status %s  updated %s\n",
		d.BatchID, d.Template, d.Status, humanize.Time(d.UpdatedAt.Time))
	if url := a.client.ImageURL(d.MarkedImageURL); url != "" {
		fmt.Fprintf(a.out, "marked:   %s\n", url)
	}
	if url := a.client.ImageURL(d.ImageURL); url != "" {
		fmt.Fprintf(a.out, "original: %s\n", url)
	}
	if d.Notes != nil && *d.Notes != "" {
		fmt.Fprintf(a.out, "notes: %s\n", *d.Notes)
	}
	issues := domain.IssueQuestions(d.Issues)
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUESTION\tREAD\tCORRECTED\tISSUE")
	for _, r := range d.Responses {
		read, corrected := "-", "-"
		if r.ReadValue != nil && *r.ReadValue != "" {
			read = *r.ReadValue
		}
		if r.CorrectedValue != nil {
			corrected = domain.NormalizeAnswer(*r.CorrectedValue)
		}
		mark := ""
		if issues[r.Question] {
			mark = "!"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Question, read, corrected, mark)
	}
	tw.Flush()
}

// parseAnswers reads "q1=A" pairs; an empty value clears the answer.
func parseAnswers(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		q, v, ok := strings.Cut(arg, "=")
		q = strings.TrimSpace(q)
		if !ok || q == "" {
			return nil, fmt.Errorf("expected QUESTION=VALUE, got %q", arg)
		}
		out[q] = domain.NormalizeAnswer(v)
	}
	return out, nil
}

func newDecideCmd(a *app) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "decide ID QUESTION=VALUE...",
		Short: "Record a decision for an audit item",
		Long: "Record a decision for an audit item. Only the named questions are " +
			"corrected; an empty VALUE marks the question blank.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			changes, err := parseAnswers(args[1:])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			current, err := a.audits.Detail(ctx, id)
			if err != nil {
				return err
			}
			known := make(map[string]bool, len(current.Responses))
			for _, r := range current.Responses {
				known[r.Question] = true
			}
			var unknown []string
			for q := range changes {
				if !known[q] {
					unknown = append(unknown, q)
				}
			}
			if len(unknown) > 0 {
				sort.Strings(unknown)
				return fmt.Errorf("unknown questions: %s", strings.Join(unknown, ", "))
			}
			req := domain.DecisionRequest{Answers: changes}
			if cmd.Flags().Changed("notes") {
				req.Notes = &notes
			} else {
				req.Notes = current.Notes
			}
			d, err := a.audits.SubmitDecision(ctx, id, req)
			if err != nil {
				return err
			}
			good.Fprintf(a.out, "Decision saved: %s is now %s\n", d.FileID, d.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "auditor notes")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export BATCH",
		Short: "Download the corrected results CSV of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			batch := args[0]
			sink := a.sink
			if dir != "" {
				sink = download.New(dir, a.log)
			}
			blob, err := a.audits.ExportFile(ctx, batch)
			if err != nil {
				return err
			}
			path, err := sink.Save(ctx, review.ExportFileName(batch), blob.Data)
			if err != nil {
				return err
			}
			good.Fprintf(a.out, "Saved %s (%s)\n", path, humanize.Bytes(uint64(len(blob.Data))))
			if meta, _ := a.audits.ExportMetadata(ctx, batch); meta != nil && meta.ExportedBy != nil {
				fmt.Fprintf(a.out, "first exported %s by %s\n", humanize.Time(meta.ExportedAt.Time), *meta.ExportedBy)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory to save into (overrides config)")
	return cmd
}

func newCleanupCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "cleanup BATCH",
		Short: "Delete an exported batch with its images and audit items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("cleanup cannot be undone; pass --yes to confirm")
			}
			resp, err := a.audits.Cleanup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			good.Fprintf(a.out, "Batch %s %s\n", resp.BatchID, resp.Status)
			for _, p := range resp.RemovedPaths {
				fmt.Fprintf(a.out, "  removed %s\n", p)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the cleanup")
	return cmd
}
