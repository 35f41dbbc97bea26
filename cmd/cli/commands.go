package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/alextreichler/libreserve/internal/api"
	"github.com/alextreichler/libreserve/internal/csvimport"
	"github.com/alextreichler/libreserve/internal/filter"
	"github.com/alextreichler/libreserve/internal/models"
	"github.com/alextreichler/libreserve/internal/store"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
)

// passwordReader reads a password without echo. Tests replace it.
var passwordReader = func(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func defaultAPIBase() string {
	for _, key := range []string{"LIBRARY_API_BASE", "NEXT_PUBLIC_LIBRARY_API_BASE"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return api.DefaultBaseURL
}

func newRootCmd() *cobra.Command {
	var apiBase string
	root := &cobra.Command{
		Use:           "libreserve-cli",
		Short:         "Administer the library service from the command line",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&apiBase, "api", defaultAPIBase(), "library API base URL")

	st := func() *store.Store { return store.NewStore(apiBase) }
	root.AddCommand(newAddUserCmd(st), newImportBooksCmd(st), newBooksCmd(st))
	return root
}

func newAddUserCmd(st func() *store.Store) *cobra.Command {
	var in models.RegisterInput
	var role string
	cmd := &cobra.Command{
		Use:   "add-user",
		Short: "Register a member or admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Name == "" || in.Email == "" || in.Tel == "" {
				return errors.New("name, email and tel are required")
			}
			if in.Password == "" {
				pw, err := passwordReader("Password: ")
				if err != nil {
					return err
				}
				in.Password = pw
			}
			in.Role = models.ParseRole(role)
			if _, err := st().Register(cmd.Context(), in); err != nil {
				return fmt.Errorf("register %s: %w", in.Email, err)
			}
			green.Fprintf(cmd.OutOrStdout(), "✓ User '%s' created as %s.\n", in.Email, in.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "full name")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.Tel, "tel", "", "phone number")
	cmd.Flags().StringVar(&in.Password, "password", "", "password (prompted when omitted)")
	cmd.Flags().StringVar(&role, "role", string(models.RoleMember), "member or admin")
	return cmd
}

// adminToken signs in and checks the account really is an admin.
func adminToken(ctx context.Context, s *store.Store, email, password string) (string, error) {
	if password == "" {
		pw, err := passwordReader("Admin password: ")
		if err != nil {
			return "", err
		}
		password = pw
	}
	resp, err := s.Login(ctx, email, password)
	if err != nil {
		return "", fmt.Errorf("sign in as %s: %w", email, err)
	}
	profile, err := s.GetProfile(ctx, resp.Token)
	if err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	}
	if profile.Role != models.RoleAdmin {
		return "", fmt.Errorf("%s is not an admin", email)
	}
	return resp.Token, nil
}

func newImportBooksCmd(st func() *store.Store) *cobra.Command {
	var file, email, password string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import-books",
		Short: "Create books from a CSV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := csvimport.Parse(f)
			if err != nil {
				return err
			}
			for _, rej := range result.Rejected {
				yellow.Fprintf(out, "⚠️  line %d skipped: %s\n", rej.Line, rej.Reason)
			}
			cyan.Fprintf(out, "%d book(s) ready to import\n", len(result.Books))
			if dryRun || len(result.Books) == 0 {
				return nil
			}

			s := st()
			token, err := adminToken(cmd.Context(), s, email, password)
			if err != nil {
				return err
			}
			res := s.ImportBooks(cmd.Context(), token, result.Books)
			green.Fprintf(out, "✓ Imported %d book(s)\n", res.Succeeded)
			if res.Failed > 0 {
				return fmt.Errorf("failed to import %d book(s)", res.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file to import")
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password (prompted when omitted)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only validate the file")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newBooksCmd(st func() *store.Store) *cobra.Command {
	var criteria filter.BookCriteria
	var availability string
	cmd := &cobra.Command{
		Use:   "books",
		Short: "List the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			books, err := st().GetBooks(cmd.Context(), "")
			if err != nil {
				return err
			}
			criteria.Availability = filter.ParseAvailability(availability)
			matched := filter.Books(books, criteria)
			printBooks(cmd.OutOrStdout(), matched)
			cyan.Fprintf(cmd.OutOrStdout(), "%d of %d book(s)\n", len(matched), len(books))
			return nil
		},
	}
	cmd.Flags().StringVarP(&criteria.Query, "query", "q", "", "search title, author, ISBN or publisher")
	cmd.Flags().StringVar(&criteria.Publisher, "publisher", "", "exact publisher")
	cmd.Flags().StringVar(&availability, "availability", "all", "all, available or unavailable")
	return cmd
}

func printBooks(w io.Writer, books []models.Book) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tPUBLISHER\tAVAILABLE")
	for _, b := range books {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", b.ID, b.Title, b.Author, b.Publisher, b.AvailableAmount)
	}
	tw.Flush()
}
