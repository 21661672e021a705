// Package nlsqlctl implements the nlsqlctl command tree. Every subcommand maps to one HTTP
// endpoint of the API server.
package nlsqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// errUsage marks argument errors so Run can exit with code 2.
var errUsage = errors.New("usage error")

// httpError is returned for responses with a status of 400 or above.
type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, e.body)
}

// Run executes one command and returns the process exit code: 0 on success, 1 when the
// request fails or the server answers with an error status, 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	root := NewRootCommand(defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		var httpErr *httpError
		switch {
		case errors.As(err, &httpErr):
			_, _ = fmt.Fprintln(stderr, httpErr.Error())
			return 1
		case errors.Is(err, errUsage):
			_, _ = fmt.Fprintln(stderr, err.Error())
			_, _ = fmt.Fprintln(stderr, root.UsageString())
			return 2
		case isFlagError(err):
			_, _ = fmt.Fprintln(stderr, err.Error())
			return 2
		default:
			_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
			return 1
		}
	}
	return 0
}

// NewRootCommand builds the command tree. Flags are bound to a fresh client so the tree can be
// built more than once in a process.
func NewRootCommand(defaults Options) *cobra.Command {
	c := &client{}
	root := &cobra.Command{
		Use:           "nlsqlctl",
		Short:         "Command line client for the nlsql API",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if defaults.HTTPClient != nil {
				c.http = defaults.HTTPClient
			} else {
				c.http = &http.Client{Timeout: c.timeout}
			}
		},
	}
	root.PersistentFlags().StringVar(&c.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "nlsql API base URL")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 30s)")

	root.AddCommand(
		simpleCommand(c, "health", "Show database and model status", http.MethodGet, "/api/v0/health"),
		simpleCommand(c, "schema", "Describe tables and columns", http.MethodGet, "/api/v0/get_schema"),
		simpleCommand(c, "databases", "List databases on the server", http.MethodGet, "/api/v0/get_databases"),
		simpleCommand(c, "questions", "Suggest questions", http.MethodGet, "/api/v0/generate_question"),
		simpleCommand(c, "update-schema", "Train on DDL of every table", http.MethodPost, "/api/v0/update_schema"),
		generateSQLCommand(c),
		textBodyCommand(c, "run-sql <sql>", "Execute SQL and print the rows", "/api/v0/run_sql", "sql"),
		textBodyCommand(c, "ask <question>", "Generate SQL for a question and run it", "/api/v0/ask", "question"),
		textBodyCommand(c, "chat <question>", "Generate SQL for a question and run it, echoing the question", "/api/v0/chat", "question"),
		trainCommand(c),
		trainingCommand(c),
	)
	return root
}

func simpleCommand(c *client, use, short, method, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.call(cmd, method, path, nil)
		},
	}
}

func generateSQLCommand(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "generate-sql <question>",
		Short: "Generate SQL for a question",
		Args:  textArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{"question": []string{strings.Join(args, " ")}}
			return c.call(cmd, http.MethodGet, "/api/v0/generate_sql?"+query.Encode(), nil)
		},
	}
}

func textBodyCommand(c *client, use, short, path, field string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  textArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.call(cmd, http.MethodPost, path, map[string]string{field: strings.Join(args, " ")})
		},
	}
}

func trainCommand(c *client) *cobra.Command {
	var ddl, documentation, question, sqlText string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Add DDL, documentation or a question/SQL example",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload := map[string]string{}
			for key, value := range map[string]string{
				"ddl":           ddl,
				"documentation": documentation,
				"question":      question,
				"sql":           sqlText,
			} {
				if strings.TrimSpace(value) != "" {
					payload[key] = value
				}
			}
			if len(payload) == 0 {
				return fmt.Errorf("%w: one of --ddl, --documentation or --question with --sql is required", errUsage)
			}
			return c.call(cmd, http.MethodPost, "/api/v0/train", payload)
		},
	}
	cmd.Flags().StringVar(&ddl, "ddl", "", "CREATE statement to learn")
	cmd.Flags().StringVar(&documentation, "documentation", "", "Free-text business context")
	cmd.Flags().StringVar(&question, "question", "", "Example question, used with --sql")
	cmd.Flags().StringVar(&sqlText, "sql", "", "SQL answering --question")
	return cmd
}

func trainingCommand(c *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "training",
		Short: "Inspect and remove stored training data",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		simpleCommand(c, "list", "List training data", http.MethodGet, "/api/v0/get_training_data"),
		&cobra.Command{
			Use:   "remove <id>",
			Short: "Remove one training unit",
			Args:  exactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.call(cmd, http.MethodDelete, "/api/v0/remove_training_data", map[string]string{"id": args[0]})
			},
		},
	)
	return cmd
}

type client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

func (c *client) call(cmd *cobra.Command, method, path string, payload any) error {
	code, responseBody, err := c.doRequest(cmd.Context(), method, strings.TrimRight(c.baseURL, "/")+path, payload)
	if err != nil {
		return err
	}
	if code >= 400 {
		return &httpError{status: code, body: strings.TrimSpace(string(responseBody))}
	}

	out := cmd.OutOrStdout()
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(out, pretty)
		return nil
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(out, string(responseBody))
	}
	return nil
}

func (c *client) doRequest(ctx context.Context, method, endpoint string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("%w: %s takes no arguments", errUsage, cmd.CommandPath())
	}
	return nil
}

func textArgs(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(strings.Join(args, " ")) == "" {
		return fmt.Errorf("%w: %s requires text", errUsage, cmd.CommandPath())
	}
	return nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: %s takes %d argument(s)", errUsage, cmd.CommandPath(), n)
		}
		return nil
	}
}

func isFlagError(err error) bool {
	message := err.Error()
	return strings.HasPrefix(message, "unknown flag") ||
		strings.HasPrefix(message, "unknown shorthand flag") ||
		strings.HasPrefix(message, "unknown command") ||
		strings.Contains(message, "flag needs an argument") ||
		strings.HasPrefix(message, "invalid argument")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
