package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"preflight/internal/confirm"
	"preflight/internal/conversation"
	"preflight/internal/types"
	"preflight/internal/ux"
	"preflight/internal/world"
)

const primarySystemPrompt = "You are an expert software developer. Answer the user's request using the files and tool results in this conversation."

var (
	runFiles  []string
	yesAlways bool
	plain     bool
)

// runCmd runs the pipeline over a single request
var runCmd = &cobra.Command{
	Use:   "run [request]",
	Short: "Run the handler pipeline over one request",
	Long: `Builds the turn's context from the request and any --file arguments, runs
every configured handler over it, and prints the messages the pipeline added.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		// Handle graceful shutdown
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()

		styles := ux.DefaultStyles()
		if plain {
			styles = ux.PlainStyles()
		}
		return runTurn(ctx, strings.Join(args, " "), runFiles, sessionOptions{
			in:        cmd.InOrStdin(),
			out:       cmd.OutOrStdout(),
			styles:    styles,
			yesAlways: yesAlways,
			verbose:   verbose,
			markdown:  !plain,
		})
	},
}

func init() {
	runCmd.Flags().StringSliceVarP(&runFiles, "file", "f", nil, "Workspace file to include in the turn (repeatable)")
	runCmd.Flags().BoolVarP(&yesAlways, "yes-always", "y", false, "Confirm every proposed change without asking")
	runCmd.Flags().BoolVar(&plain, "plain", false, "Disable colored output and Markdown rendering")
}

// runTurn runs the pipeline once and prints what it added.
func runTurn(ctx context.Context, request string, files []string, opts sessionOptions) error {
	s, err := newSession(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	msgs, err := buildTurn(s.workspace, request, files)
	if err != nil {
		return err
	}
	conv := conversation.New(msgs...)
	before := conv.Len()

	conv, err = s.controller.Run(ctx, conv)
	if err != nil {
		if errors.Is(err, confirm.ErrCancelled) {
			s.console.Warning("Cancelled.")
			return err
		}
		return err
	}

	printAdded(opts.out, conv.Since(before))
	return nil
}

// buildTurn creates the initial context: the primary system prompt, the
// requested files and the user's request.
func buildTurn(ws *world.Workspace, request string, files []string) ([]types.Message, error) {
	msgs := []types.Message{types.SystemMessage(primarySystemPrompt)}
	for _, f := range files {
		content, rel, err := ws.Read(f)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, conversation.FileMessage(rel, content))
	}
	return append(msgs, types.UserMessage(request)), nil
}

func printAdded(w io.Writer, added []types.Message) {
	if len(added) == 0 {
		fmt.Fprintln(w, "No context added.")
		return
	}
	fmt.Fprintf(w, "Added %d message(s) to the context:\n\n", len(added))
	fmt.Fprint(w, conversation.Format(added))
}
