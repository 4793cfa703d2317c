package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tandemlabs/tandem/internal/errors"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a saved session",
	Long: `Resume a previously saved session by id. The persisted record is
verified, its project directory re-checked, and the conversation and task
list replayed into a fresh process group. The on-disk record is removed
once the live session is confirmed good.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	id := args[0]
	s, err := a.store.Resume(id)
	if err != nil {
		var rle *errors.RateLimitError
		if errors.As(err, &rle) {
			return fmt.Errorf("too many resume attempts for %s, retry in %s", id, rle.RetryAfter.Round(time.Second))
		}
		return err
	}

	state, err := a.sup.GetState(s.ID)
	if err != nil {
		return err
	}

	fmt.Printf("Session %s resumed\n", sessionHeadline(s.ID, s.Name))
	fmt.Printf("  project:  %s\n", s.ProjectPath)
	fmt.Printf("  messages: %d\n", len(state.Messages))
	fmt.Printf("  todos:    %d\n", len(state.Todos))
	fmt.Println("\nPress Ctrl-C to stop; the session will be saved again.")

	waitForInterrupt()

	if err := a.sup.StopSession(s.ID); err != nil {
		return err
	}
	fmt.Printf("\nSession saved. Resume with: tandem resume %s\n", s.ID)
	return nil
}
