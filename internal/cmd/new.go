package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	newName     string
	newModel    string
	newProvider string
)

var newCmd = &cobra.Command{
	Use:   "new [path]",
	Short: "Start a new session on a project directory",
	Long: `Start a new session bound to the given project directory (default:
the current directory). The session runs until interrupted; on interrupt
it is snapshotted to disk and can be resumed later with 'tandem resume'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNew,
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringVar(&newName, "name", "", "display name (default: project directory basename)")
	newCmd.Flags().StringVar(&newModel, "model", "", "model override for this session")
	newCmd.Flags().StringVar(&newProvider, "provider", "", "provider override for this session")
}

func runNew(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	cfg := map[string]string{}
	if newModel != "" {
		cfg["model"] = newModel
	}
	if newProvider != "" {
		cfg["provider"] = newProvider
	}

	s, err := a.sup.CreateSession(path, newName, cfg)
	if err != nil {
		return err
	}

	fmt.Printf("Session %s started\n", sessionHeadline(s.ID, s.Name))
	fmt.Printf("  project: %s\n", s.ProjectPath)
	fmt.Printf("  model:   %s/%s\n", s.Config["provider"], s.Config["model"])
	fmt.Println("\nPress Ctrl-C to stop; the session will be saved and resumable.")

	waitForInterrupt()

	if err := a.sup.StopSession(s.ID); err != nil {
		return err
	}
	fmt.Printf("\nSession saved. Resume with: tandem resume %s\n", s.ID)
	return nil
}

// waitForInterrupt blocks until SIGINT or SIGTERM.
func waitForInterrupt() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	<-sig
}
