package cmd

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	nameStyle   = lipgloss.NewStyle().Bold(true)
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List resumable sessions",
	Long: `List saved sessions that can be resumed. Sessions whose project
directory is currently open in a live session are excluded.`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	resumable, err := a.store.ListResumable()
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("Resumable sessions"))
	if len(resumable) == 0 {
		fmt.Println(dimStyle.Render("  none; run 'tandem new' to start one"))
		return nil
	}

	for _, s := range resumable {
		fmt.Printf("  %s  %s\n", idStyle.Render(s.ID), nameStyle.Render(s.Name))
		fmt.Printf("      %s\n", s.ProjectPath)
		fmt.Printf("      %s\n", dimStyle.Render("closed "+formatAge(s.ClosedAt)))
	}
	fmt.Printf("\n%s\n", dimStyle.Render(fmt.Sprintf("%d session(s). Resume with: tandem resume <session-id>", len(resumable))))
	return nil
}

// sessionHeadline renders "id (name)" with the shared styles.
func sessionHeadline(id, name string) string {
	return fmt.Sprintf("%s (%s)", idStyle.Render(id), nameStyle.Render(name))
}

// formatAge renders a close time as a human-friendly age.
func formatAge(t time.Time) string {
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago (%s)", int(age.Hours()/24), t.Format("2006-01-02"))
	}
}
