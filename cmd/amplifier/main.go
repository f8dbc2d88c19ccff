package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/artistamplifier/api/internal/model"
	"github.com/artistamplifier/api/internal/workflow"
)

var (
	serverURL  string
	sessionDir string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "amplifier",
		Short: "Artist Amplifier command line client",
		Long: `Drives the Artist Amplifier workflow from the terminal:
fill in the artist profile, analyze a song, and generate a press description.`,
	}

	defaultSession := filepath.Join(userHome(), ".artist-amplifier")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "Artist Amplifier API base URL")
	rootCmd.PersistentFlags().StringVar(&sessionDir, "session-dir", defaultSession, "directory for saved session state")

	rootCmd.AddCommand(formCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(resetCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newController() (*workflow.Controller, error) {
	session, err := workflow.NewSessionStore(sessionDir)
	if err != nil {
		return nil, err
	}
	api := workflow.NewHTTPClient(serverURL)
	return workflow.NewController(api, session), nil
}

func formCmd() *cobra.Command {
	var name, title, description, language string

	cmd := &cobra.Command{
		Use:   "form",
		Short: "Save the artist profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := newController()
			if err != nil {
				return err
			}

			form := workflow.ArtistForm{
				ArtistName:        name,
				SongTitle:         title,
				ArtistDescription: description,
				Language:          model.Language(language),
			}
			if err := form.Validate(); err != nil {
				return err
			}

			ctrl.EditForm(form)
			fmt.Println("Artist profile saved.")
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "artist name (required)")
	cmd.Flags().StringVar(&title, "title", "", "song title")
	cmd.Flags().StringVar(&description, "description", "", "artist description, 50-1000 characters (required)")
	cmd.Flags().StringVar(&language, "language", "en", "description language (en or pl)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("description")
	return cmd
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <audio-file>",
		Short: "Validate, upload and analyze a song",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := newController()
			if err != nil {
				return err
			}

			ctx, stop := cancelOnInterrupt(ctrl)
			defer stop()

			fmt.Printf("Analyzing %s (Ctrl-C cancels)...\n", args[0])
			if err := ctrl.SubmitAudio(ctx, args[0]); err != nil {
				if ctx.Err() != nil {
					fmt.Println("Analysis cancelled.")
					return nil
				}
				return err
			}

			printAnalysis(ctrl.State().Analysis)
			return nil
		},
	}
}

func generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate the press description",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := newController()
			if err != nil {
				return err
			}

			ctx, stop := cancelOnInterrupt(ctrl)
			defer stop()

			if err := ctrl.Generate(ctx); err != nil {
				if ctx.Err() != nil {
					fmt.Println("Generation cancelled.")
					return nil
				}
				return err
			}

			desc := ctrl.State().Description
			fmt.Println(desc.Text)
			if desc.ModelName != "" {
				fmt.Printf("\n(model: %s)\n", desc.ModelName)
			}
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the saved workflow state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := newController()
			if err != nil {
				return err
			}

			state := ctrl.State()
			fmt.Printf("Status: %s\n", state.Status)
			if state.Form.ArtistName != "" {
				fmt.Printf("Artist: %s\n", state.Form.ArtistName)
			}
			if state.Analysis != nil {
				printAnalysis(state.Analysis)
			}
			if state.Description != nil {
				fmt.Println("\nGenerated description:")
				fmt.Println(state.Description.Text)
			}
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear the saved workflow state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := newController()
			if err != nil {
				return err
			}
			ctrl.Reset()
			fmt.Println("Workflow reset.")
			return nil
		},
	}
}

// cancelOnInterrupt wires Ctrl-C to both the context and the controller so
// an interrupted operation settles its state before the process exits.
func cancelOnInterrupt(ctrl *workflow.Controller) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		ctrl.Cancel()
		cancel()
	}()

	return ctx, func() {
		signal.Stop(quit)
		cancel()
	}
}

func printAnalysis(result *model.AnalysisResult) {
	if result == nil {
		return
	}
	track := result.Data.AnalyzedTrack
	fmt.Println("\nAnalysis:")
	fmt.Printf("  Tempo: %d BPM\n", result.Data.Tempo)
	fmt.Printf("  Mood: %s\n", result.Data.Mood)
	if track.Key != "" {
		fmt.Printf("  Key: %s\n", track.Key)
	}
	if len(track.Genres) > 0 {
		fmt.Printf("  Genres: %s\n", strings.Join(track.Genres, ", "))
	}
	if len(track.Instruments) > 0 {
		fmt.Printf("  Instruments: %s\n", strings.Join(track.Instruments, ", "))
	}
	if track.Emotion != "" {
		fmt.Printf("  Emotion: %s\n", track.Emotion)
	}
}

func userHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Cannot resolve home directory: %v", err)
		return "."
	}
	return home
}
