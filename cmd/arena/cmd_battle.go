package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-arena/internal/application"
	"github.com/ahrav/go-arena/internal/domain"
)

func newBattleCommand(flags *globalFlags) *cobra.Command {
	var (
		output    string
		imagePath string
		noSave    bool
	)

	cmd := &cobra.Command{
		Use:   "battle <prompt>",
		Short: "Run one battle and print the result",
		Long: `Run one battle: every configured provider answers the prompt, every
provider rates all answers, and the winner is printed along with each judge's
ratings. The battle is stored unless --no-save is given.`,
		Example: `  arena battle "Explain the CAP theorem in two sentences"
  arena battle -o json --image diagram.png "What does this diagram show?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(output); err != nil {
				return err
			}

			req := application.BattleRequest{Prompt: strings.Join(args, " ")}
			if imagePath != "" {
				img, err := loadImage(imagePath)
				if err != nil {
					return err
				}
				req.Image = img
			}

			a, err := newApp(cmd.Context(), flags, true)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.arena.Run(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("battle failed: %w", err)
			}

			record := domain.NewBattleRecord(result, time.Now().UTC())
			var id int64
			if !noSave {
				if id, err = a.store.SaveBattle(cmd.Context(), record); err != nil {
					return err
				}
			}

			report := newBattleReport(id, result, record)
			if output == formatText {
				renderBattle(cmd.OutOrStdout(), report, result.DisplayName)
				return nil
			}
			return encode(cmd.OutOrStdout(), output, report)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatText, "Output format: text, json or yaml")
	cmd.Flags().StringVar(&imagePath, "image", "", "Attach an image file to the prompt")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not store the battle")
	return cmd
}

// loadImage reads an image file and sniffs its MIME type.
func loadImage(path string) (*domain.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrInvalidImage, path, mime)
	}
	return &domain.Image{MIMEType: mime, Data: data}, nil
}
