package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"z-song-ai-api/internal/application/validation"
	"z-song-ai-api/internal/domain/entity"
)

func newScoreCmd() *cobra.Command {
	var vocabularyPath string

	cmd := &cobra.Command{
		Use:   "score [artifact.json|-]",
		Short: "Score a song brief against the vocabulary tables",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return fmt.Errorf("read artifact: %w", err)
			}
			var a entity.SongArtifact
			if err := json.Unmarshal(raw, &a); err != nil {
				return fmt.Errorf("decode artifact: %w", err)
			}

			scorer := validation.Default()
			if vocabularyPath != "" {
				vocab, err := validation.LoadVocabularyFile(vocabularyPath)
				if err != nil {
					return err
				}
				if scorer, err = validation.NewScorer(vocab); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), scorer.Score(&a))
		},
	}
	cmd.Flags().StringVar(&vocabularyPath, "vocabulary", "", "custom vocabulary YAML (defaults to the built-in tables)")
	return cmd
}
