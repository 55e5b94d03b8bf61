package main

import (
	"errors"

	"github.com/ashureev/junrei/internal/domain"
	"github.com/ashureev/junrei/internal/progression"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show level, experience, title and temperament",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := repo.GetProfile(cmd.Context(), userID)
		if err != nil {
			return err
		}
		if p == nil {
			return errors.New("profile not found")
		}
		info, _ := cat.Temperament(p.Temperament)
		renderProfile(out(cmd), p, progression.ExpToNextLevel(p.Exp, cfg.Progression.Thresholds), info)
		return nil
	},
}

var quotesCmd = &cobra.Command{
	Use:   "quotes",
	Short: "List collected quotes",
	RunE: func(cmd *cobra.Command, args []string) error {
		quotes, err := repo.ListQuotes(cmd.Context(), userID)
		if err != nil {
			return err
		}
		renderQuotes(out(cmd), quotes)
		return nil
	},
}

var encountersCmd = &cobra.Command{
	Use:   "encounters",
	Short: "List encounters with your progress",
	Long: `Lists every encounter in the catalog. Encounters marked with * suit your
temperament.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p, err := repo.GetProfile(ctx, userID)
		if err != nil {
			return err
		}
		progress, err := repo.ListEncounterProgress(ctx, userID)
		if err != nil {
			return err
		}
		byEncounter := make(map[string]*domain.EncounterProgress, len(progress))
		for _, ep := range progress {
			byEncounter[ep.EncounterID] = ep
		}
		var temperament domain.Temperament
		if p != nil {
			temperament = p.Temperament
		}
		renderEncounters(out(cmd), cat.All(), byEncounter, temperament)
		return nil
	},
}
