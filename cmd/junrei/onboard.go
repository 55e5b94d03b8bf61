package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/ashureev/junrei/internal/llm"
	"github.com/ashureev/junrei/internal/onboarding"
	"github.com/spf13/cobra"
)

// onboardCmd runs the temperament diagnosis
var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Find your temperament through a short conversation",
	Long: `The narrator asks a few questions and classifies you into one of five
temperaments. The result is saved to your profile as soon as it is known.`,
	RunE: runOnboard,
}

func runOnboard(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w := out(cmd)

	completer, err := llm.New(ctx, cfg.LLM())
	if err != nil {
		return fmt.Errorf("init AI client: %w", err)
	}

	c, err := onboarding.NewClassifier(onboarding.Deps{
		Completer: completer,
		Profiles:  repo,
	}, onboarding.Options{
		UserID:       userID,
		SystemPrompt: cat.OnboardingPrompt(),
		Policy:       cfg.OnboardingPolicy(),
	})
	if err != nil {
		return err
	}

	if msg, ok := c.Start(ctx); ok {
		renderNarrator(w, msg.Content)
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		if _, ok := c.Result(); ok {
			return completeOnboarding(cmd, c)
		}

		fmt.Fprint(w, boldGreen(userPrompt))
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if isExit(input) {
			break
		}
		if msg, ok := c.SendMessage(ctx, input); ok {
			renderNarrator(w, msg.Content)
		}
		if ctx.Err() != nil {
			break
		}
	}
	fmt.Fprintln(w, faint("診断は保存されていません。"))
	return scanner.Err()
}

func completeOnboarding(cmd *cobra.Command, c *onboarding.Classifier) error {
	w := out(cmd)
	profile, err := c.Complete(cmd.Context())
	if err != nil {
		return fmt.Errorf("save temperament: %w", err)
	}

	fmt.Fprintln(w)
	if info, ok := cat.Temperament(profile.Temperament); ok {
		fmt.Fprintf(w, "あなたの気質: %s %s\n", info.Emoji, boldCyan(info.Name))
		fmt.Fprintln(w, faint("  "+info.Subtitle))
	} else {
		fmt.Fprintf(w, "あなたの気質: %s\n", boldCyan(string(profile.Temperament)))
	}
	if sub, ok := cat.Temperament(profile.SubTemperament); ok {
		fmt.Fprintf(w, "サブ気質:     %s %s\n", sub.Emoji, sub.Name)
	}
	return nil
}
