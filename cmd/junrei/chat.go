package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/ashureev/junrei/internal/dialogue"
	"github.com/ashureev/junrei/internal/llm"
	"github.com/spf13/cobra"
)

var (
	encounterID string
	resumeID    string
)

// chatCmd runs an interactive dialogue about one encounter
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk with the narrator about an encounter",
	Long: `Starts a dialogue session for the given encounter. The narrator speaks
first on a fresh session. Type 'exit' or press Ctrl+D to leave.

Example:
  junrei chat --encounter little-prince`,
	RunE: runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	w := out(cmd)

	completer, err := llm.New(ctx, cfg.LLM())
	if err != nil {
		return fmt.Errorf("init AI client: %w", err)
	}

	factory := &dialogue.Factory{
		Deps: dialogue.Deps{
			Completer:     completer,
			Profiles:      repo,
			Conversations: repo,
			Quotes:        repo,
			Progress:      repo,
		},
		Catalog:     cat,
		Progression: cfg.Progression,
	}
	sess, err := factory.New(ctx, userID, encounterID)
	if err != nil {
		return err
	}
	// Detached quote saves must land before the database closes.
	defer sess.Wait()

	enc, _ := cat.Encounter(encounterID)
	fmt.Fprintf(w, "%s  %s (%s)\n", boldGreen(enc.Title), enc.Book, enc.Author)
	fmt.Fprintln(w, faint("'exit' で終了"))
	fmt.Fprintln(w)

	if resumeID != "" {
		if err := sess.LoadConversation(ctx, resumeID); err != nil {
			return fmt.Errorf("resume %s: %w", resumeID, err)
		}
		renderTranscript(w, sess.Messages())
	} else {
		renderTurn(w, sess.Open(ctx))
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(w, boldGreen(userPrompt))
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if isExit(input) {
			break
		}
		renderTurn(w, sess.SendMessage(ctx, input))
		if ctx.Err() != nil {
			break
		}
	}
	fmt.Fprintln(w)
	return scanner.Err()
}

func isExit(input string) bool {
	switch strings.ToLower(input) {
	case "exit", "quit", "/exit", "/quit":
		return true
	}
	return false
}
