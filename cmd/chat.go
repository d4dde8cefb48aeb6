package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haldis/webchat/internal/config"
	"github.com/haldis/webchat/internal/relay"
)

var (
	chatModel  string
	chatSearch bool
	chatSystem string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in the terminal with streamed replies",
	Long: `Starts an interactive chat. Replies stream token by token.

Commands inside the chat:
  /reset   clear the conversation
  /quit    exit`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "Model name (default from config)")
	chatCmd.Flags().BoolVarP(&chatSearch, "search", "s", false, "Ground answers with web search")
	chatCmd.Flags().StringVar(&chatSystem, "system", "", "System instructions (default from config)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	model := chatModel
	if model == "" {
		model = cfg.OpenAI.Model
	}
	instructions := chatSystem
	if instructions == "" {
		instructions = cfg.Chat.Instructions
	}
	search := chatSearch || cfg.Chat.WebSearch

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("chat requires an interactive terminal; pipe input to 'webchat chat' is not supported")
	}

	provider := relay.NewOpenAIProvider(cfg.OpenAI.APIKey, model, cfg.OpenAI.ImageModel)
	textRelay := relay.NewTextRelay(provider)
	textRelay.OnStreamError = func(err error) {
		fmt.Fprintf(os.Stderr, "\nstream error: %v\n", err)
	}

	conv := &relay.Conversation{}
	fmt.Printf("Chatting with %s. /reset clears, /quit exits.\n", model)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			conv.Reset()
			fmt.Println("Conversation cleared.")
			continue
		}

		req := relay.TextRequest{
			Model:        model,
			Instructions: instructions,
			Input:        input,
			WebSearch:    search,
		}

		printed := 0
		out, err := textRelay.Send(cmd.Context(), req, conv, func(acc string) {
			if len(acc) > printed {
				fmt.Print(acc[printed:])
				printed = len(acc)
			}
		})
		if err != nil {
			if printed > 0 {
				fmt.Println()
			}
			fmt.Fprintf(os.Stderr, "OpenAI error: %v\n", err)
			continue
		}
		if out == "" {
			fmt.Println("(no response)")
			continue
		}
		// The final aggregated text can extend past the streamed deltas.
		if printed < len(out) {
			fmt.Print(out[printed:])
		}
		fmt.Println()
	}
}
