package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "webchat",
	Short: "Chat and generate images with OpenAI, in the browser or the terminal",
	Long: `webchat relays chat turns to the OpenAI Responses API with streamed
token deltas, and image prompts to the Images API with streamed partial
previews.

Examples:
  webchat serve                     # browser UI on 127.0.0.1:8571
  webchat chat                      # terminal chat
  webchat chat -s                   # with web search grounding
  webchat image "a foggy harbor"    # generate an image
  webchat sessions list             # stored transcripts`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
