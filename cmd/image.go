package cmd

import (
	"bytes"
	"fmt"
	"image/png"
	"os"
	"strings"

	"github.com/BourgeoisBear/rasterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haldis/webchat/internal/config"
	"github.com/haldis/webchat/internal/relay"
)

var (
	imageModel    string
	imagePartials int
	imageOut      string
	imageShow     bool
)

var imageCmd = &cobra.Command{
	Use:   "image [prompt]",
	Short: "Generate an image with streamed partial previews",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImage,
}

func init() {
	imageCmd.Flags().StringVarP(&imageModel, "model", "m", "", "Image model name (default from config)")
	imageCmd.Flags().IntVarP(&imagePartials, "partials", "p", -1, "Partial previews to request, 0-4 (default from config)")
	imageCmd.Flags().StringVarP(&imageOut, "out", "o", "", "Output path (default from config)")
	imageCmd.Flags().BoolVar(&imageShow, "show", true, "Render previews inline when the terminal supports it")
	rootCmd.AddCommand(imageCmd)
}

func runImage(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	prompt := strings.Join(args, " ")
	partials := imagePartials
	if partials < 0 {
		partials = cfg.Image.PartialImages
	}
	outPath := imageOut
	if outPath == "" {
		outPath = cfg.Image.OutputPath
	}

	provider := relay.NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.ImageModel)
	imageRelay := relay.NewImageRelay(provider)
	imageRelay.OnStreamError = func(err error) {
		fmt.Fprintf(os.Stderr, "stream error: %v\n", err)
	}

	inline := imageShow && term.IsTerminal(int(os.Stdout.Fd())) && rasterm.IsKittyCapable()

	result, err := imageRelay.Generate(cmd.Context(), relay.ImageRequest{
		Model:         imageModel,
		Prompt:        prompt,
		PartialImages: partials,
	}, func(frame relay.Frame) {
		switch {
		case frame.Final && frame.Fallback:
			fmt.Println("Final (from last partial)")
		case frame.Final:
			fmt.Println("Final image")
		default:
			fmt.Printf("Partial preview #%d\n", frame.Index)
		}
		if inline {
			renderInline(frame.Data)
		}
	})
	if err != nil {
		return fmt.Errorf("image generation error: %w", err)
	}
	if result == nil {
		fmt.Println("No image bytes received. Try again.")
		return nil
	}

	if err := os.WriteFile(outPath, result.Data, 0644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	fmt.Printf("Saved %d bytes to %s\n", len(result.Data), outPath)
	return nil
}

// renderInline draws a frame in the terminal. Failures are silent; the
// textual captions above already describe progress.
func renderInline(data []byte) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return
	}
	_ = rasterm.KittyWriteImage(os.Stdout, img, rasterm.KittyImgOpts{})
	fmt.Println()
}
