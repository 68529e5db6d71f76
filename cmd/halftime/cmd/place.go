package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/halftimetv/halftime/internal/ffmpeg"
	"github.com/halftimetv/halftime/internal/frame"
	"github.com/halftimetv/halftime/internal/oracle"
	"github.com/halftimetv/halftime/internal/subtitle"
)

var placeCmd = &cobra.Command{
	Use:   "place",
	Short: "Run placement analysis offline",
	Long: `Parse a subtitle file, find dialogue gaps, and ask the oracle where
an ad for the given product fits. Prints the placement decision as JSON.

By default the multi-pass engine runs: transcript candidates first,
then visual verification over frames grabbed from the video. Use
--single-pass to skip the vision stage.`,
	RunE: runPlace,
}

func init() {
	rootCmd.AddCommand(placeCmd)

	placeCmd.Flags().String("video", "", "Path to the video file")
	placeCmd.Flags().String("subtitles", "", "Path to the SRT or VTT file")
	placeCmd.Flags().String("product-company", "", "Advertiser name")
	placeCmd.Flags().String("product-name", "", "Product name")
	placeCmd.Flags().String("product-category", "", "Product category")
	placeCmd.Flags().Bool("single-pass", false, "Skip visual verification")

	_ = placeCmd.MarkFlagRequired("video")
	_ = placeCmd.MarkFlagRequired("subtitles")
	_ = placeCmd.MarkFlagRequired("product-company")
	_ = placeCmd.MarkFlagRequired("product-name")
}

func runPlace(cmd *cobra.Command, args []string) error {
	video, _ := cmd.Flags().GetString("video")
	subtitles, _ := cmd.Flags().GetString("subtitles")
	singlePass, _ := cmd.Flags().GetBool("single-pass")

	product := oracle.Product{}
	product.Company, _ = cmd.Flags().GetString("product-company")
	product.Name, _ = cmd.Flags().GetString("product-name")
	product.Category, _ = cmd.Flags().GetString("product-category")

	logger := slog.Default()

	cues, err := subtitle.ParseFile(subtitles)
	if err != nil {
		return err
	}

	detector := ffmpeg.NewBinaryDetector(cfg.Media.FFmpegPath, cfg.Media.FFprobePath)
	operator := ffmpeg.NewOperator(detector, cfg.Media.HWAccelPriority, logger)

	client := oracle.NewClient(cfg.Oracle, logger)
	engine := oracle.NewEngine(client, frame.NewExtractor(operator), cfg.Placement, logger)

	ctx := context.Background()
	req := oracle.PlaceRequest{
		Cues:      cues,
		VideoPath: video,
		Product:   product,
	}
	if duration, derr := operator.Duration(ctx, video); derr == nil {
		req.VideoDuration = duration
	}

	var result *oracle.Result
	if singlePass {
		result, err = engine.PlaceSinglePass(ctx, req)
	} else {
		result, err = engine.Place(ctx, req)
	}
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
