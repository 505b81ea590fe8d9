package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vmunix/odgo/internal/config"
	"github.com/vmunix/odgo/internal/fetch"
	"github.com/vmunix/odgo/internal/ffmpeg"
	"github.com/vmunix/odgo/internal/overdrive"
	"github.com/vmunix/odgo/internal/pipeline"
)

var downloadCmd = &cobra.Command{
	Use:   "download [flags] <loan.json>...",
	Short: "Download loans as audiobooks or ebooks",
	Long: `Download loans as audiobooks or ebooks.

Each argument is an exported loan file holding the loan manifest, the
openbook document, and the content rosters.

Examples:
  odgo download loan.json
  odgo download --merge --merge-format m4b loan.json
  odgo download --title "ceremonials" loans/*.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	addDownloadFlags(downloadCmd)
}

func addDownloadFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("download-dir", "d", "", "Download directory")
	f.Bool("no-book-folder", false, "Save files directly into the download directory")
	f.BoolP("merge", "m", false, "Merge audiobook parts into a single file")
	f.String("merge-format", "", "Merged output format (mp3 or m4b)")
	f.BoolP("chapters", "c", false, "Write chapter marks")
	f.Bool("no-chapters", false, "Skip chapter marks")
	f.Bool("overwrite", false, "Overwrite tags already present in the files")
	f.BoolP("keep-cover", "k", false, "Keep cover.jpg in the book folder")
	f.Bool("keep-mp3", false, "Keep part mp3 files after merging")
	f.Bool("opf", false, "Write an OPF metadata sidecar")
	f.String("title", "", "Process only the loan best matching this title")
	f.Bool("hide-progress", false, "Suppress the download progress display")
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyDownloadFlags(cmd, cfg)

	bundles := make([]*Bundle, 0, len(args))
	for _, path := range args {
		b, err := loadBundle(path)
		if err != nil {
			return err
		}
		bundles = append(bundles, b)
	}
	if title, _ := cmd.Flags().GetString("title"); title != "" {
		b, err := selectByTitle(bundles, title)
		if err != nil {
			return err
		}
		bundles = []*Bundle{b}
	}

	logger := newLogger(cfg.Log.Level)
	runner := &ffmpeg.ExecRunner{
		FFmpeg:   cfg.FFmpeg.Path,
		FFprobe:  cfg.FFmpeg.ProbePath,
		LogLevel: "fatal",
		Logger:   logger,
	}
	httpClient := &http.Client{Timeout: time.Duration(cfg.Network.TimeoutSeconds) * time.Second}

	clientOpts := []overdrive.Option{
		overdrive.WithHTTPClient(httpClient),
		overdrive.WithRetries(cfg.Network.Retries),
	}
	if cfg.Network.UserAgent != "" {
		clientOpts = append(clientOpts, overdrive.WithUserAgent(cfg.Network.UserAgent))
	}

	var progress fetch.ProgressFunc
	if !cfg.Log.HideProgress {
		progress = printProgress
	}

	p := pipeline.New(pipeline.Deps{
		Client:  overdrive.NewClient(clientOpts...),
		Fetcher: fetch.New(httpClient, runner, progress, logger),
		HTTP:    httpClient,
		Runner:  runner,
		Logger:  logger,
	}, pipeline.OptionsFromConfig(cfg))

	// one failed loan does not stop the rest of the batch
	failed := 0
	for _, b := range bundles {
		logger.Info("processing loan", "title", b.Loan.Title, "type", b.Loan.Type.ID)
		if err := processBundle(cmd, p, b); err != nil {
			logger.Error("loan failed", "title", b.Loan.Title, "error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d loans failed", failed, len(bundles))
	}
	return nil
}

func processBundle(cmd *cobra.Command, p *pipeline.Pipeline, b *Bundle) error {
	ctx := cmd.Context()
	switch b.Loan.Type.ID {
	case overdrive.TypeAudiobook:
		return p.ProcessAudiobook(ctx, pipeline.AudiobookInput{
			Loan: &b.Loan, Book: &b.Book, BaseURL: b.BaseURL,
		})
	case overdrive.TypeEBook, overdrive.TypeMagazine:
		return p.ProcessEbook(ctx, pipeline.EbookInput{
			Loan: &b.Loan, Book: &b.Book, Rosters: b.Rosters,
		})
	default:
		return fmt.Errorf("unsupported loan type %q", b.Loan.Type.ID)
	}
}

// applyDownloadFlags lets command-line flags override the config file.
func applyDownloadFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("download-dir") {
		cfg.Output.DownloadDir, _ = f.GetString("download-dir")
	}
	if f.Changed("no-book-folder") {
		cfg.Output.NoBookFolder, _ = f.GetBool("no-book-folder")
	}
	if f.Changed("merge") {
		cfg.Audio.Merge, _ = f.GetBool("merge")
	}
	if f.Changed("merge-format") {
		cfg.Audio.MergeFormat, _ = f.GetString("merge-format")
	}
	if f.Changed("chapters") {
		cfg.Audio.Chapters, _ = f.GetBool("chapters")
	}
	if f.Changed("no-chapters") {
		cfg.Audio.Chapters = false
	}
	if f.Changed("overwrite") {
		cfg.Tags.Overwrite, _ = f.GetBool("overwrite")
	}
	if f.Changed("keep-cover") {
		cfg.Output.KeepCover, _ = f.GetBool("keep-cover")
	}
	if f.Changed("keep-mp3") {
		cfg.Audio.KeepMP3, _ = f.GetBool("keep-mp3")
	}
	if f.Changed("opf") {
		cfg.Output.GenerateOPF, _ = f.GetBool("opf")
	}
	if f.Changed("hide-progress") {
		cfg.Log.HideProgress, _ = f.GetBool("hide-progress")
	}
}

// printProgress renders a single-line transfer display on stderr.
func printProgress(done, total int64) {
	if total > 0 {
		fmt.Fprintf(os.Stderr, "\r%6.1f%% (%d/%d bytes)", float64(done)/float64(total)*100, done, total)
		if done >= total {
			fmt.Fprintln(os.Stderr)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "\r%d bytes", done)
}
