package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/lepinkainen/visiontagger/archive"
	"github.com/lepinkainen/visiontagger/batch"
	"github.com/lepinkainen/visiontagger/config"
	"github.com/lepinkainen/visiontagger/types"
	"github.com/lepinkainen/visiontagger/ui"
	"github.com/lepinkainen/visiontagger/utils"
	"github.com/lepinkainen/visiontagger/vision"
)

var Version = "dev"

type CLI struct {
	Describe DescribeCmd `cmd:"" help:"Describe every image in a ZIP archive and export the results as CSV"`
	List     ListCmd     `cmd:"" help:"List the image entries a ZIP archive contains"`
	Check    CheckCmd    `cmd:"" help:"Check that the model server is reachable and the model is available"`
}

type DescribeCmd struct {
	Archive        string `arg:"" name:"archive" help:"ZIP archive of images" type:"existingfile"`
	Prompt         string `help:"Prompt sent with every image (default from config)"`
	Output         string `help:"CSV output path (default vision-results-<timestamp>.csv)"`
	Model          string `help:"Model name (overrides config)"`
	Server         string `help:"Model server URL (overrides config)"`
	SkipDuplicates bool   `help:"Skip images perceptually identical to an earlier one"`
	Threshold      int    `help:"Hamming distance threshold for duplicate detection (0-64)" default:"10"`
	Plain          bool   `help:"Disable the TUI and print plain progress"`
}

type ListCmd struct {
	Archive string `arg:"" name:"archive" help:"ZIP archive to inspect" type:"existingfile"`
}

type CheckCmd struct {
	Model  string `help:"Model name (overrides config)"`
	Server string `help:"Model server URL (overrides config)"`
}

func (cmd *DescribeCmd) Run(appCtx *types.AppContext) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	server := firstNonEmpty(cmd.Server, cfg.Server)
	model := firstNonEmpty(cmd.Model, cfg.Model)
	prompt := firstNonEmpty(cmd.Prompt, cfg.Prompt)
	output := firstNonEmpty(cmd.Output, batch.DefaultFilename())

	data, err := os.ReadFile(cmd.Archive)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}

	assets, err := archive.Extract(data)
	if err != nil {
		return err
	}
	if len(assets) == 0 {
		fmt.Printf("%s\n", ui.InfoStyle.Render(fmt.Sprintf("No images found in %s", cmd.Archive)))
		return nil
	}

	client := vision.NewClient(server, model, cfg.Timeout())
	runner := batch.NewRunner(client, assets, prompt)
	if cmd.SkipDuplicates {
		runner.SkipDuplicates(cmd.Threshold)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cmd.useTUI() {
		return cmd.runWithTUI(ctx, client, runner, output, appCtx.Version)
	}
	return cmd.runPlain(ctx, client, runner, output, appCtx.Version)
}

func (cmd *DescribeCmd) useTUI() bool {
	if cmd.Plain {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// startPipeline loads the model and runs the batch in the background,
// posting lifecycle events through send. The returned channel closes
// once the pipeline goroutine has fully stopped.
func startPipeline(ctx context.Context, gateway vision.Gateway, runner *batch.Runner, send func(tea.Msg)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		onProgress := vision.MonotonicProgress(func(status string, percent int) {
			send(ui.LoadProgressMsg{Status: status, Percent: percent})
		})
		if err := gateway.Load(ctx, onProgress); err != nil {
			send(ui.LoadDoneMsg{Err: err})
			return
		}
		send(ui.LoadDoneMsg{})
		send(ui.BatchDoneMsg{Err: runner.Run(ctx)})
	}()
	return done
}

// runWithTUI drives the pipeline in a goroutine and feeds its events
// into the bubbletea program
func (cmd *DescribeCmd) runWithTUI(ctx context.Context, client *vision.Client, runner *batch.Runner, output, version string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(ui.NewModel(runner.Table(), version))

	runner.Table().Subscribe(func(row int) {
		p.Send(ui.RowTextMsg{Index: row})
	})
	runner.OnRowStart = func(row int) {
		p.Send(ui.RowStartedMsg{Index: row})
	}
	runner.OnRowDone = func(row int, err error) {
		p.Send(ui.RowDoneMsg{Index: row, Err: err})
	}

	pipelineDone := startPipeline(runCtx, client, runner, p.Send)

	finalModel, runErr := p.Run()

	// Quitting the TUI early must stop an in-flight run; wait for the
	// pipeline goroutine so the table is quiescent before exporting
	cancel()
	<-pipelineDone

	if runErr != nil {
		return runErr
	}

	if m, ok := finalModel.(ui.Model); ok {
		if err := m.LoadFailed(); err != nil {
			fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ %v", err)))
			return err
		}
		if err := m.BatchFailed(); err != nil {
			fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ Batch aborted: %v", err)))
		}
	}

	return exportResults(runner.Table(), output)
}

// runPlain is the non-interactive fallback: progress bar for the load,
// one styled line per image
func (cmd *DescribeCmd) runPlain(ctx context.Context, client *vision.Client, runner *batch.Runner, output, version string) error {
	fmt.Println(ui.HeaderStyle.Render(fmt.Sprintf("VisionTagger %s", version)))
	fmt.Println(ui.ProcessingStyle.Render(fmt.Sprintf("Describing %d images:", runner.Table().Len())))

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("loading model"),
		progressbar.OptionClearOnFinish(),
	)
	onProgress := vision.MonotonicProgress(func(status string, percent int) {
		if status != "" {
			bar.Describe(status)
		}
		_ = bar.Set(percent)
	})
	if err := client.Load(ctx, onProgress); err != nil {
		fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ %v", err)))
		return err
	}
	_ = bar.Finish()

	runner.OnRowDone = func(row int, err error) {
		entry := runner.Table().Row(row)
		switch {
		case err != nil:
			fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ %s: %v", entry.FileName, err)))
		case strings.HasPrefix(entry.Response, batch.DuplicatePrefix):
			fmt.Printf("%s\n", ui.MutedStyle.Render(fmt.Sprintf("⏭  %s (%s)", entry.FileName, entry.Response)))
		default:
			fmt.Printf("%s\n", ui.SuccessStyle.Render(fmt.Sprintf("✅ %s", entry.FileName)))
			fmt.Printf("   %s\n", entry.Response)
		}
	}

	if err := runner.Run(ctx); err != nil {
		fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ Batch aborted: %v", err)))
		return err
	}

	return exportResults(runner.Table(), output)
}

func exportResults(table *batch.Table, output string) error {
	if err := batch.ExportFile(table, output); err != nil {
		if errors.Is(err, batch.ErrNoResults) {
			fmt.Printf("%s\n", ui.InfoStyle.Render("No responses generated, skipping CSV export"))
			return nil
		}
		return err
	}
	fmt.Printf("\n%s\n", ui.SuccessStyle.Render(fmt.Sprintf("✅ Results written to %s", output)))
	return nil
}

func (cmd *ListCmd) Run() error {
	data, err := os.ReadFile(cmd.Archive)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}

	assets, err := archive.Extract(data)
	if err != nil {
		return err
	}

	if len(assets) == 0 {
		fmt.Printf("%s\n", ui.InfoStyle.Render(fmt.Sprintf("No images found in %s", cmd.Archive)))
		return nil
	}

	fmt.Printf("%s\n", ui.InfoStyle.Render(fmt.Sprintf("%d images in %s:", len(assets), cmd.Archive)))
	for _, asset := range assets {
		bounds := asset.Image.Bounds()
		fmt.Printf("  %s (%dx%d)\n", asset.Name, bounds.Dx(), bounds.Dy())
	}
	return nil
}

func (cmd *CheckCmd) Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	server := firstNonEmpty(cmd.Server, cfg.Server)
	model := firstNonEmpty(cmd.Model, cfg.Model)

	if err := utils.ValidateServer(server); err != nil {
		fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ %v", err)))
		return err
	}
	fmt.Printf("%s\n", ui.SuccessStyle.Render(fmt.Sprintf("✅ Server reachable at %s", server)))

	client := vision.NewClient(server, model, cfg.Timeout())
	if err := client.Check(context.Background()); err != nil {
		fmt.Printf("%s\n", ui.ErrorStyle.Render(fmt.Sprintf("❌ %v", err)))
		fmt.Printf("%s\n", ui.InfoStyle.Render(fmt.Sprintf("Pull it with: ollama pull %s", model)))
		return err
	}
	fmt.Printf("%s\n", ui.SuccessStyle.Render(fmt.Sprintf("✅ Model %s is available", model)))

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func main() {
	var cli CLI
	appCtx := &types.AppContext{Version: Version}
	ctx := kong.Parse(&cli, kong.Bind(appCtx))
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
