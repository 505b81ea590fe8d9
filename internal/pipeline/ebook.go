package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmunix/odgo/internal/epub"
	"github.com/vmunix/odgo/internal/overdrive"
)

// EbookInput carries the manifests needed to process one ebook or magazine
// loan.
type EbookInput struct {
	Loan    *overdrive.LoanManifest
	Book    *overdrive.OpenBook
	Rosters []overdrive.Roster
}

// ProcessEbook downloads an ebook's or magazine's content and packages it
// as an EPUB.
func (p *Pipeline) ProcessEbook(ctx context.Context, in EbookInput) error {
	dir, base, err := p.bookPaths(in.Loan, in.Book.Authors())
	if err != nil {
		return err
	}

	outputPath := filepath.Join(dir, base+".epub")
	if _, err := os.Stat(outputPath); err == nil {
		p.deps.Logger.Info("already saved", "path", outputPath)
		return nil
	}

	if p.deps.Client == nil {
		return fmt.Errorf("pipeline: no catalog client configured")
	}
	media, err := p.deps.Client.Media(ctx, in.Loan.ID)
	if err != nil {
		return fmt.Errorf("pipeline: %s: catalog lookup: %w", in.Loan.Title, err)
	}

	coverPath, _ := p.downloadCover(ctx, in.Loan, dir)

	workDir := filepath.Join(dir, base+".staging")
	assembler := epub.NewAssembler(p.fetchAsset, p.deps.Logger)
	err = assembler.Assemble(ctx, epub.Input{
		Loan:        in.Loan,
		Media:       media,
		Book:        in.Book,
		Rosters:     in.Rosters,
		WorkDir:     workDir,
		OutputPath:  outputPath,
		CoverPath:   coverPath,
		GenerateOPF: p.opts.GenerateOPF,
	})
	if err != nil {
		return fmt.Errorf("pipeline: %s: %w", in.Loan.Title, err)
	}
	// the assembler empties the staging tree; the folder itself is ours
	if err := os.Remove(workDir); err != nil && !os.IsNotExist(err) {
		p.deps.Logger.Warn("remove staging folder", "path", workDir, "error", err)
	}

	p.removeCover(coverPath, p.opts.KeepCover)
	return nil
}
